package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/planboard/notify/internal/domain"
)

const (
	notificationCounter  = "notifications"
	recipientIndex       = "recipient_id-created_at_ns-index"
	maxTransactWriteSize = 100
)

// notificationAPI is the part of dynamodb.Client the notifications repo uses.
type notificationAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// NotificationRepo provides typed DynamoDB operations for the notifications table.
type NotificationRepo struct {
	client    notificationAPI
	counters  *CounterRepo
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, counters *CounterRepo, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, counters: counters, tableName: tableName}
}

// NextID allocates the server-assigned integer id for a new notification.
func (r *NotificationRepo) NextID(ctx context.Context) (int64, error) {
	return r.counters.Next(ctx, notificationCounter)
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	n.CreatedAtNs = n.CreatedAt.UnixNano()
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(notification_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("notification %d exists: %w", n.ID, domain.ErrConflict)
	}
	if err != nil {
		return transportErr("put notification", err)
	}
	return nil
}

// ListRecent queries the recipient index newest first.
func (r *NotificationRepo) ListRecent(ctx context.Context, recipientID string, limit int32) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(recipientIndex),
		KeyConditionExpression: aws.String("recipient_id = :rid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: recipientID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, transportErr("list notifications", err)
	}
	notifications := []domain.Notification{}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// CountUnread pages through the recipient index counting rows without read_at.
func (r *NotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(recipientIndex),
		KeyConditionExpression: aws.String("recipient_id = :rid"),
		FilterExpression:       aws.String("attribute_not_exists(read_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: recipientID},
		},
		Select: types.SelectCount,
	})
	total := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, transportErr("count unread", err)
		}
		total += int(page.Count)
	}
	return total, nil
}

// UnreadIDs returns the ids of every unread notification for the recipient.
func (r *NotificationRepo) UnreadIDs(ctx context.Context, recipientID string) ([]int64, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(recipientIndex),
		KeyConditionExpression: aws.String("recipient_id = :rid"),
		FilterExpression:       aws.String("attribute_not_exists(read_at)"),
		ProjectionExpression:   aws.String("notification_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: recipientID},
		},
	})
	var ids []int64
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, transportErr("list unread ids", err)
		}
		var rows []struct {
			ID int64 `dynamodbav:"notification_id"`
		}
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &rows); err != nil {
			return nil, err
		}
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

// MarkRead sets read_at once. The condition enforces ownership; an existing
// read_at is kept by if_not_exists so repeated calls are no-ops.
func (r *NotificationRepo) MarkRead(ctx context.Context, recipientID string, notificationID int64, at time.Time) (*domain.Notification, error) {
	input, err := r.markReadUpdate(recipientID, notificationID, at)
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 input.TableName,
		Key:                       input.Key,
		UpdateExpression:          input.UpdateExpression,
		ConditionExpression:       input.ConditionExpression,
		ExpressionAttributeNames:  input.ExpressionAttributeNames,
		ExpressionAttributeValues: input.ExpressionAttributeValues,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, fmt.Errorf("notification %d: %w", notificationID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, transportErr("mark notification read", err)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Attributes, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkAllRead writes read_at on every id in transactions of up to 100 items.
// Each transaction is all-or-nothing; the first failing chunk aborts the call.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID string, ids []int64, at time.Time) error {
	for start := 0; start < len(ids); start += maxTransactWriteSize {
		end := min(start+maxTransactWriteSize, len(ids))
		items := make([]types.TransactWriteItem, 0, end-start)
		for _, nid := range ids[start:end] {
			u, err := r.markReadUpdate(recipientID, nid, at)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{Update: u})
		}
		if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		}); err != nil {
			return transportErr("mark all read", err)
		}
	}
	return nil
}

func (r *NotificationRepo) markReadUpdate(recipientID string, notificationID int64, at time.Time) (*types.Update, error) {
	now, err := attributevalue.Marshal(at.UTC())
	if err != nil {
		return nil, fmt.Errorf("marshal read_at: %w", err)
	}
	return &types.Update{
		TableName:           aws.String(r.tableName),
		Key:                 numKey("notification_id", notificationID),
		UpdateExpression:    aws.String("SET #ra = if_not_exists(#ra, :now)"),
		ConditionExpression: aws.String("recipient_id = :rid"),
		ExpressionAttributeNames: map[string]string{
			"#ra": "read_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": now,
			":rid": &types.AttributeValueMemberS{Value: recipientID},
		},
	}, nil
}
