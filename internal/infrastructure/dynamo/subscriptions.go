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
	"github.com/planboard/notify/internal/pkg/endpoint"
)

type subscriptionAPI interface {
	dynamodb.QueryAPIClient
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// SubscriptionRepo provides typed DynamoDB operations for the push_subscriptions table.
// Rows are keyed by the endpoint hash, so writes for the same endpoint collapse into one row.
type SubscriptionRepo struct {
	client    subscriptionAPI
	tableName string
}

func NewSubscriptionRepo(client *dynamodb.Client, tableName string) *SubscriptionRepo {
	return &SubscriptionRepo{client: client, tableName: tableName}
}

// Upsert writes the subscription in a single UpdateItem. created_at survives re-subscribes.
func (r *SubscriptionRepo) Upsert(ctx context.Context, s *domain.PushSubscription) (*domain.PushSubscription, error) {
	now, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("marshal timestamp: %w", err)
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("endpoint_hash", endpoint.Hash(s.Endpoint)),
		UpdateExpression: aws.String(
			"SET #ep = :ep, #p = :p, #a = :a, #u = :u, #up = :now, #cr = if_not_exists(#cr, :now)"),
		ExpressionAttributeNames: map[string]string{
			"#ep": "endpoint",
			"#p":  "p256dh_key",
			"#a":  "auth_key",
			"#u":  "user_id",
			"#up": "updated_at",
			"#cr": "created_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ep":  &types.AttributeValueMemberS{Value: s.Endpoint},
			":p":   &types.AttributeValueMemberS{Value: s.P256dhKey},
			":a":   &types.AttributeValueMemberS{Value: s.AuthKey},
			":u":   &types.AttributeValueMemberS{Value: s.UserID},
			":now": now,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, transportErr("upsert push subscription", err)
	}
	var saved domain.PushSubscription
	if err := attributevalue.UnmarshalMap(out.Attributes, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// Delete removes the row for endpoint. Deleting an absent key succeeds.
func (r *SubscriptionRepo) Delete(ctx context.Context, ep string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("endpoint_hash", endpoint.Hash(ep)),
	})
	if err != nil {
		return transportErr("delete push subscription", err)
	}
	return nil
}

// DeleteOwned removes the row for endpoint only when userID owns it. An absent
// row succeeds; a row owned by someone else reports ErrNotFound.
func (r *SubscriptionRepo) DeleteOwned(ctx context.Context, userID, ep string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("endpoint_hash", endpoint.Hash(ep)),
		ConditionExpression: aws.String("attribute_not_exists(endpoint_hash) OR user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("push subscription: %w", domain.ErrNotFound)
	}
	if err != nil {
		return transportErr("delete push subscription", err)
	}
	return nil
}

func (r *SubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	var subs []domain.PushSubscription
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, transportErr("list push subscriptions", err)
		}
		var batch []domain.PushSubscription
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		subs = append(subs, batch...)
	}
	return subs, nil
}
