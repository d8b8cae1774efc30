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

// PreferenceRepo provides typed DynamoDB operations for the notification_preferences table.
type PreferenceRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewPreferenceRepo(client *dynamodb.Client, tableName string) *PreferenceRepo {
	return &PreferenceRepo{client: client, tableName: tableName}
}

// Get returns the stored preference, or the enabled default when no row exists.
func (r *PreferenceRepo) Get(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
	})
	if err != nil {
		return nil, transportErr("get preference", err)
	}
	if out.Item == nil {
		return domain.DefaultPreference(userID), nil
	}
	var p domain.NotificationPreference
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetEnabled upserts notifications_enabled and returns the stored row.
func (r *PreferenceRepo) SetEnabled(ctx context.Context, userID string, enabled bool) (*domain.NotificationPreference, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		"notifications_enabled": enabled,
		"updated_at":            time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, transportErr("set preference", err)
	}
	var p domain.NotificationPreference
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal preference: %w", err)
	}
	return &p, nil
}
