package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/planboard/notify/internal/config"
	"github.com/planboard/notify/internal/domain"
)

type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// PushSender delivers push payloads to SNS platform application endpoints
// (mobile devices registered through SNS rather than a browser push service).
type PushSender struct {
	client publisher
}

func NewPushSender(cfg *config.Config) (*PushSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	opts := []func(*sns.Options){}
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &PushSender{client: sns.NewFromConfig(awsCfg, opts...)}, nil
}

// Send publishes payload to the endpoint ARN stored in sub.Endpoint.
func (s *PushSender) Send(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) error {
	msg, err := platformMessage(payload)
	if err != nil {
		return err
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(sub.Endpoint),
		Message:          aws.String(msg),
		MessageStructure: aws.String("json"),
	})
	if err == nil {
		return nil
	}
	var disabled *types.EndpointDisabledException
	var notFound *types.NotFoundException
	if errors.As(err, &disabled) || errors.As(err, &notFound) {
		return fmt.Errorf("sns endpoint: %w", domain.ErrSubscriptionGone)
	}
	return fmt.Errorf("sns publish: %w: %w", domain.ErrTransport, err)
}

// platformMessage builds the per-platform JSON envelope SNS expects when
// MessageStructure is "json".
func platformMessage(p domain.PushPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	gcm, err := json.Marshal(map[string]any{"data": map[string]string{"payload": string(data)}})
	if err != nil {
		return "", err
	}
	apns, err := json.Marshal(map[string]any{
		"aps":     map[string]any{"alert": map[string]string{"title": p.Title, "body": p.Body}},
		"payload": p,
	})
	if err != nil {
		return "", err
	}
	envelope, err := json.Marshal(map[string]string{
		"default": p.Title,
		"GCM":     string(gcm),
		"APNS":    string(apns),
	})
	if err != nil {
		return "", err
	}
	return string(envelope), nil
}
