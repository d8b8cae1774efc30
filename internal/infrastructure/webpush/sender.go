package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/planboard/notify/internal/config"
	"github.com/planboard/notify/internal/domain"
)

// Sender delivers encrypted payloads to browser push services using the
// server's VAPID key pair.
type Sender struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
	httpClient webpushgo.HTTPClient
}

// NewSender returns domain.ErrPushNotConfigured when the key pair is missing.
func NewSender(cfg *config.Config) (*Sender, error) {
	if !cfg.PushConfigured() {
		return nil, domain.ErrPushNotConfigured
	}
	return &Sender{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: cfg.VAPIDSubscriber,
		ttl:        cfg.PushTTL,
		httpClient: http.DefaultClient,
	}, nil
}

func (s *Sender) Send(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	resp, err := webpushgo.SendNotificationWithContext(ctx, body, &webpushgo.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpushgo.Keys{P256dh: sub.P256dhKey, Auth: sub.AuthKey},
	}, &webpushgo.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
		Urgency:         webpushgo.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("web push: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("push service status %d: %w", resp.StatusCode, domain.ErrSubscriptionGone)
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service status %d: %w", resp.StatusCode, domain.ErrTransport)
	}
	return nil
}
