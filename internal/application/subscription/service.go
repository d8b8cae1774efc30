package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/planboard/notify/internal/domain"
	"github.com/planboard/notify/internal/pkg/validate"
)

type Service interface {
	Save(ctx context.Context, req domain.SaveSubscriptionRequest, userID string) (*domain.PushSubscription, error)
	// Remove deletes the caller's subscription for endpoint.
	Remove(ctx context.Context, userID, endpoint string) error
	ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	// ServerPublicKey returns the VAPID public key; false means push is not configured.
	ServerPublicKey() (string, bool)
}

type subscriptionStore interface {
	Upsert(ctx context.Context, s *domain.PushSubscription) (*domain.PushSubscription, error)
	DeleteOwned(ctx context.Context, userID, endpoint string) error
	ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
}

type service struct {
	repo      subscriptionStore
	publicKey string
}

// NewService builds the registry. An empty publicKey disables push without failing.
func NewService(repo subscriptionStore, publicKey string) Service {
	return &service{repo: repo, publicKey: publicKey}
}

func (s *service) Save(ctx context.Context, req domain.SaveSubscriptionRequest, userID string) (*domain.PushSubscription, error) {
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	req.Keys.P256dh = strings.TrimSpace(req.Keys.P256dh)
	req.Keys.Auth = strings.TrimSpace(req.Keys.Auth)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("missing owner: %w", domain.ErrValidation)
	}
	saved, err := s.repo.Upsert(ctx, &domain.PushSubscription{
		Endpoint:  req.Endpoint,
		P256dhKey: req.Keys.P256dh,
		AuthKey:   req.Keys.Auth,
		UserID:    userID,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("push subscription saved", "user_id", userID)
	return saved, nil
}

// Remove is idempotent: an unknown endpoint is not an error. An endpoint
// registered by another user is reported as not found and left in place.
func (s *service) Remove(ctx context.Context, userID, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("endpoint required: %w", domain.ErrValidation)
	}
	if userID == "" {
		return fmt.Errorf("missing owner: %w", domain.ErrValidation)
	}
	return s.repo.DeleteOwned(ctx, userID, endpoint)
}

func (s *service) ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) ServerPublicKey() (string, bool) {
	return s.publicKey, s.publicKey != ""
}
