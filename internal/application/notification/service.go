package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/planboard/notify/internal/domain"
	"github.com/planboard/notify/internal/pkg/validate"
)

const (
	// DefaultLimit is the size of the dropdown list.
	DefaultLimit = 10
	MaxLimit     = 50
)

type Service interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, notificationID int64) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) error
	GetPreference(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	// SetMute stores notifications_enabled for the user; enabled=false mutes.
	SetMute(ctx context.Context, userID string, enabled bool) (*domain.NotificationPreference, error)
	Summary(ctx context.Context, userID string) (*domain.Summary, error)
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
}

type notificationStore interface {
	NextID(ctx context.Context) (int64, error)
	Put(ctx context.Context, n *domain.Notification) error
	ListRecent(ctx context.Context, recipientID string, limit int32) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	UnreadIDs(ctx context.Context, recipientID string) ([]int64, error)
	MarkRead(ctx context.Context, recipientID string, notificationID int64, at time.Time) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string, ids []int64, at time.Time) error
}

type preferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	SetEnabled(ctx context.Context, userID string, enabled bool) (*domain.NotificationPreference, error)
}

// Publisher receives newly created notifications when the change feed is fed
// in-process instead of from the table stream.
type Publisher interface {
	Publish(n domain.Notification)
}

type service struct {
	repo      notificationStore
	prefRepo  preferenceStore
	publisher Publisher
	now       func() time.Time
}

type ServiceDeps struct {
	Repo           notificationStore
	PreferenceRepo preferenceStore
	Publisher      Publisher // optional
	Clock          func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      deps.Repo,
		prefRepo:  deps.PreferenceRepo,
		publisher: deps.Publisher,
		now:       now,
	}
}

// ListRecent re-queries on every call and returns at most limit rows, newest first.
func (s *service) ListRecent(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	limit = clampLimit(limit)
	items, err := s.repo.ListRecent(ctx, userID, int32(limit))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, userID string, notificationID int64) (*domain.Notification, error) {
	if notificationID <= 0 {
		return nil, fmt.Errorf("notification id %d: %w", notificationID, domain.ErrValidation)
	}
	return s.repo.MarkRead(ctx, userID, notificationID, s.now())
}

func (s *service) MarkAllRead(ctx context.Context, userID string) error {
	ids, err := s.repo.UnreadIDs(ctx, userID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.repo.MarkAllRead(ctx, userID, ids, s.now()); err != nil {
		return err
	}
	slog.Debug("marked notifications read", "user_id", userID, "count", len(ids))
	return nil
}

func (s *service) GetPreference(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	return s.prefRepo.Get(ctx, userID)
}

func (s *service) SetMute(ctx context.Context, userID string, enabled bool) (*domain.NotificationPreference, error) {
	return s.prefRepo.SetEnabled(ctx, userID, enabled)
}

func (s *service) Summary(ctx context.Context, userID string) (*domain.Summary, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	pref, err := s.prefRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.Summary{UnreadCount: count, IsMuted: pref.Muted()}, nil
}

func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	nid, err := s.repo.NextID(ctx)
	if err != nil {
		return nil, err
	}
	n := &domain.Notification{
		ID:          nid,
		RecipientID: req.RecipientID,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		CommentID:   req.CommentID,
		Title:       req.Title,
		Body:        req.Body,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Put(ctx, n); err != nil {
		return nil, err
	}
	slog.Info("notification created", "notification_id", n.ID, "recipient_id", n.RecipientID)
	if s.publisher != nil {
		s.publisher.Publish(*n)
	}
	return n, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
