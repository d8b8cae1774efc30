package inbox

import (
	"context"

	"github.com/planboard/notify/internal/application/feed"
	"github.com/planboard/notify/internal/domain"
)

// Store is the signed-in user's view of the notification store.
type Store interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	// SetMuted stores the preference and returns the authoritative muted value.
	SetMuted(ctx context.Context, muted bool) (bool, error)
}

// Feed delivers inserts for one user. feed.Listener satisfies it.
type Feed interface {
	Start(ctx context.Context, userID string, handler feed.Handler) error
	Stop()
}

// Registry is the signed-in user's view of the subscription registry.
type Registry interface {
	PublicKey(ctx context.Context) (string, bool, error)
	Subscribe(ctx context.Context, req domain.SaveSubscriptionRequest) error
	Unsubscribe(ctx context.Context, endpoint string) error
}

// PushManager creates a push subscription for the current browser or device
// given the server's public key.
type PushManager interface {
	Subscribe(ctx context.Context, applicationServerKey string) (domain.SaveSubscriptionRequest, error)
}
