package http

import (
	"context"

	"github.com/planboard/notify/internal/application/feed"
	"github.com/planboard/notify/internal/application/notification"
	"github.com/planboard/notify/internal/application/subscription"
	jwtinfra "github.com/planboard/notify/internal/infrastructure/jwt"
)

// Deps holds the services and infrastructure the router wires into handlers.
type Deps struct {
	Notifications notification.Service
	Subscriptions subscription.Service
	Feed          feed.Opener
	JWTProvider   *jwtinfra.Provider
	// Ready backs the readiness probe; nil always reports ready.
	Ready func(ctx context.Context) error
}
