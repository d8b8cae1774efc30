package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/planboard/notify/internal/config"
	"github.com/planboard/notify/internal/domain"
	"github.com/planboard/notify/internal/transport/http/handler"
	appmiddleware "github.com/planboard/notify/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds background
// work owned by the router such as rate-limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)

	// 5 requests/second, burst of 10, for subscription writes and producer inserts.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Ready)
	notifH := handler.NewNotificationHandler(deps.Notifications)
	pushH := handler.NewPushHandler(deps.Subscriptions)
	feedH := handler.NewFeedHandler(deps.Feed, cfg.AllowedOrigins)

	r.Route("/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health-check/{action}", healthH.Ping)
		r.Get("/push/public-key", pushH.PublicKey)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/session", notifH.Summary)
			r.Get("/notifications", notifH.List)
			r.Get("/notifications/unread-count", notifH.UnreadCount)
			r.Get("/notifications/feed", feedH.Serve)
			r.Get("/notifications/preferences", notifH.GetPreferences)
			r.Put("/notifications/preferences", notifH.UpdatePreferences)
			r.Put("/notifications/read-all", notifH.MarkAllRead)
			r.Put("/notifications/{id}", notifH.MarkRead)
			r.With(sensitiveRL.Limit).Post("/push/subscriptions", pushH.Subscribe)
			r.With(sensitiveRL.Limit).Delete("/push/subscriptions", pushH.Unsubscribe)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.With(sensitiveRL.Limit).Post("/notifications", notifH.Create)
			})
		})
	})

	return r
}
