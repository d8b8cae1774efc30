package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/planboard/notify/internal/application/dispatch"
	"github.com/planboard/notify/internal/application/feed"
	"github.com/planboard/notify/internal/application/notification"
	"github.com/planboard/notify/internal/application/subscription"
	"github.com/planboard/notify/internal/config"
	"github.com/planboard/notify/internal/infrastructure/dynamo"
	jwtinfra "github.com/planboard/notify/internal/infrastructure/jwt"
	"github.com/planboard/notify/internal/infrastructure/sns"
	"github.com/planboard/notify/internal/infrastructure/webpush"
	transporthttp "github.com/planboard/notify/internal/transport/http"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	setupLogger(cfg.AppEnv)
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		slog.Error("JWT provider not available", "err", err)
		os.Exit(1)
	}

	counters := dynamo.NewCounterRepo(dynamoClient, cfg.DynamoTables.Counters)
	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, counters, cfg.DynamoTables.Notifications)
	preferenceRepo := dynamo.NewPreferenceRepo(dynamoClient, cfg.DynamoTables.Preferences)
	subscriptionRepo := dynamo.NewSubscriptionRepo(dynamoClient, cfg.DynamoTables.PushSubscriptions)

	hub := feed.NewHub(cfg.FeedBuffer)
	defer hub.Shutdown()

	// Inserts reach the hub either from the table stream or straight from
	// the service when no stream is available (single instance, local dev).
	var publisher notification.Publisher
	switch cfg.FeedSource {
	case config.FeedSourceStream:
		poller := dynamo.NewStreamPoller(dynamoClient, dynamo.NewStreamsClient(cfg),
			cfg.DynamoTables.Notifications, cfg.FeedPollInterval, hub.Publish)
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("stream poller stopped", "err", err)
			}
		}()
	default:
		publisher = hub
	}

	notifSvc := notification.NewService(notification.ServiceDeps{
		Repo:           notificationRepo,
		PreferenceRepo: preferenceRepo,
		Publisher:      publisher,
	})
	subSvc := subscription.NewService(subscriptionRepo, cfg.PushPublicKey())

	dispatcher := dispatch.New(dispatch.Deps{
		Subscriptions: subscriptionRepo,
		Preferences:   preferenceRepo,
		WebPush:       webPushSender(cfg),
		SNS:           snsSender(cfg),
		Concurrency:   cfg.PushConcurrency,
		Timeout:       cfg.WorkerExtendLifetime,
	})
	if cfg.DispatchPush {
		if err := dispatcher.Start(hub); err != nil {
			slog.Error("push dispatcher not started", "err", err)
			os.Exit(1)
		}
		defer dispatcher.Stop()
	} else {
		slog.Info("push dispatch disabled on this instance")
	}

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		Notifications: notifSvc,
		Subscriptions: subSvc,
		Feed:          hub,
		JWTProvider:   jwtProvider,
		Ready:         dynamo.ReadyCheck(dynamoClient, cfg.DynamoTables.Notifications),
	})

	// No WriteTimeout: the feed websocket is long-lived and sets its own
	// write deadlines.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "feed_source", cfg.FeedSource, "push", cfg.PushConfigured())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	slog.Info("server stopped")
}

func setupLogger(env string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	if env == "production" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

// webPushSender returns nil when no VAPID key pair is configured, which
// disables delivery to browser endpoints.
func webPushSender(cfg *config.Config) dispatch.Sender {
	s, err := webpush.NewSender(cfg)
	if err != nil {
		slog.Warn("web push disabled", "err", err)
		return nil
	}
	return s
}

func snsSender(cfg *config.Config) dispatch.Sender {
	s, err := sns.NewPushSender(cfg)
	if err != nil {
		slog.Warn("SNS push disabled", "err", err)
		return nil
	}
	return s
}
