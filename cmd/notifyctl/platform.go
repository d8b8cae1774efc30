package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/planboard/notify/internal/application/feed"
	"github.com/planboard/notify/internal/application/inbox"
	"github.com/planboard/notify/internal/application/pushworker"
	"github.com/planboard/notify/internal/domain"
)

// terminalPlatform renders worker output as lines of text.
type terminalPlatform struct {
	mu     sync.Mutex
	out    io.Writer
	origin string
}

func (p *terminalPlatform) Supported() bool                          { return true }
func (p *terminalPlatform) Origin() string                           { return p.origin }
func (p *terminalPlatform) SkipWaiting(context.Context) error        { return nil }
func (p *terminalPlatform) ClaimClients(context.Context) error       { return nil }
func (p *terminalPlatform) OpenWindow(context.Context, string) error { return nil }

func (p *terminalPlatform) ShowNotification(_ context.Context, title string, opts pushworker.NotificationOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.out, "[%s] %s\n", opts.Tag, title)
	if err != nil {
		return err
	}
	if opts.Body != "" {
		fmt.Fprintf(p.out, "    %s\n", opts.Body)
	}
	if opts.Data.URL != pushworker.DefaultURL {
		fmt.Fprintf(p.out, "    %s%s\n", p.origin, opts.Data.URL)
	}
	return nil
}

func (p *terminalPlatform) CloseNotification(context.Context, pushworker.ShownNotification) error {
	return nil
}

func (p *terminalPlatform) WindowClients(context.Context) ([]pushworker.WindowClient, error) {
	return nil, nil
}

// teeFeed passes each event to the controller first, then to after.
type teeFeed struct {
	inner inbox.Feed
	after func(domain.Notification)
}

func (t *teeFeed) Start(ctx context.Context, userID string, h feed.Handler) error {
	return t.inner.Start(ctx, userID, func(n domain.Notification) {
		h(n)
		t.after(n)
	})
}

func (t *teeFeed) Stop() { t.inner.Stop() }

// staticPushManager hands out a subscription supplied on the command line.
type staticPushManager struct {
	endpoint, p256dh, auth string
}

func (s *staticPushManager) Subscribe(context.Context, string) (domain.SaveSubscriptionRequest, error) {
	return domain.SaveSubscriptionRequest{
		Endpoint: s.endpoint,
		Keys:     domain.SubscriptionKeys{P256dh: s.p256dh, Auth: s.auth},
	}, nil
}
