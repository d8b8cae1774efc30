package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/planboard/notify/internal/application/feed"
	"github.com/planboard/notify/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Sender delivers one payload to one subscription. It returns an error
// wrapping domain.ErrSubscriptionGone when the endpoint no longer exists.
type Sender interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) error
}

type subscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	Delete(ctx context.Context, endpoint string) error
}

type preferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)
}

// Deps wires the dispatcher. WebPush or SNS may be nil, in which case
// endpoints of that kind are skipped.
type Deps struct {
	Subscriptions subscriptionStore
	Preferences   preferenceStore
	WebPush       Sender
	SNS           Sender
	Concurrency   int
	Timeout       time.Duration
}

// Dispatcher turns inserted notifications into push messages for every
// subscription the recipient has registered.
type Dispatcher struct {
	subs        subscriptionStore
	prefs       preferenceStore
	webPush     Sender
	sns         Sender
	concurrency int
	timeout     time.Duration

	opener feed.Opener
	handle feed.HandleID
}

func New(deps Deps) *Dispatcher {
	if deps.Concurrency <= 0 {
		deps.Concurrency = 8
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		subs:        deps.Subscriptions,
		prefs:       deps.Preferences,
		webPush:     deps.WebPush,
		sns:         deps.SNS,
		concurrency: deps.Concurrency,
		timeout:     deps.Timeout,
	}
}

// Start opens a wildcard channel on the hub. Events are delivered one at a
// time so pushes for a recipient go out in insert order.
func (d *Dispatcher) Start(opener feed.Opener) error {
	handle, err := opener.Open(feed.Filter{}, d.onInsert)
	if err != nil {
		return fmt.Errorf("open dispatch channel: %w", err)
	}
	d.opener = opener
	d.handle = handle
	return nil
}

// Stop releases the hub channel and waits for the in-flight event.
func (d *Dispatcher) Stop() {
	if d.opener != nil {
		d.opener.Close(d.handle)
		d.opener = nil
	}
}

func (d *Dispatcher) onInsert(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.Deliver(ctx, n); err != nil {
		slog.Error("push dispatch failed", "notification_id", n.ID, "recipient_id", n.RecipientID, "err", err)
	}
}

// Deliver pushes n to all of its recipient's subscriptions unless the
// recipient has muted notifications. Individual send failures are logged;
// gone endpoints are removed from the registry.
func (d *Dispatcher) Deliver(ctx context.Context, n domain.Notification) error {
	pref, err := d.prefs.Get(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("load preference: %w", err)
	}
	if pref.Muted() {
		slog.Debug("recipient muted, skipping push", "recipient_id", n.RecipientID, "notification_id", n.ID)
		return nil
	}

	subs, err := d.subs.ListByUser(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload := BuildPayload(n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, sub := range subs {
		sender := d.senderFor(sub)
		if sender == nil {
			continue
		}
		g.Go(func() error {
			d.sendOne(gctx, sender, sub, payload)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) senderFor(sub domain.PushSubscription) Sender {
	if sub.IsSNS() {
		return d.sns
	}
	return d.webPush
}

func (d *Dispatcher) sendOne(ctx context.Context, sender Sender, sub domain.PushSubscription, payload domain.PushPayload) {
	err := sender.Send(ctx, sub, payload)
	switch {
	case err == nil:
		return
	case errors.Is(err, domain.ErrSubscriptionGone):
		slog.Info("removing stale push subscription", "user_id", sub.UserID)
		if derr := d.subs.Delete(ctx, sub.Endpoint); derr != nil {
			slog.Warn("failed to remove stale push subscription", "user_id", sub.UserID, "err", derr)
		}
	default:
		slog.Warn("push send failed", "user_id", sub.UserID, "err", err)
	}
}

// BuildPayload renders the push message for n.
func BuildPayload(n domain.Notification) domain.PushPayload {
	url := "/"
	if link, ok := n.Link(); ok {
		url = link
	}
	return domain.PushPayload{
		Title:          n.Title,
		Body:           n.Body,
		URL:            url,
		NotificationID: n.ID,
		Tag:            fmt.Sprintf("notification-%d", n.ID),
		Renotify:       true,
	}
}
