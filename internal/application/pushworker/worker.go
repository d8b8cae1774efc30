package pushworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/planboard/notify/internal/domain"
)

// Fixed assets shown with every notification.
const (
	IconPath   = "/icons/icon-192.png"
	BadgePath  = "/icons/badge-72.png"
	DefaultTag = "default"
	DefaultURL = "/"
)

// NotificationData travels with a shown notification and comes back on click.
type NotificationData struct {
	URL            string `json:"url"`
	NotificationID any    `json:"notificationId,omitempty"`
}

// NotificationOptions mirrors the options a host platform accepts when
// showing a notification.
type NotificationOptions struct {
	Body               string           `json:"body,omitempty"`
	Icon               string           `json:"icon"`
	Badge              string           `json:"badge"`
	Tag                string           `json:"tag"`
	Renotify           bool             `json:"renotify,omitempty"`
	RequireInteraction bool             `json:"requireInteraction,omitempty"`
	Data               NotificationData `json:"data"`
}

// ShownNotification is a notification currently displayed by the platform.
type ShownNotification struct {
	Title   string
	Options NotificationOptions
}

// WindowClient is an open application window controlled by the worker.
type WindowClient interface {
	URL() string
	Focus(ctx context.Context) error
	Navigate(ctx context.Context, target string) error
}

// Platform is the host environment the worker runs in.
type Platform interface {
	Supported() bool
	Origin() string
	SkipWaiting(ctx context.Context) error
	ClaimClients(ctx context.Context) error
	ShowNotification(ctx context.Context, title string, opts NotificationOptions) error
	CloseNotification(ctx context.Context, n ShownNotification) error
	WindowClients(ctx context.Context) ([]WindowClient, error)
	OpenWindow(ctx context.Context, target string) error
}

type EventKind int

const (
	EventInstall EventKind = iota
	EventActivate
	EventPush
	EventNotificationClick
)

func (k EventKind) String() string {
	switch k {
	case EventInstall:
		return "install"
	case EventActivate:
		return "activate"
	case EventPush:
		return "push"
	case EventNotificationClick:
		return "notificationclick"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one lifecycle event delivered by the platform. Data is set for
// push events and Notification for click events.
type Event struct {
	Kind         EventKind
	Data         []byte
	Notification *ShownNotification
}

// Worker handles push lifecycle events independently of any open window.
type Worker struct {
	platform  Platform
	lifetime  time.Duration
	supported bool
}

// New returns a worker bound to platform. lifetime is the hard deadline each
// event handler must finish within.
func New(platform Platform, lifetime time.Duration) *Worker {
	if lifetime <= 0 {
		lifetime = 30 * time.Second
	}
	return &Worker{platform: platform, lifetime: lifetime, supported: platform.Supported()}
}

// Dispatch runs the handler for ev inside the extended lifetime window and
// waits for it to finish. A handler still running at the deadline is
// abandoned and reported as context.DeadlineExceeded.
func (w *Worker) Dispatch(ctx context.Context, ev Event) error {
	if !w.supported {
		return fmt.Errorf("%s: %w", ev.Kind, domain.ErrUnsupported)
	}
	ctx, cancel := context.WithTimeout(ctx, w.lifetime)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.handle(ctx, ev) }()

	select {
	case err := <-done:
		if err != nil {
			slog.Warn("push worker event failed", "event", ev.Kind.String(), "err", err)
		}
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", ev.Kind, ctx.Err())
	}
}

func (w *Worker) handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventInstall:
		return w.platform.SkipWaiting(ctx)
	case EventActivate:
		return w.platform.ClaimClients(ctx)
	case EventPush:
		return w.push(ctx, ev.Data)
	case EventNotificationClick:
		if ev.Notification == nil {
			return fmt.Errorf("notificationclick without notification: %w", domain.ErrBadRequest)
		}
		return w.click(ctx, *ev.Notification)
	default:
		return fmt.Errorf("unknown event %s: %w", ev.Kind, domain.ErrBadRequest)
	}
}

func (w *Worker) push(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var p domain.PushPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode push payload: %w: %w", domain.ErrValidation, err)
	}
	n := Present(p)
	return w.platform.ShowNotification(ctx, n.Title, n.Options)
}

// Present maps a push payload onto what the platform displays.
func Present(p domain.PushPayload) ShownNotification {
	tag := p.Tag
	if tag == "" {
		tag = DefaultTag
	}
	target := p.URL
	if target == "" {
		target = DefaultURL
	}
	return ShownNotification{
		Title: p.Title,
		Options: NotificationOptions{
			Body:               p.Body,
			Icon:               IconPath,
			Badge:              BadgePath,
			Tag:                tag,
			Renotify:           p.Renotify,
			RequireInteraction: p.RequireInteraction,
			Data:               NotificationData{URL: target, NotificationID: p.NotificationID},
		},
	}
}

func (w *Worker) click(ctx context.Context, n ShownNotification) error {
	if err := w.platform.CloseNotification(ctx, n); err != nil {
		return fmt.Errorf("close notification: %w", err)
	}
	origin := w.platform.Origin()
	target := resolve(origin, n.Options.Data.URL)

	clients, err := w.platform.WindowClients(ctx)
	if err != nil {
		return fmt.Errorf("list window clients: %w", err)
	}
	for _, c := range clients {
		if !sameOrigin(origin, c.URL()) {
			continue
		}
		if err := c.Focus(ctx); err != nil {
			return fmt.Errorf("focus window: %w", err)
		}
		return c.Navigate(ctx, target)
	}
	return w.platform.OpenWindow(ctx, target)
}

func resolve(origin, target string) string {
	if target == "" {
		target = DefaultURL
	}
	base, err := url.Parse(origin)
	if err != nil {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	return base.ResolveReference(ref).String()
}

func sameOrigin(origin, raw string) bool {
	a, err := url.Parse(origin)
	if err != nil {
		return false
	}
	b, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
