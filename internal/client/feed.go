package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/planboard/notify/internal/application/feed"
	"github.com/planboard/notify/internal/domain"
)

// feedEvent mirrors the server's socket message.
type feedEvent struct {
	Type         string                  `json:"type"`
	Notification domain.NotificationView `json:"notification"`
}

// Feed is the websocket change-feed listener. It reconnects with exponential
// backoff until stopped. Handler calls are made from one goroutine in the
// order messages arrive.
type Feed struct {
	client *Client
	dialer *websocket.Dialer

	mu     sync.Mutex
	state  feed.State
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *Client) Feed() *Feed {
	return &Feed{client: c, dialer: websocket.DefaultDialer}
}

func (f *Feed) feedURL() string {
	u := *f.client.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/v1/notifications/feed"
	return u.String()
}

// Start connects and begins delivering inserts to handler. The server scopes
// the feed by token, so userID only gates whether a connection is made. If
// Stop runs while the socket is being dialed, Start returns feed.ErrStopped.
func (f *Feed) Start(ctx context.Context, userID string, handler feed.Handler) error {
	if userID == "" {
		return nil
	}
	f.mu.Lock()
	if f.state != feed.Disconnected {
		f.mu.Unlock()
		return feed.ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.state = feed.Connecting
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	conn, err := f.dial(runCtx)

	f.mu.Lock()
	if err == nil && runCtx.Err() != nil {
		_ = conn.Close()
		err = runCtx.Err()
	}
	if err != nil {
		stopped := runCtx.Err() != nil && ctx.Err() == nil
		f.state = feed.Disconnected
		f.cancel = nil
		f.mu.Unlock()
		cancel()
		close(done)
		if stopped {
			return feed.ErrStopped
		}
		return err
	}
	f.conn = conn
	f.state = feed.Subscribed
	f.mu.Unlock()

	go f.run(runCtx, cancel, conn, handler, done)
	return nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{"Authorization": []string{"Bearer " + f.client.token}}
	conn, resp, err := f.dialer.DialContext(ctx, f.feedURL(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("open feed: %w: %s", statusError(resp.StatusCode), resp.Status)
		}
		return nil, fmt.Errorf("open feed: %w: %w", domain.ErrTransport, err)
	}
	return conn, nil
}

func (f *Feed) run(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, handler feed.Handler, done chan struct{}) {
	defer close(done)
	defer f.setState(feed.Disconnected)
	watchDone := make(chan struct{})
	defer func() { <-watchDone }()
	defer cancel()

	// Closing the socket is what unblocks the reader on cancellation.
	go func() {
		defer close(watchDone)
		<-ctx.Done()
		f.mu.Lock()
		if f.conn != nil {
			_ = f.conn.Close()
		}
		f.mu.Unlock()
	}()

	for {
		f.read(conn, handler)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		f.setState(feed.Connecting)
		next, err := f.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("feed reconnect abandoned", "err", err)
			}
			return
		}
		f.mu.Lock()
		if ctx.Err() != nil {
			f.mu.Unlock()
			_ = next.Close()
			return
		}
		f.conn = next
		f.state = feed.Subscribed
		f.mu.Unlock()
		conn = next
	}
}

func (f *Feed) read(conn *websocket.Conn, handler feed.Handler) {
	for {
		var ev feedEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				slog.Debug("feed read ended", "err", err)
			}
			return
		}
		if ev.Type != "insert" {
			continue
		}
		handler(ev.Notification.Notification)
	}
}

func (f *Feed) reconnect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	var conn *websocket.Conn
	op := func() error {
		c, err := f.dial(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrForbidden) {
				return backoff.Permanent(err)
			}
			slog.Debug("feed reconnect failed", "err", err)
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// Stop closes the socket and waits for the reader to exit, or for a dial in
// progress to give up. No handler call happens after Stop returns. It must not
// be called from inside the handler.
func (f *Feed) Stop() {
	f.mu.Lock()
	if f.cancel == nil {
		f.mu.Unlock()
		return
	}
	f.cancel()
	if f.conn != nil {
		_ = f.conn.Close()
	}
	done := f.done
	f.cancel, f.conn = nil, nil
	f.mu.Unlock()

	<-done
}

func (f *Feed) State() feed.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed) setState(s feed.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}
