package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/planboard/notify/internal/domain"
)

// ListCap is the number of notifications kept in the panel.
const ListCap = 10

// ErrBusy is returned when the same action is already in flight.
var ErrBusy = errors.New("action already in progress")

// PushUnavailableNotice is shown when the server has no push key pair.
const PushUnavailableNotice = "push notifications not configured"

// Seed carries the values computed server-side at page load.
type Seed struct {
	UnreadCount int
	IsMuted     bool
}

// View is a snapshot of the session state rendered by the UI.
type View struct {
	UnreadCount   int
	Notifications []domain.Notification
	IsMuted       bool
	Loaded        bool
	Notice        string
}

// Controller holds the badge, panel list and mute toggle for one signed-in
// user. All methods are safe for concurrent use.
type Controller struct {
	store    Store
	feed     Feed
	registry Registry
	userID   string
	now      func() time.Time

	mu          sync.Mutex
	unread      int
	items       []domain.Notification
	muted       bool
	loaded      bool
	loading     bool
	seen        map[int64]struct{}
	readLocally map[int64]time.Time
	markAllBusy bool
	muteBusy    bool
	generation  uint64
	mounted     bool
	notice      string
	lastErr     error
}

// Option configures a Controller.
type Option func(*Controller)

// WithRegistry enables the push subscribe flow.
func WithRegistry(r Registry) Option {
	return func(c *Controller) { c.registry = r }
}

// WithClock overrides the time source used for optimistic read_at values.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(store Store, feed Feed, seed Seed, userID string, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		feed:        feed,
		userID:      userID,
		now:         time.Now,
		unread:      max(seed.UnreadCount, 0),
		muted:       seed.IsMuted,
		seen:        make(map[int64]struct{}),
		readLocally: make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount opens the change feed. Without a signed-in user nothing is opened.
// If Unmount runs while the feed is still connecting, the feed is released
// again and Mount returns nil.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return nil
	}
	c.mounted = true
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if c.userID == "" {
		return nil
	}
	err := c.feed.Start(ctx, c.userID, c.handleEvent)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if err == nil {
			c.feed.Stop()
		}
		return nil
	}
	if err != nil {
		c.mounted = false
		c.lastErr = fmt.Errorf("open change feed: %w", err)
	}
	c.mu.Unlock()
	return err
}

// Unmount releases the change feed before returning. Results of calls still
// in flight are discarded.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	c.generation++
	c.mu.Unlock()

	if c.feed != nil {
		c.feed.Stop()
	}
}

// OpenPanel loads the recent list the first time it is called. Later calls
// reuse the cached list.
func (c *Controller) OpenPanel(ctx context.Context) error {
	c.mu.Lock()
	if c.loaded || c.loading {
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	gen := c.generation
	c.mu.Unlock()

	list, err := c.store.ListRecent(ctx, ListCap)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if gen != c.generation {
		return nil
	}
	if err != nil {
		c.lastErr = err
		return err
	}
	for i := range list {
		c.seen[list[i].ID] = struct{}{}
		if at, ok := c.readLocally[list[i].ID]; ok && list[i].ReadAt == nil {
			list[i].ReadAt = &at
		}
	}
	if len(list) > ListCap {
		list = list[:ListCap]
	}
	c.items = list
	c.loaded = true
	return nil
}

func (c *Controller) handleEvent(n domain.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted || c.muted {
		return
	}
	if _, dup := c.seen[n.ID]; dup {
		return
	}
	c.seen[n.ID] = struct{}{}
	c.unread++
	if !c.loaded {
		return
	}
	c.items = append([]domain.Notification{n}, c.items...)
	if len(c.items) > ListCap {
		c.items = c.items[:ListCap]
	}
}

// MarkRead marks one notification read locally, then in the store. A store
// failure leaves the local state as is and is kept in LastError.
func (c *Controller) MarkRead(ctx context.Context, id int64) error {
	c.mu.Lock()
	now := c.now().UTC()
	decrement := true
	for i := range c.items {
		if c.items[i].ID != id {
			continue
		}
		if c.items[i].IsRead() {
			decrement = false
		} else {
			c.items[i].ReadAt = &now
		}
		break
	}
	if _, already := c.readLocally[id]; already {
		decrement = false
	}
	if decrement && c.unread > 0 {
		c.unread--
	}
	c.readLocally[id] = now
	c.seen[id] = struct{}{}
	gen := c.generation
	c.mu.Unlock()

	if err := c.store.MarkRead(ctx, id); err != nil {
		c.fail(gen, err)
		return err
	}
	return nil
}

// MarkAllRead marks every local item read and zeroes the badge, then issues
// the bulk update. It returns ErrBusy while a previous call is in flight.
func (c *Controller) MarkAllRead(ctx context.Context) error {
	c.mu.Lock()
	if c.markAllBusy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.markAllBusy = true
	now := c.now().UTC()
	for i := range c.items {
		if c.items[i].ReadAt == nil {
			c.items[i].ReadAt = &now
		}
		c.readLocally[c.items[i].ID] = now
	}
	c.unread = 0
	gen := c.generation
	c.mu.Unlock()

	err := c.store.MarkAllRead(ctx)

	c.mu.Lock()
	c.markAllBusy = false
	c.mu.Unlock()
	if err != nil {
		c.fail(gen, err)
		return err
	}
	return nil
}

// ToggleMute flips the mute flag, then replaces it with the value the store
// returns. On failure the previous value is restored. It returns ErrBusy
// while a previous toggle is in flight.
func (c *Controller) ToggleMute(ctx context.Context) error {
	c.mu.Lock()
	if c.muteBusy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.muteBusy = true
	previous := c.muted
	c.muted = !previous
	gen := c.generation
	c.mu.Unlock()

	muted, err := c.store.SetMuted(ctx, !previous)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.muteBusy = false
	if gen != c.generation {
		return err
	}
	if err != nil {
		c.muted = previous
		c.lastErr = err
		return err
	}
	c.muted = muted
	return nil
}

// EnablePush subscribes this browser or device for push delivery. When the
// server has no key pair the call is a no-op that sets a notice instead of
// failing.
func (c *Controller) EnablePush(ctx context.Context, pm PushManager) error {
	if c.registry == nil {
		return fmt.Errorf("push registry: %w", domain.ErrUnsupported)
	}
	gen := c.currentGeneration()
	key, ok, err := c.registry.PublicKey(ctx)
	if err != nil {
		c.fail(gen, err)
		return err
	}
	if !ok {
		c.setNotice(gen, PushUnavailableNotice)
		slog.Info("push not configured on server", "user_id", c.userID)
		return nil
	}
	req, err := pm.Subscribe(ctx, key)
	if err != nil {
		c.fail(gen, err)
		return err
	}
	if err := c.registry.Subscribe(ctx, req); err != nil {
		c.fail(gen, err)
		return err
	}
	return nil
}

// DisablePush removes the subscription for endpoint.
func (c *Controller) DisablePush(ctx context.Context, endpoint string) error {
	if c.registry == nil {
		return fmt.Errorf("push registry: %w", domain.ErrUnsupported)
	}
	if err := c.registry.Unsubscribe(ctx, endpoint); err != nil {
		c.fail(c.currentGeneration(), err)
		return err
	}
	return nil
}

// View returns a copy of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]domain.Notification, len(c.items))
	copy(items, c.items)
	return View{
		UnreadCount:   c.unread,
		Notifications: items,
		IsMuted:       c.muted,
		Loaded:        c.loaded,
		Notice:        c.notice,
	}
}

// LastError returns the most recent store failure seen while mounted.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation {
		c.lastErr = err
	}
}

func (c *Controller) setNotice(gen uint64, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation {
		c.notice = msg
	}
}
