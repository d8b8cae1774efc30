package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/planboard/notify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

// memStore mimics the table semantics: ownership check on update and
// read_at = if_not_exists(read_at, now).
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]*domain.Notification
	failAll error
}

func newMemStore() *memStore { return &memStore{rows: map[int64]*domain.Notification{}} }

func (m *memStore) NextID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

func (m *memStore) Put(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.rows[n.ID] = &cp
	return nil
}

func (m *memStore) ListRecent(_ context.Context, recipientID string, limit int32) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.rows {
		if n.RecipientID == recipientID {
			out = append(out, *n)
		}
	}
	// Deliberately unordered and over the limit; the service must fix both.
	_ = limit
	return out, nil
}

func (m *memStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := 0
	for _, n := range m.rows {
		if n.RecipientID == recipientID && n.ReadAt == nil {
			c++
		}
	}
	return c, nil
}

func (m *memStore) UnreadIDs(_ context.Context, recipientID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, n := range m.rows {
		if n.RecipientID == recipientID && n.ReadAt == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) MarkRead(_ context.Context, recipientID string, id int64, at time.Time) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.RecipientID != recipientID {
		return nil, fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
	}
	if n.ReadAt == nil {
		t := at
		n.ReadAt = &t
	}
	cp := *n
	return &cp, nil
}

func (m *memStore) MarkAllRead(_ context.Context, recipientID string, ids []int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	for _, id := range ids {
		if n, ok := m.rows[id]; ok && n.RecipientID == recipientID && n.ReadAt == nil {
			t := at
			n.ReadAt = &t
		}
	}
	return nil
}

type mockPrefStore struct{ mock.Mock }

func (m *mockPrefStore) Get(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	args := m.Called(ctx, userID)
	if p, _ := args.Get(0).(*domain.NotificationPreference); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPrefStore) SetEnabled(ctx context.Context, userID string, enabled bool) (*domain.NotificationPreference, error) {
	args := m.Called(ctx, userID, enabled)
	if p, _ := args.Get(0).(*domain.NotificationPreference); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingPublisher struct{ got []domain.Notification }

func (r *recordingPublisher) Publish(n domain.Notification) { r.got = append(r.got, n) }

// --- helpers ---

var base = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newSvc(store *memStore, prefs *mockPrefStore, pub Publisher, c *clock) Service {
	deps := ServiceDeps{Repo: store, PreferenceRepo: prefs, Clock: c.now}
	if pub != nil {
		deps.Publisher = pub
	}
	return NewService(deps)
}

func seed(t *testing.T, svc Service, c *clock, recipient string, n int) []*domain.Notification {
	t.Helper()
	var out []*domain.Notification
	for i := 0; i < n; i++ {
		c.t = base.Add(time.Duration(i) * time.Minute)
		created, err := svc.Create(context.Background(), domain.CreateNotificationRequest{
			RecipientID: recipient,
			Title:       fmt.Sprintf("n%d", i),
		})
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

// --- tests ---

func TestCreate_AssignsIDAndPublishes(t *testing.T) {
	store, pub, c := newMemStore(), &recordingPublisher{}, &clock{t: base}
	svc := newSvc(store, &mockPrefStore{}, pub, c)

	n, err := svc.Create(context.Background(), domain.CreateNotificationRequest{RecipientID: "u1", Title: "New comment"})

	require.NoError(t, err)
	assert.Equal(t, int64(1), n.ID)
	assert.Equal(t, base, n.CreatedAt)
	assert.Nil(t, n.ReadAt)
	require.Len(t, pub.got, 1)
	assert.Equal(t, n.ID, pub.got[0].ID)
}

func TestCreate_ValidationFailure(t *testing.T) {
	store := newMemStore()
	svc := newSvc(store, &mockPrefStore{}, nil, &clock{t: base})

	_, err := svc.Create(context.Background(), domain.CreateNotificationRequest{RecipientID: "u1"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, store.rows)
}

func TestListRecent_CappedAndNewestFirst(t *testing.T) {
	store, c := newMemStore(), &clock{}
	svc := newSvc(store, &mockPrefStore{}, nil, c)
	seed(t, svc, c, "u1", 15)
	seed(t, svc, c, "u2", 3)

	items, err := svc.ListRecent(context.Background(), "u1", 10)

	require.NoError(t, err)
	require.Len(t, items, 10)
	for i := 1; i < len(items); i++ {
		assert.True(t, items[i-1].CreatedAt.After(items[i].CreatedAt), "entries must be strictly descending")
	}
	assert.Equal(t, "n14", items[0].Title)
	for _, n := range items {
		assert.Equal(t, "u1", n.RecipientID)
	}
}

func TestListRecent_LimitClamped(t *testing.T) {
	assert.Equal(t, DefaultLimit, clampLimit(0))
	assert.Equal(t, DefaultLimit, clampLimit(-3))
	assert.Equal(t, MaxLimit, clampLimit(500))
	assert.Equal(t, 5, clampLimit(5))
}

func TestMarkRead_SetsReadAtOnce(t *testing.T) {
	store, c := newMemStore(), &clock{}
	svc := newSvc(store, &mockPrefStore{}, nil, c)
	n := seed(t, svc, c, "u1", 1)[0]

	c.t = base.Add(time.Hour)
	first, err := svc.MarkRead(context.Background(), "u1", n.ID)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)
	assert.Equal(t, base.Add(time.Hour), *first.ReadAt)

	for i := 0; i < 3; i++ {
		c.t = c.t.Add(time.Hour)
		again, err := svc.MarkRead(context.Background(), "u1", n.ID)
		require.NoError(t, err)
		require.NotNil(t, again.ReadAt)
		assert.Equal(t, *first.ReadAt, *again.ReadAt, "read_at must never move")
	}
}

func TestMarkRead_OtherOwner_NotFound(t *testing.T) {
	store, c := newMemStore(), &clock{}
	svc := newSvc(store, &mockPrefStore{}, nil, c)
	n := seed(t, svc, c, "u1", 1)[0]

	_, err := svc.MarkRead(context.Background(), "intruder", n.ID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Nil(t, store.rows[n.ID].ReadAt)
}

func TestMarkRead_InvalidID(t *testing.T) {
	svc := newSvc(newMemStore(), &mockPrefStore{}, nil, &clock{})
	_, err := svc.MarkRead(context.Background(), "u1", 0)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestMarkAllRead_ThreeUnread(t *testing.T) {
	store, c := newMemStore(), &clock{}
	svc := newSvc(store, &mockPrefStore{}, nil, c)
	seed(t, svc, c, "u1", 3)
	other := seed(t, svc, c, "u2", 1)[0]

	require.NoError(t, svc.MarkAllRead(context.Background(), "u1"))

	count, err := svc.UnreadCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	for _, n := range store.rows {
		if n.RecipientID == "u1" {
			assert.NotNil(t, n.ReadAt)
		}
	}
	assert.Nil(t, store.rows[other.ID].ReadAt)
}

func TestMarkAllRead_NothingUnread_NoWrite(t *testing.T) {
	store := newMemStore()
	store.failAll = errors.New("must not be called")
	svc := newSvc(store, &mockPrefStore{}, nil, &clock{})

	assert.NoError(t, svc.MarkAllRead(context.Background(), "u1"))
}

func TestMarkAllRead_FailureReported(t *testing.T) {
	store, c := newMemStore(), &clock{}
	svc := newSvc(store, &mockPrefStore{}, nil, c)
	seed(t, svc, c, "u1", 2)
	store.failAll = fmt.Errorf("mark all read: %w", domain.ErrTransport)

	err := svc.MarkAllRead(context.Background(), "u1")

	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestSetMute_ReturnsStoredPreference(t *testing.T) {
	prefs := &mockPrefStore{}
	prefs.On("SetEnabled", mock.Anything, "u1", false).
		Return(&domain.NotificationPreference{UserID: "u1", NotificationsEnabled: false}, nil)
	svc := newSvc(newMemStore(), prefs, nil, &clock{})

	p, err := svc.SetMute(context.Background(), "u1", false)

	require.NoError(t, err)
	assert.True(t, p.Muted())
	prefs.AssertExpectations(t)
}

func TestSummary(t *testing.T) {
	store, c := newMemStore(), &clock{}
	prefs := &mockPrefStore{}
	prefs.On("Get", mock.Anything, "u1").Return(&domain.NotificationPreference{UserID: "u1"}, nil)
	svc := newSvc(store, prefs, nil, c)
	seed(t, svc, c, "u1", 3)

	s, err := svc.Summary(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, 3, s.UnreadCount)
	assert.True(t, s.IsMuted)
}

func TestSummary_PreferenceFailure(t *testing.T) {
	prefs := &mockPrefStore{}
	prefs.On("Get", mock.Anything, "u1").Return(nil, domain.ErrTransport)
	svc := newSvc(newMemStore(), prefs, nil, &clock{})

	_, err := svc.Summary(context.Background(), "u1")

	assert.True(t, errors.Is(err, domain.ErrTransport))
}
