package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/planboard/notify/internal/domain"
	"github.com/planboard/notify/internal/pkg/endpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

// memStore keys rows by endpoint hash like the table does.
type memStore struct {
	mu   sync.Mutex
	rows map[string]domain.PushSubscription
}

func newMemStore() *memStore { return &memStore{rows: map[string]domain.PushSubscription{}} }

func (m *memStore) Upsert(_ context.Context, s *domain.PushSubscription) (*domain.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.EndpointHash = endpoint.Hash(s.Endpoint)
	m.rows[cp.EndpointHash] = cp
	return &cp, nil
}

func (m *memStore) DeleteOwned(_ context.Context, userID, ep string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[endpoint.Hash(ep)]
	if ok && row.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.rows, endpoint.Hash(ep))
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]domain.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PushSubscription
	for _, s := range m.rows {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

type mockStore struct{ mock.Mock }

func (m *mockStore) Upsert(ctx context.Context, s *domain.PushSubscription) (*domain.PushSubscription, error) {
	args := m.Called(ctx, s)
	if out, _ := args.Get(0).(*domain.PushSubscription); out != nil {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) DeleteOwned(ctx context.Context, userID, ep string) error {
	return m.Called(ctx, userID, ep).Error(0)
}
func (m *mockStore) ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.PushSubscription), args.Error(1)
}

// --- helpers ---

const ep = "https://fcm.googleapis.com/fcm/send/device-1"

func validReq() domain.SaveSubscriptionRequest {
	return domain.SaveSubscriptionRequest{
		Endpoint: ep,
		Keys:     domain.SubscriptionKeys{P256dh: "BPk...", Auth: "x9..."},
	}
}

// --- tests ---

func TestSave_Resubscribe_SingleRow(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "pub")

	_, err := svc.Save(context.Background(), validReq(), "u1")
	require.NoError(t, err)
	req := validReq()
	req.Keys.Auth = "rotated"
	saved, err := svc.Save(context.Background(), req, "u1")
	require.NoError(t, err)

	assert.Len(t, store.rows, 1)
	assert.Equal(t, "rotated", saved.AuthKey)
}

func TestSave_ConcurrentTabs_SingleRow(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "pub")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Save(context.Background(), validReq(), "u1")
		}()
	}
	wg.Wait()

	assert.Len(t, store.rows, 1)
}

func TestSave_EmptyKeys_ValidationError(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, "pub")

	req := validReq()
	req.Keys.P256dh = "   "
	_, err := svc.Save(context.Background(), req, "u1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestSave_MissingOwner_ValidationError(t *testing.T) {
	store := &mockStore{}
	_, err := NewService(store, "pub").Save(context.Background(), validReq(), "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestSave_StoreFailure(t *testing.T) {
	store := &mockStore{}
	store.On("Upsert", mock.Anything, mock.Anything).Return(nil, domain.ErrTransport)

	_, err := NewService(store, "pub").Save(context.Background(), validReq(), "u1")

	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestRemove_Idempotent(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "pub")
	_, err := svc.Save(context.Background(), validReq(), "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(context.Background(), "u1", ep))
	require.NoError(t, svc.Remove(context.Background(), "u1", ep))
	require.NoError(t, svc.Remove(context.Background(), "u1", "https://never.registered/x"))
	assert.Empty(t, store.rows)
}

func TestRemove_OtherUsersEndpointKept(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "pub")
	_, err := svc.Save(context.Background(), validReq(), "u1")
	require.NoError(t, err)

	err = svc.Remove(context.Background(), "u2", ep)

	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Len(t, store.rows, 1)
}

func TestRemove_EmptyEndpoint(t *testing.T) {
	err := NewService(newMemStore(), "pub").Remove(context.Background(), "u1", "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestRemove_MissingOwner(t *testing.T) {
	err := NewService(newMemStore(), "pub").Remove(context.Background(), "", ep)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestServerPublicKey(t *testing.T) {
	key, ok := NewService(newMemStore(), "BEl62iUYgUivxIkv69yViEuiBIa").ServerPublicKey()
	assert.True(t, ok)
	assert.Equal(t, "BEl62iUYgUivxIkv69yViEuiBIa", key)

	key, ok = NewService(newMemStore(), "").ServerPublicKey()
	assert.False(t, ok)
	assert.Empty(t, key)
}
