package feed

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/planboard/notify/internal/domain"
	"github.com/planboard/notify/internal/pkg/id"
)

// ErrHubClosed is returned by Open after Shutdown.
var ErrHubClosed = errors.New("feed hub closed")

// Handler receives one inserted notification.
type Handler func(n domain.Notification)

// HandleID identifies an open channel on the hub.
type HandleID string

// Filter selects the events a channel receives. An empty RecipientID matches
// every recipient and is reserved for server-side consumers such as the push
// dispatcher.
type Filter struct {
	RecipientID string
}

func (f Filter) matches(n domain.Notification) bool {
	return f.RecipientID == "" || f.RecipientID == n.RecipientID
}

// Hub fans insert events out to open channels. Each channel has its own
// delivery goroutine and unbounded queue, so a slow handler never blocks
// Publish and events reach a handler in the order they were published.
type Hub struct {
	mu       sync.RWMutex
	subs     map[HandleID]*subscriber
	warnSize int
	closed   bool
}

// NewHub creates a hub. backlogWarn is the queue length above which a
// channel is reported as lagging.
func NewHub(backlogWarn int) *Hub {
	if backlogWarn <= 0 {
		backlogWarn = 64
	}
	return &Hub{subs: make(map[HandleID]*subscriber), warnSize: backlogWarn}
}

// Open registers handler for events matching filter.
func (h *Hub) Open(filter Filter, handler Handler) (HandleID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrHubClosed
	}
	s := &subscriber{
		id:      HandleID(id.New("feed")),
		filter:  filter,
		handler: handler,
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	h.subs[s.id] = s
	go s.run()
	return s.id, nil
}

// Close releases the channel. When Close returns no further event is delivered
// to its handler. It must not be called from inside that handler.
func (h *Hub) Close(handle HandleID) {
	h.mu.Lock()
	s, ok := h.subs[handle]
	delete(h.subs, handle)
	h.mu.Unlock()
	if ok {
		s.shutdown()
	}
}

// Publish delivers n to every matching channel without blocking.
func (h *Hub) Publish(n domain.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.filter.matches(n) {
			continue
		}
		if backlog := s.enqueue(n); backlog == h.warnSize {
			slog.Warn("feed channel lagging", "handle", s.id, "recipient_id", s.filter.RecipientID, "backlog", backlog)
		}
	}
}

// Len returns the number of open channels.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Shutdown closes every channel and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[HandleID]*subscriber)
	h.mu.Unlock()
	for _, s := range subs {
		s.shutdown()
	}
}

type subscriber struct {
	id      HandleID
	filter  Filter
	handler Handler

	mu      sync.Mutex
	pending []domain.Notification
	signal  chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber) enqueue(n domain.Notification) int {
	s.mu.Lock()
	s.pending = append(s.pending, n)
	backlog := len(s.pending)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
	return backlog
}

func (s *subscriber) next() (domain.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return domain.Notification{}, false
	}
	n := s.pending[0]
	s.pending[0] = domain.Notification{}
	s.pending = s.pending[1:]
	return n, true
}

func (s *subscriber) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.signal:
		}
		for {
			n, ok := s.next()
			if !ok {
				break
			}
			select {
			case <-s.stop:
				return
			default:
			}
			s.handler(n)
		}
	}
}

func (s *subscriber) shutdown() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}
