package feed

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a live listener.
	ErrAlreadyStarted = errors.New("listener already started")
	// ErrStopped is returned by Start when Stop ran while it was connecting.
	ErrStopped = errors.New("listener stopped while connecting")
)

// State is the lifecycle of one listener mount.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	}
	return "disconnected"
}

// Opener is the channel side of a hub.
type Opener interface {
	Open(filter Filter, handler Handler) (HandleID, error)
	Close(handle HandleID)
}

// Listener owns exactly one channel scoped to a recipient. It moves
// Disconnected -> Connecting -> Subscribed and back to Disconnected on Stop or
// when the Start context ends. A stopped listener can be started again.
type Listener struct {
	hub Opener

	mu          sync.Mutex
	state       State
	handle      HandleID
	stopCh      chan struct{}
	stopPending bool
	// connected is closed when a Start attempt leaves Connecting.
	connected chan struct{}
}

func NewListener(hub Opener) *Listener {
	return &Listener{hub: hub}
}

// Start opens the channel for userID. An empty userID leaves the listener
// disconnected and returns nil. If Stop runs while the channel is being
// opened, the channel is closed again and Start returns ErrStopped.
func (l *Listener) Start(ctx context.Context, userID string, handler Handler) error {
	if userID == "" {
		return nil
	}
	l.mu.Lock()
	if l.state != Disconnected {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.state = Connecting
	l.stopPending = false
	connected := make(chan struct{})
	l.connected = connected
	l.mu.Unlock()
	defer close(connected)

	handle, err := l.hub.Open(Filter{RecipientID: userID}, handler)

	l.mu.Lock()
	if err != nil {
		l.state, l.stopPending = Disconnected, false
		l.mu.Unlock()
		return err
	}
	if l.stopPending || ctx.Err() != nil {
		l.state, l.stopPending = Disconnected, false
		l.mu.Unlock()
		l.hub.Close(handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStopped
	}
	l.handle = handle
	l.state = Subscribed
	l.stopCh = make(chan struct{})
	go l.watch(ctx, l.stopCh)
	l.mu.Unlock()
	return nil
}

func (l *Listener) watch(ctx context.Context, stopCh chan struct{}) {
	select {
	case <-ctx.Done():
		l.Stop()
	case <-stopCh:
	}
}

// Stop releases the channel. While a Start is still connecting, Stop waits
// for it to finish and tear the channel down, so nothing stays open after Stop
// returns. It is safe to call more than once.
func (l *Listener) Stop() {
	l.mu.Lock()
	switch l.state {
	case Connecting:
		l.stopPending = true
		connected := l.connected
		l.mu.Unlock()
		<-connected
		return
	case Subscribed:
	default:
		l.mu.Unlock()
		return
	}
	handle := l.handle
	close(l.stopCh)
	l.handle, l.stopCh, l.state = "", nil, Disconnected
	l.mu.Unlock()

	l.hub.Close(handle)
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
