package logbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind tags what part of a supervised run an event describes.
type Kind string

const (
	KindStart  Kind = "start"
	KindStdout Kind = "stdout"
	KindStderr Kind = "stderr"
	KindEnd    Kind = "end"
)

// Event is one log record from a supervised stage run. Events are immutable
// once published and are never persisted.
type Event struct {
	Kind     Kind      `json:"kind"`
	Stage    string    `json:"stage"`
	Message  string    `json:"message,omitempty"`
	ExitCode int       `json:"exitCode"`
	Time     time.Time `json:"time"`
}

// Subscription is one live observer of the bus. Events arrive on C in
// publication order. Close the subscription with Bus.Unsubscribe.
type Subscription struct {
	ID uuid.UUID
	C  <-chan Event

	out     chan Event
	quit    chan struct{}
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	closed  bool
}

// Bus broadcasts events to any number of subscribers. Each subscriber has its
// own queue, so a slow consumer never blocks Publish or other subscribers.
// There is no history replay: a subscriber only sees events published after
// it subscribed.
type Bus struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

func New() *Bus {
	return &Bus{subs: make(map[uuid.UUID]*Subscription)}
}

// Subscribe registers a new observer and starts its delivery pump.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		ID:   uuid.New(),
		out:  make(chan Event),
		quit: make(chan struct{}),
	}
	s.C = s.out
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	b.subs[s.ID] = s
	b.mu.Unlock()

	go s.pump()
	return s
}

// Unsubscribe removes a subscriber and closes its channel. It is idempotent
// and safe to call from the subscriber's own teardown path.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.subs[s.ID]
	delete(b.subs, s.ID)
	b.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	// Wake the pump even when it is parked in a delivery send rather than
	// the cond wait: an abandoned subscriber must never pin its goroutine.
	close(s.quit)
}

// Publish appends the event to every current subscriber's queue. It never
// blocks on delivery.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		if !s.closed {
			s.pending = append(s.pending, e)
			s.cond.Signal()
		}
		s.mu.Unlock()
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// pump drains the pending queue into the outbound channel, preserving order.
// It exits as soon as the subscription closes, even mid-send.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			// The consumer is gone: drop whatever is still queued.
			s.pending = nil
			s.mu.Unlock()
			close(s.out)
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.quit:
			close(s.out)
			return
		}
	}
}
