package core

import (
	"sync"
	"time"

	"github.com/vovakirdan/roomchat/internal/utils"
)

// DefaultQueueSize is the outbound queue capacity used when none is configured.
const DefaultQueueSize = 64

// Session is one authenticated, currently open connection as seen by the core.
//
// Outbound events go through a bounded queue. When the queue is full the oldest
// pending event is discarded so Send never blocks the dispatcher.
type Session struct {
	ID        string
	Identity  Identity
	CreatedAt time.Time

	registry *Registry

	mu      sync.Mutex
	room    string
	closed  bool
	events  chan *Event
	done    chan struct{}
	dropped uint64
}

// NewSession constructs a session bound to registry. It is not in any room until Open.
func NewSession(identity Identity, registry *Registry, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Session{
		ID:        utils.NewID(),
		Identity:  identity,
		CreatedAt: time.Now(),
		registry:  registry,
		events:    make(chan *Event, queueSize),
		done:      make(chan struct{}),
	}
}

// Username returns the authenticated username.
func (s *Session) Username() string {
	return s.Identity.Username
}

// Room returns the room the session currently belongs to, or "".
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Open registers the session in its initial room.
func (s *Session) Open(room string) error {
	return s.registry.Join(room, s)
}

// Send enqueues ev for delivery without blocking.
// Returns ErrSessionClosed once the session is closed.
func (s *Session) Send(ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	for {
		select {
		case s.events <- ev:
			return nil
		default:
		}
		// Queue full: drop the oldest pending event and retry.
		select {
		case <-s.events:
			s.dropped++
		default:
		}
	}
}

// Events is drained by the connection's writer. It is closed by Close.
func (s *Session) Events() <-chan *Event {
	return s.events
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Dropped returns how many queued events were discarded because the queue was full.
func (s *Session) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops delivery and removes the session from its room. Safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	room := s.room
	close(s.events)
	close(s.done)
	s.mu.Unlock()

	if room != "" {
		s.registry.Leave(room, s)
	}
}
