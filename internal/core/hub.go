package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/store"
)

// HubConfig configures session defaults and dispatch policy.
type HubConfig struct {
	// DefaultRoom is joined by every new session. Empty means no initial room.
	DefaultRoom string
	// QueueSize is the per-session outbound queue capacity.
	QueueSize int
	Dispatch  DispatchOptions
}

// Hub owns the live sessions, the room registry and the dispatcher.
type Hub struct {
	authn      Authenticator
	registry   *Registry
	dispatcher *Dispatcher
	cfg        HubConfig
	log        zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub creates a new chat hub instance.
func NewHub(st store.MessageStore, authn Authenticator, cfg HubConfig, logger *zerolog.Logger) *Hub {
	registry := NewRegistry()
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "hub").Logger()
	}
	return &Hub{
		authn:      authn,
		registry:   registry,
		dispatcher: NewDispatcher(st, registry, cfg.Dispatch, logger),
		cfg:        cfg,
		log:        log,
		sessions:   make(map[string]*Session),
	}
}

// Registry exposes room membership for introspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Authenticate verifies creds. Failures are returned as unauthorized CoreErrors.
func (h *Hub) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	if h.authn == nil {
		return Identity{}, coreError(ErrCodeUnauthorized, "no authenticator configured")
	}
	id, err := h.authn.Authenticate(ctx, creds)
	if err != nil {
		return Identity{}, wrapCoreError(ErrCodeUnauthorized, "authentication failed", err)
	}
	if strings.TrimSpace(id.Username) == "" {
		return Identity{}, coreError(ErrCodeUnauthorized, "authenticator returned empty identity")
	}
	return id, nil
}

// Connect authenticates creds and, on success, creates a session, sends it a
// welcome event and joins the default room.
func (h *Hub) Connect(ctx context.Context, creds Credentials) (*Session, error) {
	id, err := h.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}

	s := NewSession(id, h.registry, h.cfg.QueueSize)

	h.mu.Lock()
	h.sessions[s.ID] = s
	count := len(h.sessions)
	h.mu.Unlock()

	_ = s.Send(&Event{Kind: EventWelcome, SessionID: s.ID, User: id.Username, Room: h.cfg.DefaultRoom})

	if h.cfg.DefaultRoom != "" {
		if err := h.dispatcher.Join(ctx, s, h.cfg.DefaultRoom); err != nil {
			h.Disconnect(s)
			return nil, err
		}
	}

	h.log.Info().Str("session_id", s.ID).Str("user", id.Username).Int("sessions", count).Msg("session opened")
	return s, nil
}

// Disconnect closes s and forgets it. Safe to call more than once.
func (h *Hub) Disconnect(s *Session) {
	s.Close()

	h.mu.Lock()
	_, existed := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	count := len(h.sessions)
	h.mu.Unlock()

	if existed {
		h.log.Info().
			Str("session_id", s.ID).
			Str("user", s.Username()).
			Uint64("dropped", s.Dropped()).
			Int("sessions", count).
			Msg("session closed")
	}
}

// Handle executes cmd for s. Errors are also delivered to s as an error event.
func (h *Hub) Handle(ctx context.Context, s *Session, cmd *Command) error {
	err := h.dispatcher.Handle(ctx, s, cmd)
	if err == nil {
		return nil
	}
	if sendErr := s.Send(errorEvent(err)); sendErr != nil && !errors.Is(sendErr, ErrSessionClosed) {
		h.log.Warn().Err(sendErr).Str("session_id", s.ID).Msg("deliver error event")
	}
	return err
}

// Reject delivers err to s as an error event without running any command.
func (h *Hub) Reject(s *Session, err error) {
	_ = s.Send(errorEvent(err))
}

// SessionCount returns the number of open sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Run blocks until ctx is done, then closes every open session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Disconnect(s)
	}
	h.log.Info().Int("closed", len(sessions)).Msg("hub stopped")
}
