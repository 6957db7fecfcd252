package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/utils"
)

// roomLockStripes bounds the number of per-room mutexes. Rooms hashing to the
// same stripe share ordering; a multi-node deployment would shard on the same key.
const roomLockStripes = 64

// DispatchOptions tune Dispatcher policy.
type DispatchOptions struct {
	// EchoToSender includes the sender in its own message and typing fan-out.
	EchoToSender bool
	// TrustPayloadRoom accepts the room named in the event even when the session
	// is not a member of it. When false the room must equal the session's room.
	TrustPayloadRoom bool
	// HistoryLimit is the number of messages replayed on join. 0 disables replay.
	HistoryLimit int
	// MaxMessageLength caps message bodies in runes. 0 means unlimited.
	MaxMessageLength int
	// Location is the timezone used to render timestamps.
	Location *time.Location
	// Now is the clock used to render timestamps.
	Now func() time.Time
}

// DefaultDispatchOptions mirrors the broadcast-to-everyone behaviour of a single chat room.
func DefaultDispatchOptions() DispatchOptions {
	return DispatchOptions{
		EchoToSender:     true,
		TrustPayloadRoom: false,
		HistoryLimit:     50,
		MaxMessageLength: 4000,
		Location:         time.Local,
		Now:              time.Now,
	}
}

// Dispatcher handles inbound events from sessions: it persists messages and fans
// them out to every session in the target room.
type Dispatcher struct {
	store    store.MessageStore
	registry *Registry
	opts     DispatchOptions
	log      zerolog.Logger

	locks [roomLockStripes]sync.Mutex
}

// NewDispatcher constructs a dispatcher. A nil logger disables logging.
func NewDispatcher(st store.MessageStore, registry *Registry, opts DispatchOptions, logger *zerolog.Logger) *Dispatcher {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "dispatcher").Logger()
	}
	return &Dispatcher{
		store:    st,
		registry: registry,
		opts:     opts,
		log:      log,
	}
}

// Handle routes cmd to the matching operation.
func (d *Dispatcher) Handle(ctx context.Context, s *Session, cmd *Command) error {
	if cmd == nil {
		return wrapCoreError(ErrCodeBadRequest, "empty command", ErrBadRequest)
	}
	switch cmd.Kind {
	case CommandSendMessage:
		return d.SendMessage(ctx, s, cmd.Room, cmd.Body)
	case CommandTyping:
		return d.Typing(ctx, s, cmd.Room)
	case CommandJoinRoom:
		return d.Join(ctx, s, cmd.Room)
	case CommandLeaveRoom:
		return d.Leave(ctx, s, cmd.Room)
	default:
		return coreError(ErrCodeUnknownType, fmt.Sprintf("unknown command kind %d", cmd.Kind))
	}
}

// SendMessage persists body in room and delivers it to the room's members.
// If persistence fails nothing is delivered and a storage_error is returned.
func (d *Dispatcher) SendMessage(ctx context.Context, s *Session, room, body string) error {
	if room == "" {
		return wrapCoreError(ErrCodeBadRequest, "room is required", ErrBadRequest)
	}
	if body == "" {
		return wrapCoreError(ErrCodeBadRequest, "message is required", ErrBadRequest)
	}
	if d.opts.MaxMessageLength > 0 && utf8.RuneCountInString(body) > d.opts.MaxMessageLength {
		return wrapCoreError(ErrCodeBadRequest, "message too long", ErrBadRequest)
	}
	if err := d.checkRoom(s, room); err != nil {
		return err
	}

	if d.store == nil {
		return storageFailure(errors.New("no message store configured"))
	}

	mu := d.roomLock(room)
	mu.Lock()
	defer mu.Unlock()

	stored, err := d.store.AppendMessage(ctx, room, s.Username(), body)
	if err != nil {
		d.log.Error().Err(err).Str("room", room).Str("user", s.Username()).Msg("persist message")
		return storageFailure(err)
	}

	msg := messageFromStore(stored, d.formatTime(stored.CreatedAt))
	delivered := d.fanOut(room, s, &Event{
		Kind:    EventReceiveMessage,
		Room:    room,
		User:    msg.From,
		Message: msg,
	})

	d.log.Debug().
		Int64("message_id", msg.ID).
		Str("room", room).
		Str("user", msg.From).
		Int("delivered", delivered).
		Msg("message broadcast")
	return nil
}

// Typing broadcasts a typing notice for the session's user. Nothing is persisted.
func (d *Dispatcher) Typing(_ context.Context, s *Session, room string) error {
	if room == "" {
		return wrapCoreError(ErrCodeBadRequest, "room is required", ErrBadRequest)
	}
	if err := d.checkRoom(s, room); err != nil {
		return err
	}

	mu := d.roomLock(room)
	mu.Lock()
	defer mu.Unlock()

	d.fanOut(room, s, &Event{
		Kind: EventUserTyping,
		Room: room,
		User: s.Username(),
	})
	return nil
}

// Join moves the session into room and replays recent history to it.
// A history read failure is logged; the join itself stands.
//
// The room lock is held from the membership change until the history is queued,
// so a concurrent message lands either in the history or live, never both, and
// live traffic never precedes the history.
func (d *Dispatcher) Join(ctx context.Context, s *Session, room string) error {
	if room == "" {
		return wrapCoreError(ErrCodeBadRequest, "room is required", ErrBadRequest)
	}

	mu := d.roomLock(room)
	mu.Lock()
	defer mu.Unlock()

	if err := d.registry.Join(room, s); err != nil {
		return err
	}
	d.log.Debug().Str("session_id", s.ID).Str("user", s.Username()).Str("room", room).Msg("joined room")

	if d.opts.HistoryLimit <= 0 || d.store == nil {
		return nil
	}

	stored, err := d.store.ListMessages(ctx, room, d.opts.HistoryLimit, store.OrderAsc)
	if err != nil {
		d.log.Warn().Err(err).Str("room", room).Msg("load history")
		return nil
	}

	messages := make([]Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, messageFromStore(m, d.formatTime(m.CreatedAt)))
	}
	if err := s.Send(&Event{Kind: EventHistory, Room: room, Messages: messages}); err != nil {
		d.log.Debug().Err(err).Str("session_id", s.ID).Msg("deliver history")
	}
	return nil
}

// Leave removes the session from room.
func (d *Dispatcher) Leave(_ context.Context, s *Session, room string) error {
	if room == "" {
		return wrapCoreError(ErrCodeBadRequest, "room is required", ErrBadRequest)
	}
	if !d.registry.Leave(room, s) {
		return wrapCoreError(ErrCodeNotInRoom, "not a member of "+room, ErrNotInRoom)
	}
	d.log.Debug().Str("session_id", s.ID).Str("user", s.Username()).Str("room", room).Msg("left room")
	return nil
}

func (d *Dispatcher) checkRoom(s *Session, room string) error {
	if d.opts.TrustPayloadRoom {
		return nil
	}
	if s.Room() != room {
		return wrapCoreError(ErrCodeNotInRoom, "not a member of "+room, ErrNotInRoom)
	}
	return nil
}

// fanOut delivers ev to every member of room and returns how many accepted it.
// A failing recipient is logged and skipped.
func (d *Dispatcher) fanOut(room string, sender *Session, ev *Event) int {
	delivered := 0
	for _, member := range d.registry.Members(room) {
		if member == sender && !d.opts.EchoToSender {
			continue
		}
		if err := member.Send(ev); err != nil {
			d.log.Debug().
				Err(wrapCoreError(ErrCodeDeliveryFailed, "deliver event", err)).
				Str("session_id", member.ID).
				Str("room", room).
				Msg("skipping recipient")
			continue
		}
		delivered++
	}
	return delivered
}

func (d *Dispatcher) roomLock(room string) *sync.Mutex {
	return &d.locks[xxhash.Sum64String(room)%roomLockStripes]
}

func (d *Dispatcher) formatTime(t time.Time) string {
	return utils.FormatTimestamp(t, d.opts.Now().In(d.opts.Location))
}

func storageFailure(err error) *CoreError {
	var se *store.StorageError
	if errors.As(err, &se) {
		return wrapCoreError(ErrCodeStorage, "failed to store message", se)
	}
	return wrapCoreError(ErrCodeStorage, "failed to store message", &store.StorageError{Op: "append message", Err: err})
}
