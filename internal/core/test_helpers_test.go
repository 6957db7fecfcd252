package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/roomchat/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drainKind returns every queued event of kind without waiting.
func drainKind(ch <-chan *Event, kind EventKind) []*Event {
	var out []*Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			if ev != nil && ev.Kind == kind {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

// memStore is an in-memory store.MessageStore with failure injection.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []*store.Message
	failWith error
	// onList runs at the start of ListMessages, outside the store lock.
	onList func()
}

func (m *memStore) AppendMessage(_ context.Context, room, author, body string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, &store.StorageError{Op: "insert message", Err: m.failWith}
	}
	m.nextID++
	msg := &store.Message{
		ID:        m.nextID,
		Room:      room,
		Author:    author,
		Body:      body,
		CreatedAt: time.Now(),
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *memStore) ListMessages(_ context.Context, room string, limit int, order store.Order) ([]*store.Message, error) {
	if m.onList != nil {
		m.onList()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*store.Message
	for _, msg := range m.messages {
		if msg.Room == room {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	if order == store.OrderDesc {
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	}
	return out, nil
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *memStore) rows(room string) []*store.Message {
	out, _ := m.ListMessages(context.Background(), room, 0, store.OrderAsc)
	return out
}

// staticAuth accepts a token equal to the username.
type staticAuth struct{}

var errBadToken = errors.New("bad token")

func (staticAuth) Authenticate(_ context.Context, creds Credentials) (Identity, error) {
	if creds.Token == "" || creds.Token == "invalid" {
		return Identity{}, errBadToken
	}
	return Identity{Username: creds.Token}, nil
}

func newTestSession(name string, reg *Registry) *Session {
	return NewSession(Identity{Username: name}, reg, 16)
}

func testDispatchOptions() DispatchOptions {
	opts := DefaultDispatchOptions()
	opts.HistoryLimit = 0
	return opts
}
