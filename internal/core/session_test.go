package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSendDropsOldestWhenFull(t *testing.T) {
	reg := NewRegistry()
	s := NewSession(Identity{Username: "alice"}, reg, 2)

	for _, user := range []string{"1", "2", "3"} {
		require.NoError(t, s.Send(&Event{Kind: EventUserTyping, User: user}))
	}

	assert.Equal(t, uint64(1), s.Dropped())
	first := <-s.Events()
	second := <-s.Events()
	assert.Equal(t, "2", first.User)
	assert.Equal(t, "3", second.User)
}

func TestSessionSendNeverBlocks(t *testing.T) {
	reg := NewRegistry()
	s := NewSession(Identity{Username: "alice"}, reg, 1)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = s.Send(&Event{Kind: EventUserTyping})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.Events(), 1)
	assert.Equal(t, uint64(799), s.Dropped())
}

func TestSessionCloseLeavesRoomAndStopsDelivery(t *testing.T) {
	reg := NewRegistry()
	s := newTestSession("alice", reg)
	require.NoError(t, s.Open("general"))
	require.True(t, reg.Contains("general", s))

	s.Close()

	assert.False(t, reg.Contains("general", s))
	assert.Equal(t, 0, reg.Count("general"))
	assert.True(t, s.Closed())
	assert.ErrorIs(t, s.Send(&Event{Kind: EventUserTyping}), ErrSessionClosed)

	_, open := <-s.Events()
	assert.False(t, open, "events channel must be closed")
	select {
	case <-s.Done():
	default:
		t.Fatal("done channel must be closed")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	s := newTestSession("alice", reg)
	require.NoError(t, s.Open("general"))

	s.Close()
	assert.NotPanics(t, s.Close)
}

func TestSessionCloseRacesWithSend(t *testing.T) {
	reg := NewRegistry()
	s := newTestSession("alice", reg)
	require.NoError(t, s.Open("general"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 1000 {
			_ = s.Send(&Event{Kind: EventUserTyping})
		}
	}()
	go func() {
		defer wg.Done()
		s.Close()
	}()
	wg.Wait()

	assert.ErrorIs(t, s.Send(&Event{}), ErrSessionClosed)
	assert.False(t, reg.Contains("general", s))
}
