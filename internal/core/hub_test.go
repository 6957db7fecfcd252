package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestHub(t *testing.T) (*Hub, *memStore) {
	t.Helper()
	st := &memStore{}
	hub := NewHub(st, staticAuth{}, HubConfig{
		DefaultRoom: "general",
		QueueSize:   16,
		Dispatch:    testDispatchOptions(),
	}, nil)
	return hub, st
}

func TestHubConnectBroadcastAndDisconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub, st := newTestHub(t)

	alice, err := hub.Connect(ctx, Credentials{Token: "alice"})
	if err != nil {
		t.Fatalf("connect alice: %v", err)
	}
	bob, err := hub.Connect(ctx, Credentials{Token: "bob"})
	if err != nil {
		t.Fatalf("connect bob: %v", err)
	}

	welcome := mustEvent(t, bob.Events(), EventWelcome)
	if welcome.User != "bob" || welcome.Room != "general" || welcome.SessionID != bob.ID {
		t.Fatalf("unexpected welcome event: %+v", welcome)
	}
	if hub.Registry().Count("general") != 2 {
		t.Fatalf("expected 2 members in general, got %d", hub.Registry().Count("general"))
	}

	if err := hub.Handle(ctx, alice, &Command{Kind: CommandSendMessage, Room: "general", Body: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgEv := mustEvent(t, bob.Events(), EventReceiveMessage)
	if msgEv.Message.Text != "hi" || msgEv.Message.Room != "general" || msgEv.Message.From != "alice" {
		t.Fatalf("unexpected message event: %+v", msgEv)
	}
	if len(st.rows("general")) != 1 {
		t.Fatalf("expected one persisted row")
	}

	hub.Disconnect(alice)
	if hub.Registry().Contains("general", alice) {
		t.Fatalf("alice still registered after disconnect")
	}
	if hub.SessionCount() != 1 {
		t.Fatalf("expected 1 session, got %d", hub.SessionCount())
	}
}

func TestHubConnectRejectsInvalidCredentials(t *testing.T) {
	hub, _ := newTestHub(t)

	s, err := hub.Connect(context.Background(), Credentials{Token: "invalid"})
	if err == nil {
		t.Fatalf("expected error, got session %v", s)
	}
	if ErrorCode(err) != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !errors.Is(err, errBadToken) {
		t.Fatalf("expected wrapped authenticator error, got %v", err)
	}
	if hub.SessionCount() != 0 || hub.Registry().Count("general") != 0 {
		t.Fatalf("no session may exist after failed auth")
	}
}

func TestHubStorageErrorGoesToSenderOnly(t *testing.T) {
	ctx := context.Background()
	hub, st := newTestHub(t)

	alice, _ := hub.Connect(ctx, Credentials{Token: "alice"})
	bob, _ := hub.Connect(ctx, Credentials{Token: "bob"})
	st.fail(errors.New("io error"))

	err := hub.Handle(ctx, alice, &Command{Kind: CommandSendMessage, Room: "general", Body: "hi"})
	if ErrorCode(err) != ErrCodeStorage {
		t.Fatalf("expected storage_error, got %v", err)
	}

	ev := mustEvent(t, alice.Events(), EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeStorage {
		t.Fatalf("expected storage_error event, got %+v", ev)
	}
	if got := drainKind(bob.Events(), EventError); len(got) != 0 {
		t.Fatalf("bob must not see the error, got %d", len(got))
	}
	if got := drainKind(bob.Events(), EventReceiveMessage); len(got) != 0 {
		t.Fatalf("bob must not receive an unpersisted message")
	}
}

func TestHubSendToForeignRoomProducesError(t *testing.T) {
	ctx := context.Background()
	hub, _ := newTestHub(t)

	alice, _ := hub.Connect(ctx, Credentials{Token: "alice"})
	_ = hub.Handle(ctx, alice, &Command{Kind: CommandSendMessage, Room: "random", Body: "hi"})

	ev := mustEvent(t, alice.Events(), EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room error, got %+v", ev)
	}
}

func TestHubRunClosesSessionsOnShutdown(t *testing.T) {
	hub, _ := newTestHub(t)
	alice, _ := hub.Connect(context.Background(), Credentials{Token: "alice"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if !alice.Closed() {
		t.Fatalf("session should be closed on shutdown")
	}
	if hub.SessionCount() != 0 || hub.Registry().Count("general") != 0 {
		t.Fatalf("expected empty hub after shutdown")
	}
}
