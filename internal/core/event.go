package core

import "errors"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventWelcome confirms an authenticated session to its own connection.
	EventWelcome EventKind = iota
	// EventReceiveMessage delivers a persisted chat message to room members.
	EventReceiveMessage
	// EventUserTyping notifies room members that a user is typing.
	EventUserTyping
	// EventHistory delivers recent room messages to a session upon joining.
	EventHistory
	// EventError notifies the originating session about a failed operation.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	Room      string
	User      string
	SessionID string    // For EventWelcome
	Message   Message   // For EventReceiveMessage
	Messages  []Message // For EventHistory
	Error     *CoreError
}

func errorEvent(err error) *Event {
	var ce *CoreError
	if !errors.As(err, &ce) {
		ce = wrapCoreError(ErrCodeBadRequest, "request failed", err)
	}
	return &Event{Kind: EventError, Error: ce}
}
