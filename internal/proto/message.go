package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello       = "hello"
	InboundTypeJoin        = "join"
	InboundTypeLeave       = "leave"
	InboundTypeSendMessage = "send_message"
	InboundTypeTyping      = "typing"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventWelcome        = "welcome"
	EventReceiveMessage = "receive_message"
	EventUserTyping     = "user_typing"
	EventHistory        = "history"
)

// HelloData is sent by the client to authenticate. Either Token or
// Username and Password must be set.
type HelloData struct {
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// RoomData names a room for join, leave and typing.
type RoomData struct {
	Room string `json:"room"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventWelcomeData confirms authentication.
type EventWelcomeData struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Room      string `json:"room,omitempty"`
}

// EventMessage is a persisted chat message as delivered to clients.
type EventMessage struct {
	ID        int64  `json:"id"`
	Room      string `json:"room"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// EventUserTypingData notifies that a user is typing in a room.
type EventUserTypingData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// EventHistoryData carries recent messages of a room, oldest first.
type EventHistoryData struct {
	Room     string         `json:"room"`
	Messages []EventMessage `json:"messages"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
