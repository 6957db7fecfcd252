package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage persists a chat message and delivers it to room members.
	CommandSendMessage CommandKind = iota
	// CommandTyping broadcasts a typing notice to room members.
	CommandTyping
	// CommandJoinRoom moves the session into a room.
	CommandJoinRoom
	// CommandLeaveRoom removes the session from its room.
	CommandLeaveRoom
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	Room string
	Body string
}
