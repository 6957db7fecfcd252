package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUserExists is returned when a username is already taken.
var ErrUserExists = errors.New("username already taken")

// User represents a registered user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Message represents a persisted chat message.
// Rooms are plain string keys; a room exists only through its messages.
type Message struct {
	ID        int64
	Room      string
	Author    string
	Body      string
	CreatedAt time.Time
}

// Order selects the direction of message listings.
type Order int

const (
	// OrderAsc lists messages oldest first.
	OrderAsc Order = iota
	// OrderDesc lists messages most recent first.
	OrderDesc
)

// ParseOrder maps "asc"/"desc" to an Order. Anything else falls back to OrderAsc.
func ParseOrder(s string) Order {
	if s == "desc" {
		return OrderDesc
	}
	return OrderAsc
}

// StorageError reports a persistence I/O failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	// Returns ErrUserExists when the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage assigns an ID and timestamp and durably persists a message.
	// Concurrent appends are serialized; IDs are strictly increasing.
	AppendMessage(ctx context.Context, room, author, body string) (*Message, error)

	// ListMessages returns messages of a room in the requested order.
	// A limit <= 0 returns every message of the room.
	ListMessages(ctx context.Context, room string, limit int, order Order) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
