package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/roomchat/internal/store"
)

// Schema is applied by Migrate. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room       TEXT NOT NULL,
	username   TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB

	// appendMu serializes message appends so id order and timestamp order agree.
	appendMu sync.Mutex
	lastTS   time.Time
	now      func() time.Time
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits before setup
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.loadLastTimestamp(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadLastTimestamp seeds the append clock from stored rows so timestamps stay
// monotonic across restarts.
func (s *SQLiteStore) loadLastTimestamp(ctx context.Context) error {
	var last time.Time
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM messages ORDER BY created_at DESC LIMIT 1`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("load last message timestamp: %w", err)
	}
	s.lastTS = last.UTC()
	return nil
}

// Migrate applies Schema to db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, store.ErrUserExists
		}
		return nil, &store.StorageError{Op: "insert user", Err: err}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, &store.StorageError{Op: "get last insert id", Err: err}
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, &store.StorageError{Op: "query user", Err: err}
	}
	return &user, nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message inside a transaction. Appends are serialized
// and timestamps never go backwards, so ids and created_at agree.
func (s *SQLiteStore) AppendMessage(ctx context.Context, room, author, body string) (*store.Message, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	createdAt := s.now().UTC()
	if createdAt.Before(s.lastTS) {
		createdAt = s.lastTS
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &store.StorageError{Op: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO messages (room, username, body, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query, room, author, body, createdAt)
	if err != nil {
		return nil, &store.StorageError{Op: "insert message", Err: err}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, &store.StorageError{Op: "get last insert id", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &store.StorageError{Op: "commit message", Err: err}
	}
	s.lastTS = createdAt

	return &store.Message{
		ID:        id,
		Room:      room,
		Author:    author,
		Body:      body,
		CreatedAt: createdAt,
	}, nil
}

// ListMessages retrieves messages of a room ordered by id.
// With OrderAsc and a limit, the most recent `limit` messages are returned oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, room string, limit int, order store.Order) ([]*store.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means no limit
	}

	query := `
		SELECT id, room, username, body, created_at
		FROM messages
		WHERE room = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, &store.StorageError{Op: "query messages", Err: err}
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.Author, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, &store.StorageError{Op: "scan message", Err: err}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.StorageError{Op: "iterate messages", Err: err}
	}

	if order == store.OrderAsc {
		// Reverse to get chronological order
		for i := range len(messages) / 2 {
			j := len(messages) - 1 - i
			messages[i], messages[j] = messages[j], messages[i]
		}
	}

	return messages, nil
}
