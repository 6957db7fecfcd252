package core

import (
	"time"

	"github.com/vovakirdan/roomchat/internal/store"
)

// Message is the domain model for a chat message.
type Message struct {
	ID        int64
	Room      string
	From      string
	Text      string
	CreatedAt time.Time
	// Timestamp is CreatedAt rendered for display ("Today at 02:05 PM").
	Timestamp string
}

func messageFromStore(m *store.Message, timestamp string) Message {
	return Message{
		ID:        m.ID,
		Room:      m.Room,
		From:      m.Author,
		Text:      m.Body,
		CreatedAt: m.CreatedAt,
		Timestamp: timestamp,
	}
}
