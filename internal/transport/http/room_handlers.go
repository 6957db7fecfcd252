package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/utils"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	historyReadTimeout  = 5 * time.Second
)

// RoomHandlers provides HTTP handlers for room endpoints.
type RoomHandlers struct {
	registry *core.Registry
	messages store.MessageStore
	loc      *time.Location
	now      func() time.Time
	log      *zerolog.Logger

	// reads coalesces identical concurrent history queries.
	reads singleflight.Group
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(registry *core.Registry, messages store.MessageStore, loc *time.Location, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		registry: registry,
		messages: messages,
		loc:      loc,
		now:      time.Now,
		log:      logger,
	}
}

// RoomResponse represents an active room in API responses.
type RoomResponse struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// MessageResponse represents a stored message in API responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Room      string `json:"room"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	CreatedAt string `json:"created_at"`
}

// MessagesResponse is the body of a room history listing.
type MessagesResponse struct {
	Room     string            `json:"room"`
	Messages []MessageResponse `json:"messages"`
}

// ListRooms lists rooms that currently have connected members.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms := h.registry.Rooms()
	response := make([]RoomResponse, 0, len(rooms))
	for _, name := range rooms {
		response = append(response, RoomResponse{Name: name, Members: h.registry.Count(name)})
	}
	c.JSON(http.StatusOK, response)
}

// ListMessages returns stored messages of a room.
// GET /api/rooms/:room/messages?limit=N&order=asc|desc
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	room := strings.TrimSpace(c.Param("room"))
	if room == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room is required"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	orderParam := strings.ToLower(c.DefaultQuery("order", "asc"))
	if orderParam != "asc" && orderParam != "desc" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "order must be asc or desc"})
		return
	}

	key := fmt.Sprintf("%q|%d|%s", room, limit, orderParam)
	v, err, _ := h.reads.Do(key, func() (any, error) {
		// The read is shared by every coalesced caller, so it must not die with the first one's request.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), historyReadTimeout)
		defer cancel()
		return h.messages.ListMessages(ctx, room, limit, store.ParseOrder(orderParam))
	})
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	msgs := v.([]*store.Message)
	now := h.now().In(h.loc)
	response := MessagesResponse{Room: room, Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		response.Messages = append(response.Messages, MessageResponse{
			ID:        m.ID,
			Room:      m.Room,
			Username:  m.Author,
			Message:   m.Body,
			Timestamp: utils.FormatTimestamp(m.CreatedAt, now),
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, response)
}
