package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/ratelimit"
	"github.com/vovakirdan/roomchat/internal/store"
)

// Deps are the collaborators served over HTTP.
type Deps struct {
	Hub      *core.Hub
	Auth     *auth.Service
	Messages store.MessageStore
	// Limiter throttles inbound WebSocket events. Nil disables limiting.
	Limiter ratelimit.Limiter
	// Location renders message timestamps in REST responses.
	Location *time.Location
}

// NewServer builds an HTTP server with the REST API and the WebSocket gateway.
func NewServer(cfg *config.Config, deps Deps, logger *zerolog.Logger) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	router.POST("/api/register", apiHandlers.Register)
	router.POST("/api/login", apiHandlers.Login)

	roomHandlers := NewRoomHandlers(deps.Hub.Registry(), deps.Messages, deps.Location, logger)
	protected := router.Group("/api", AuthMiddleware(deps.Auth, logger))
	protected.GET("/rooms", roomHandlers.ListRooms)
	protected.GET("/rooms/:room/messages", roomHandlers.ListMessages)

	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Hub, deps.Limiter, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
