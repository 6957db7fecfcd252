package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/ratelimit"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomchat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           *redis.Client
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	limiter, err := a.newLimiter(ctx, cfg.RateLimit)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	a.hub = core.NewHub(st, authService, core.HubConfig{
		DefaultRoom: cfg.Chat.DefaultRoom,
		QueueSize:   cfg.Chat.SessionQueueSize,
		Dispatch: core.DispatchOptions{
			EchoToSender:     cfg.Chat.EchoToSender,
			TrustPayloadRoom: cfg.Chat.TrustPayloadRoom,
			HistoryLimit:     cfg.Chat.HistoryLimit,
			MaxMessageLength: cfg.Chat.MaxMessageLength,
			Location:         loc,
			Now:              time.Now,
		},
	}, logger)

	a.server = transporthttp.NewServer(cfg, transporthttp.Deps{
		Hub:      a.hub,
		Auth:     authService,
		Messages: st,
		Limiter:  limiter,
		Location: loc,
	}, logger)

	return a, nil
}

// newLimiter picks the Redis limiter when an address is configured, the in-memory one otherwise.
func (a *App) newLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Limiter, error) {
	if cfg.MessagesPerMinute <= 0 {
		a.log.Info().Msg("inbound rate limiting disabled")
		return ratelimit.Unlimited{}, nil
	}
	if cfg.RedisAddr == "" {
		a.log.Info().Int("per_minute", cfg.MessagesPerMinute).Msg("in-memory rate limiter")
		return ratelimit.NewMemory(cfg.MessagesPerMinute, time.Minute), nil
	}

	client, err := ratelimit.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}
	a.redis = client
	a.log.Info().Str("redis_addr", cfg.RedisAddr).Int("per_minute", cfg.MessagesPerMinute).Msg("redis rate limiter")
	return ratelimit.NewRedis(client, cfg.KeyPrefix, cfg.MessagesPerMinute, time.Minute), nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Migrate applies the database schema and exits.
func Migrate(cfg *config.Config, logger *zerolog.Logger) error {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema applied")
	return st.Close()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
