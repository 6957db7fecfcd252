package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/ratelimit"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "roomchat.db")
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)
	cfg.JWTSecret = ""

	_, err := New(context.Background(), &cfg, &logger)
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestAppServesHealthAndStops(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)

	a, err := New(context.Background(), &cfg, &logger)
	require.NoError(t, err)

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewLimiterSelection(t *testing.T) {
	logger := zerolog.Nop()
	a := &App{log: &logger}

	l, err := a.newLimiter(context.Background(), config.RateLimitConfig{MessagesPerMinute: 0})
	require.NoError(t, err)
	assert.IsType(t, ratelimit.Unlimited{}, l)

	l, err = a.newLimiter(context.Background(), config.RateLimitConfig{MessagesPerMinute: 10})
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.Memory{}, l)
}

func TestMigrate(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)

	require.NoError(t, Migrate(&cfg, &logger))
	// Idempotent.
	require.NoError(t, Migrate(&cfg, &logger))
}
