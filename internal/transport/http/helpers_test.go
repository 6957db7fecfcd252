package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/ratelimit"
	"github.com/vovakirdan/roomchat/internal/store/sqlite"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	ts      *httptest.Server
	hub     *core.Hub
	auth    *auth.Service
	store   *sqlite.SQLiteStore
	// stopHub ends hub.Run, closing every session.
	stopHub context.CancelFunc
}

type envOption func(*core.HubConfig, *Deps)

func withLimiter(l ratelimit.Limiter) envOption {
	return func(_ *core.HubConfig, d *Deps) { d.Limiter = l }
}

func withHistory(n int) envOption {
	return func(c *core.HubConfig, _ *Deps) { c.Dispatch.HistoryLimit = n }
}

// newTestEnv starts a server backed by an in-memory SQLite store.
// History replay is off unless withHistory is given.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret: []byte(testJWTSecret),
		Issuer: "test",
		TTL:    time.Hour,
	})

	dispatch := core.DefaultDispatchOptions()
	dispatch.HistoryLimit = 0
	dispatch.Location = time.UTC
	hubCfg := core.HubConfig{DefaultRoom: "general", QueueSize: 16, Dispatch: dispatch}
	deps := Deps{Auth: authService, Messages: st, Location: time.UTC}
	for _, opt := range opts {
		opt(&hubCfg, &deps)
	}

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(st, authService, hubCfg, &disabledLogger)
	deps.Hub = hub

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Default()
	server := NewServer(&cfg, deps, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authService, store: st, stopHub: cancel}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	token, err := e.auth.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return token
}

// testOutbound mirrors proto.Outbound with raw data for typed decoding.
type testOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s: %v", typ, err)
		}
		raw = payload
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) testOutbound {
	t.Helper()
	var out testOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return out
}

// readEvent reads frames until an event named name arrives.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) testOutbound {
	t.Helper()
	for {
		out := read(t, ctx, conn)
		if out.Type == proto.OutboundTypeEvent && out.Event == name {
			return out
		}
	}
}

// readError reads frames until an error frame arrives.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()
	for {
		out := read(t, ctx, conn)
		if out.Type == proto.OutboundTypeError {
			if out.Error == nil {
				t.Fatalf("error frame without error body")
			}
			return out.Error
		}
	}
}

// connect dials, sends hello with token and waits for the welcome event.
func (e *testEnv) connect(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()
	conn := dial(t, ctx, e.wsURL())
	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{Token: token, Protocol: proto.ProtocolVersion})
	readEvent(t, ctx, conn, proto.EventWelcome)
	return conn
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
