package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/ratelimit"
)

const (
	helloTimeout  = 10 * time.Second
	rejectTimeout = time.Second
	maxFrameBytes = 64 << 10
)

// forgetter is implemented by limiters that keep per-key state in memory.
type forgetter interface {
	Forget(key string)
}

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	hub     *core.Hub
	limiter ratelimit.Limiter
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, limiter ratelimit.Limiter, logger *zerolog.Logger) stdhttp.Handler {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &WSHandler{hub: hub, limiter: limiter, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := h.handshake(ctx, conn, r)
	if err != nil {
		h.reject(ctx, conn, err)
		return
	}
	defer h.hub.Disconnect(session)
	if f, ok := h.limiter.(forgetter); ok {
		defer f.Forget(session.ID)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}

	_ = conn.Close(status, reason)
}

// handshake reads the hello frame and opens a session for its credentials.
// Nothing is registered with the hub unless authentication succeeds.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn, r *stdhttp.Request) (*core.Session, error) {
	helloCtx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(helloCtx, conn, &inbound); err != nil {
		return nil, core.NewError(core.ErrCodeBadRequest, "expected hello frame")
	}
	if inbound.Type != proto.InboundTypeHello {
		return nil, core.NewError(core.ErrCodeUnauthorized, "hello required before "+inbound.Type)
	}

	var hello proto.HelloData
	if len(inbound.Data) > 0 {
		if err := json.Unmarshal(inbound.Data, &hello); err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "malformed hello")
		}
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return nil, core.NewError(core.ErrCodeUnsupportedVersion,
			fmt.Sprintf("protocol %d not supported, server speaks %d", hello.Protocol, proto.ProtocolVersion))
	}

	creds := core.Credentials{
		Token:    hello.Token,
		Username: hello.Username,
		Password: hello.Password,
	}
	if creds.Token == "" && creds.Username == "" {
		creds.Token = requestToken(r)
	}

	session, err := h.hub.Connect(ctx, creds)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws handshake rejected")
		return nil, err
	}
	return session, nil
}

// reject writes err as an error frame and closes with a policy violation.
func (h *WSHandler) reject(ctx context.Context, conn *websocket.Conn, err error) {
	perr := protoErrorFrom(err, core.ErrCodeUnauthorized)

	writeCtx, cancel := context.WithTimeout(ctx, rejectTimeout)
	defer cancel()
	if writeErr := wsjson.Write(writeCtx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: perr}); writeErr != nil {
		h.log.Debug().Err(writeErr).Msg("write ws reject")
	}
	_ = conn.Close(websocket.StatusPolicyViolation, perr.Code)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		allowed, err := h.limiter.Allow(ctx, session.ID)
		if err != nil {
			// Fail open on limiter errors.
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("rate limiter unavailable")
			allowed = true
		}
		if !allowed {
			h.hub.Reject(session, core.NewError(core.ErrCodeRateLimited, "too many events, slow down"))
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.hub.Reject(session, core.NewError(core.ErrCodeBadRequest, "malformed frame"))
			continue
		}

		cmd, err := inboundToCommand(inbound)
		if err != nil {
			h.hub.Reject(session, err)
			continue
		}
		if err := h.hub.Handle(ctx, session, cmd); err != nil {
			h.log.Debug().Err(err).Str("session_id", session.ID).Str("type", inbound.Type).Msg("command failed")
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		select {
		case event, ok := <-session.Events():
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("session_id", session.ID).Msg("write ws event")
				return err
			}
		case <-session.Done():
			// Flush what was queued before the hub closed the session.
			for event := range session.Events() {
				if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
					return err
				}
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// requestToken returns a token from the Authorization header or the token query parameter.
func requestToken(r *stdhttp.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}
