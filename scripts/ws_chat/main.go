package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomchat/internal/proto"
)

// outbound mirrors proto.Outbound with raw data for typed decoding.
type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT from /api/login (takes precedence over -user/-password)")
	user := flag.String("user", "", "username for password login")
	password := flag.String("password", "", "password for password login")
	room := flag.String("room", "general", "room to talk in")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeHello, proto.HelloData{
		Token:    *token,
		Username: *user,
		Password: *password,
		Protocol: proto.ProtocolVersion,
	}); err != nil {
		return err
	}
	if *room != "general" {
		if err := send(ctx, conn, proto.InboundTypeJoin, proto.RoomData{Room: *room}); err != nil {
			return err
		}
	}

	fmt.Printf("Connected to %s, room %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. /join <room>, /leave, Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			fmt.Printf("! %s: %s\n", out.Error.Code, out.Error.Msg)
			continue
		}

		switch out.Event {
		case proto.EventWelcome:
			var evt proto.EventWelcomeData
			if decode(out.Data, &evt) {
				fmt.Printf("Signed in as %s (session %s)\n", evt.Username, evt.SessionID)
			}
		case proto.EventReceiveMessage:
			var evt proto.EventMessage
			if decode(out.Data, &evt) {
				printMessage(evt)
			}
		case proto.EventHistory:
			var evt proto.EventHistoryData
			if decode(out.Data, &evt) {
				fmt.Printf("-- last %d messages in %s --\n", len(evt.Messages), evt.Room)
				for _, m := range evt.Messages {
					printMessage(m)
				}
			}
		case proto.EventUserTyping:
			var evt proto.EventUserTypingData
			if decode(out.Data, &evt) {
				fmt.Printf("[%s] %s is typing...\n", evt.Room, evt.Username)
			}
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
		}
	}
}

func decode(raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("decode event: %v", err)
		return false
	}
	return true
}

func printMessage(m proto.EventMessage) {
	fmt.Printf("[%s] %s (%s): %s\n", m.Room, m.Username, m.Timestamp, m.Message)
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			switch {
			case strings.HasPrefix(text, "/join "):
				room = strings.TrimSpace(strings.TrimPrefix(text, "/join "))
				err = send(ctx, conn, proto.InboundTypeJoin, proto.RoomData{Room: room})
			case text == "/leave":
				err = send(ctx, conn, proto.InboundTypeLeave, proto.RoomData{Room: room})
			default:
				err = send(ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Room: room, Message: text})
			}
			if err != nil {
				log.Printf("%v", err)
				return
			}
		}
	}
}
