package http

import (
	"encoding/json"
	"errors"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave, proto.InboundTypeTyping:
		var data proto.RoomData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, err
		}
		kind := core.CommandJoinRoom
		switch inbound.Type {
		case proto.InboundTypeLeave:
			kind = core.CommandLeaveRoom
		case proto.InboundTypeTyping:
			kind = core.CommandTyping
		}
		return &core.Command{Kind: kind, Room: data.Room}, nil
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, err
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			Room: data.Room,
			Body: data.Message,
		}, nil
	case proto.InboundTypeHello:
		return nil, core.NewError(core.ErrCodeBadRequest, "already authenticated")
	default:
		return nil, core.NewError(core.ErrCodeUnknownType, "unknown message type")
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return core.NewError(core.ErrCodeBadRequest, "data is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return core.NewError(core.ErrCodeBadRequest, "malformed data")
	}
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventWelcome:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventWelcome,
			Data: proto.EventWelcomeData{
				SessionID: event.SessionID,
				Username:  event.User,
				Room:      event.Room,
			},
		}
	case core.EventReceiveMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceiveMessage,
			Data:  eventMessage(event.Message),
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserTyping,
			Data: proto.EventUserTypingData{
				Username: event.User,
				Room:     event.Room,
			},
		}
	case core.EventHistory:
		messages := make([]proto.EventMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, eventMessage(msg))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventHistory,
			Data: proto.EventHistoryData{
				Room:     event.Room,
				Messages: messages,
			},
		}
	case core.EventError:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: protoError(event.Error)}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventMessage(msg core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:        msg.ID,
		Room:      msg.Room,
		Username:  msg.From,
		Message:   msg.Text,
		Timestamp: msg.Timestamp,
	}
}

// protoError exposes only the code and top-level message; wrapped causes stay in logs.
func protoError(ce *core.CoreError) *proto.Error {
	if ce == nil {
		return &proto.Error{Code: "unknown", Msg: "unknown error"}
	}
	return &proto.Error{Code: ce.Code, Msg: ce.Message}
}

func protoErrorFrom(err error, fallbackCode string) *proto.Error {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return protoError(ce)
	}
	return &proto.Error{Code: fallbackCode, Msg: err.Error()}
}
