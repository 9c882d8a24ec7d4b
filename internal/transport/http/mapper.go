package http

import (
	"encoding/json"
	"errors"

	"github.com/VRMX2/USTHB-APP/internal/core"
	"github.com/VRMX2/USTHB-APP/internal/proto"
)

// inboundToSignal maps client payloads onto hub signals. Join, leave and
// status pings are connection-level operations handled by the ws handler
// itself and never reach this function.
func inboundToSignal(p *core.Principal, inbound proto.Inbound) (*core.Signal, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.Channel == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel is required"}, nil
		}
		return &core.Signal{
			Kind:    core.SignalChat,
			Scope:   core.ChannelScope(core.ChannelID(msg.Channel)),
			Message: &core.Message{Body: msg.Text},
		}, nil, nil

	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, nil, err
		}
		if typing.Channel == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel is required"}, nil
		}
		kind := core.SignalTypingStart
		if inbound.Type == proto.InboundTypeTypingStop {
			kind = core.SignalTypingStop
		}
		return &core.Signal{
			Kind:  kind,
			Scope: core.ChannelScope(core.ChannelID(typing.Channel)),
		}, nil, nil

	case proto.InboundTypeMessageRead:
		var read proto.ReadData
		if err := json.Unmarshal(inbound.Data, &read); err != nil {
			return nil, nil, err
		}
		scope := core.PrincipalScope(p.ID)
		if read.Channel != "" {
			scope = core.ChannelScope(core.ChannelID(read.Channel))
		}
		return &core.Signal{
			Kind:    core.SignalReadReceipt,
			Scope:   scope,
			Receipt: &core.Receipt{MessageID: read.MessageID},
		}, nil, nil

	case proto.InboundTypeFileShared:
		var file proto.FileData
		if err := json.Unmarshal(inbound.Data, &file); err != nil {
			return nil, nil, err
		}
		if file.Channel == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel is required"}, nil
		}
		return &core.Signal{
			Kind:  core.SignalFileShared,
			Scope: core.ChannelScope(core.ChannelID(file.Channel)),
			File: &core.FileMeta{
				Name: file.Name,
				Size: file.Size,
				Mime: file.Mime,
				URL:  file.URL,
			},
		}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(c *core.Conn, event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventWelcome:
		channels := make([]string, 0, len(event.Channels))
		for _, ch := range event.Channels {
			channels = append(channels, string(ch))
		}
		return proto.Outbound{
			Type: proto.OutboundTypeWelcome,
			Data: proto.WelcomeData{
				ConnID:   c.ID,
				UserID:   c.Principal.ID,
				User:     c.Principal.Username,
				Channels: channels,
				Partial:  event.Partial,
			},
		}

	case core.EventJoined:
		return proto.Outbound{
			Type: proto.OutboundTypeJoined,
			Data: proto.JoinedData{Channel: string(event.Channel), Label: event.Label},
		}

	case core.EventLeft:
		return proto.Outbound{
			Type: proto.OutboundTypeLeft,
			Data: proto.LeftData{Channel: string(event.Channel)},
		}

	case core.EventSignal:
		return outboundFromSignal(event.Signal)

	case core.EventError:
		if event.Err == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Err.Code, Msg: event.Err.Message, Retryable: event.Err.Retryable},
		}

	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func outboundFromSignal(sig *core.Signal) proto.Outbound {
	if sig == nil {
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}

	switch sig.Kind {
	case core.SignalChat:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "message",
			Data: proto.EventMessage{
				ID:      sig.Message.ID,
				Channel: string(sig.Message.Channel),
				From:    sig.Sender,
				User:    sig.SenderName,
				Text:    sig.Message.Body,
				TS:      sig.Message.SentAt.Unix(),
			},
		}

	case core.SignalTypingStart, core.SignalTypingStop:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: string(sig.Kind),
			Data: proto.EventTyping{
				Channel: string(sig.Scope.Channel),
				From:    sig.Sender,
				User:    sig.SenderName,
			},
		}

	case core.SignalReadReceipt:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: string(sig.Kind),
			Data: proto.EventRead{
				Channel:   string(sig.Scope.Channel),
				MessageID: sig.Receipt.MessageID,
				From:      sig.Receipt.ReadBy,
				User:      sig.SenderName,
				TS:        sig.Receipt.ReadAt.Unix(),
			},
		}

	case core.SignalStatusUpdate:
		data := proto.EventStatus{
			UserID: sig.Status.Principal,
			User:   sig.Status.Username,
			Status: string(sig.Status.Status),
		}
		if !sig.Status.LastSeen.IsZero() {
			data.LastSeen = sig.Status.LastSeen.Unix()
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: string(sig.Kind),
			Data:  data,
		}

	case core.SignalFileShared:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: string(sig.Kind),
			Data: proto.EventFile{
				Channel: string(sig.Scope.Channel),
				From:    sig.Sender,
				User:    sig.SenderName,
				Name:    sig.File.Name,
				Size:    sig.File.Size,
				Mime:    sig.File.Mime,
				URL:     sig.File.URL,
				TS:      sig.At.Unix(),
			},
		}

	case core.SignalAnnouncement:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: string(sig.Kind),
			Data: proto.EventAnnouncement{
				ID:         sig.Announcement.ID,
				From:       sig.Announcement.Author,
				User:       sig.Announcement.AuthorName,
				Title:      sig.Announcement.Title,
				Body:       sig.Announcement.Body,
				Department: sig.Announcement.Department,
				TS:         sig.Announcement.PostedAt.Unix(),
			},
		}

	case core.SignalGrade:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: string(sig.Kind),
			Data: proto.EventGrade{
				ID:     sig.Grade.ID,
				Course: sig.Grade.Course,
				Label:  sig.Grade.Label,
				Value:  sig.Grade.Value,
				TS:     sig.Grade.PostedAt.Unix(),
			},
		}

	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

// protoError converts any rejection into its wire form. Domain errors keep
// their code; anything else is reported as a transient store failure.
func protoError(err error) *proto.Error {
	var domain *core.Error
	if errors.As(err, &domain) {
		return &proto.Error{Code: domain.Code, Msg: domain.Message, Retryable: domain.Retryable}
	}
	return &proto.Error{Code: core.ErrCodeStoreUnavailable, Msg: "portal store unavailable, try again later", Retryable: true}
}
