package http

import (
	"encoding/json"

	"github.com/personly/channels-server/internal/core"
	"github.com/personly/channels-server/internal/proto"
	"github.com/personly/channels-server/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Event {
	case proto.InboundChannelJoin, proto.InboundChannelLeave:
		var data proto.ChannelData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.ChannelID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channelId is required"}, nil
		}
		kind := core.CommandJoinChannel
		if inbound.Event == proto.InboundChannelLeave {
			kind = core.CommandLeaveChannel
		}
		return &core.Command{Kind: kind, Channel: data.ChannelID}, nil, nil

	case proto.InboundMessageNew:
		var data proto.NewMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.ChannelID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channelId is required"}, nil
		}
		return &core.Command{
			Kind:    core.CommandSendMessage,
			Channel: data.ChannelID,
			Content: data.Content,
		}, nil, nil

	case proto.InboundMessageEdit:
		var data proto.EditMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.MessageID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "messageId is required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandEditMessage,
			MessageID: data.MessageID,
			Content:   data.Content,
		}, nil, nil

	case proto.InboundMessageDelete:
		var data proto.MessageRefData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.MessageID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "messageId is required"}, nil
		}
		return &core.Command{Kind: core.CommandDeleteMessage, MessageID: data.MessageID}, nil, nil

	case proto.InboundMessageReact:
		var data proto.ReactData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.MessageID == "" || data.Emoji == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "messageId and emoji are required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandReactMessage,
			MessageID: data.MessageID,
			Emoji:     data.Emoji,
		}, nil, nil

	case proto.InboundTypingStart, proto.InboundTypingStop:
		var data proto.ChannelData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		kind := core.CommandTypingStart
		if inbound.Event == proto.InboundTypingStop {
			kind = core.CommandTypingStop
		}
		return &core.Command{Kind: kind, Channel: data.ChannelID}, nil, nil

	case proto.InboundStatusSet:
		var data proto.StatusData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		return &core.Command{Kind: core.CommandSetStatus, Status: core.Status(data.Status)}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown event"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventUserInfo:
		return proto.Outbound{Event: proto.OutboundUserInfo, Data: presencePayload(event.Presence)}

	case core.EventUsersInitial:
		roster := make([]proto.UserPayload, 0, len(event.Roster))
		for i := range event.Roster {
			roster = append(roster, presencePayload(&event.Roster[i]))
		}
		return proto.Outbound{Event: proto.OutboundUsersInitial, Data: roster}

	case core.EventUserStatus:
		return proto.Outbound{Event: proto.OutboundUserStatus, Data: presencePayload(event.Presence)}

	case core.EventChannelMessages:
		messages := make([]proto.MessagePayload, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, messagePayload(msg))
		}
		return proto.Outbound{
			Event: proto.OutboundChannelMessages,
			Data: proto.ChannelMessagesPayload{
				ChannelID: event.Channel,
				Messages:  messages,
			},
		}

	case core.EventMessageNew:
		return proto.Outbound{Event: proto.OutboundMessageNew, Data: messagePayload(event.Message)}

	case core.EventMessageUpdate:
		return proto.Outbound{Event: proto.OutboundMessageUpdate, Data: messagePayload(event.Message)}

	case core.EventMessageDelete:
		return proto.Outbound{
			Event: proto.OutboundMessageDelete,
			Data: proto.DeletePayload{
				MessageID: event.MessageID,
				ChannelID: event.Channel,
			},
		}

	case core.EventTypingStart, core.EventTypingStop:
		name := proto.OutboundTypingStart
		if event.Kind == core.EventTypingStop {
			name = proto.OutboundTypingStop
		}
		return proto.Outbound{
			Event: name,
			Data: proto.TypingPayload{
				ChannelID: event.Channel,
				UserID:    event.UserID,
				Username:  event.Username,
			},
		}

	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{
				Event: proto.OutboundError,
				Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"},
			}
		}
		return proto.Outbound{
			Event: proto.OutboundError,
			Error: &proto.Error{
				Code:       event.Error.Code,
				Msg:        event.Error.Message,
				RetryAfter: event.Error.RetryAfter,
			},
		}

	default:
		return proto.Outbound{Event: proto.OutboundError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown event"}}
	}
}

func presencePayload(p *core.Presence) proto.UserPayload {
	if p == nil {
		return proto.UserPayload{}
	}
	return proto.UserPayload{
		UserID:     p.UserID,
		Username:   p.Username,
		Avatar:     p.Avatar,
		Status:     string(p.Status),
		LastActive: p.LastActive.Unix(),
	}
}

func messagePayload(msg *store.Message) proto.MessagePayload {
	if msg == nil {
		return proto.MessagePayload{}
	}
	payload := proto.MessagePayload{
		ID:         msg.ID,
		ChannelID:  msg.ChannelID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Content:    msg.Content,
		TS:         msg.CreatedAt.Unix(),
		Edited:     msg.Edited,
		Reactions:  msg.Reactions,
	}
	if msg.EditedAt != nil {
		payload.EditedTS = msg.EditedAt.Unix()
	}
	return payload
}
