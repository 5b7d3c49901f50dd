package proto

import "encoding/json"

// Inbound is the envelope for events coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Event names. The names and payload shapes are the protocol contract; the
// JSON framing is an implementation detail.
const (
	InboundChannelJoin   = "channel:join"
	InboundChannelLeave  = "channel:leave"
	InboundMessageNew    = "message:new"
	InboundMessageEdit   = "message:edit"
	InboundMessageDelete = "message:delete"
	InboundMessageReact  = "message:react"
	InboundTypingStart   = "typing:start"
	InboundTypingStop    = "typing:stop"
	InboundStatusSet     = "status:set"

	OutboundUserInfo        = "user:info"
	OutboundUsersInitial    = "users:initial"
	OutboundUserStatus      = "user:status"
	OutboundChannelMessages = "channel:messages"
	OutboundMessageNew      = "message:new"
	OutboundMessageUpdate   = "message:update"
	OutboundMessageDelete   = "message:delete"
	OutboundTypingStart     = "typing:start"
	OutboundTypingStop      = "typing:stop"
	OutboundError           = "error"
)

// ChannelData addresses a channel for join/leave/typing events.
type ChannelData struct {
	ChannelID string `json:"channelId"`
}

// NewMessageData is an inbound message creation request. Temporary is a
// client-side provisional id used for optimistic display; the server ignores
// it and clients reconcile by replacing the provisional entry when the
// broadcast message:new arrives with the authoritative id.
type NewMessageData struct {
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
	Temporary string `json:"temporary,omitempty"`
}

// EditMessageData is an inbound edit request.
type EditMessageData struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// MessageRefData addresses a single message (delete).
type MessageRefData struct {
	MessageID string `json:"messageId"`
}

// ReactData is an inbound reaction toggle.
type ReactData struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// StatusData is an inbound presence status change.
type StatusData struct {
	Status string `json:"status"`
}

// UserPayload describes a user's presence for user:info, users:initial and
// user:status events.
type UserPayload struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Avatar     string `json:"avatar,omitempty"`
	Status     string `json:"status"`
	LastActive int64  `json:"lastActive,omitempty"`
}

// MessagePayload describes a message for message:new and message:update.
type MessagePayload struct {
	ID         string              `json:"id"`
	ChannelID  string              `json:"channelId"`
	AuthorID   string              `json:"authorId"`
	AuthorName string              `json:"authorName,omitempty"`
	Content    string              `json:"content"`
	TS         int64               `json:"ts"`
	Edited     bool                `json:"edited,omitempty"`
	EditedTS   int64               `json:"editedTs,omitempty"`
	Reactions  map[string][]string `json:"reactions,omitempty"`
}

// ChannelMessagesPayload is the history snapshot sent in reply to channel:join.
type ChannelMessagesPayload struct {
	ChannelID string           `json:"channelId"`
	Messages  []MessagePayload `json:"messages"`
}

// DeletePayload carries only the id of a removed message.
type DeletePayload struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
}

// TypingPayload identifies who is typing where.
type TypingPayload struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
}

// Error describes a protocol-level error response. RetryAfter is present on
// rate_limited errors and holds the remaining wait in whole seconds.
type Error struct {
	Code       string `json:"code"`
	Msg        string `json:"msg"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}
