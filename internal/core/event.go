package core

import "github.com/personly/channels-server/internal/store"

// EventKind is a notification the core emits to client sessions.
type EventKind int

const (
	// EventUserInfo delivers the session's own identity after connect.
	EventUserInfo EventKind = iota
	// EventUsersInitial delivers the presence snapshot after connect.
	EventUsersInitial
	// EventUserStatus notifies all sessions about a presence change.
	EventUserStatus
	// EventChannelMessages delivers message history upon joining a channel.
	EventChannelMessages
	// EventMessageNew notifies a channel room about a created message.
	EventMessageNew
	// EventMessageUpdate notifies a channel room about an edited message or
	// a changed reaction map.
	EventMessageUpdate
	// EventMessageDelete notifies a channel room that a message was removed.
	EventMessageDelete
	// EventTypingStart notifies a channel room that a user started typing.
	EventTypingStart
	// EventTypingStop notifies a channel room that a user stopped typing.
	EventTypingStop
	// EventError notifies the requesting session about a rejection.
	EventError
)

// Event is sent to client sessions to describe what happened in the system.
type Event struct {
	Kind      EventKind
	Channel   string
	Presence  *Presence      // user:info, user:status
	Roster    []Presence     // users:initial
	Message   *store.Message // message:new, message:update
	Messages  []*store.Message
	MessageID string // message:delete
	UserID    string // typing events
	Username  string
	Error     *CoreError
}
