package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a channel, member or message does not exist.
var ErrNotFound = errors.New("not found")

// ChannelType defines different kinds of channels.
type ChannelType string

const (
	ChannelTypeText         ChannelType = "text"
	ChannelTypeVoice        ChannelType = "voice"
	ChannelTypeAnnouncement ChannelType = "announcement"
)

// SlowMode is the per-channel minimum delay between consecutive messages
// from the same author.
type SlowMode struct {
	Enabled      bool `json:"enabled"`
	DelaySeconds int  `json:"delay_seconds"`
}

// Channel represents channel metadata and configuration. Channels are created
// by admin actions and never deleted by the messaging core.
type Channel struct {
	ID        string
	Name      string
	Type      ChannelType
	Category  string
	IsPrivate bool
	// AllowedPersonas is an optional whitelist of persona types admitted to
	// the channel. Empty means no restriction.
	AllowedPersonas []string
	SlowMode        SlowMode
	LastActivity    time.Time
	CreatedAt       time.Time
}

// ChannelMember represents channel membership.
type ChannelMember struct {
	ChannelID string
	UserID    string
	Roles     []string
	JoinedAt  time.Time
	// LastRead is the id of the last message the member has read, if any.
	LastRead string
}

// HasRole reports whether the member holds the given channel-scoped role.
func (m *ChannelMember) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Message represents a persisted chat message. AuthorID and ChannelID are
// immutable after creation.
type Message struct {
	ID         string
	ChannelID  string
	AuthorID   string
	AuthorName string
	Content    string
	CreatedAt  time.Time
	Edited     bool
	EditedAt   *time.Time
	// Reactions maps emoji to the set of reacting user ids. Entries with an
	// empty set are removed rather than kept around.
	Reactions map[string][]string
}

// ChannelStore handles channel and membership persistence.
type ChannelStore interface {
	// CreateChannel persists a new channel.
	CreateChannel(ctx context.Context, ch *Channel) error

	// GetChannel retrieves a channel by id.
	GetChannel(ctx context.Context, id string) (*Channel, error)

	// ListChannelsForUser lists channels the user is a member of.
	ListChannelsForUser(ctx context.Context, userID string) ([]*Channel, error)

	// AddMember adds a user to a channel with the given roles.
	AddMember(ctx context.Context, channelID, userID string, roles []string) error

	// RemoveMember removes a user from a channel.
	RemoveMember(ctx context.Context, channelID, userID string) error

	// IsMember checks whether the user is a member of the channel.
	IsMember(ctx context.Context, channelID, userID string) (bool, error)

	// GetMember retrieves a membership record.
	GetMember(ctx context.Context, channelID, userID string) (*ChannelMember, error)

	// SetSlowMode updates the channel's slow-mode configuration.
	SetSlowMode(ctx context.Context, channelID string, sm SlowMode) error

	// TouchActivity updates the channel's last-activity timestamp.
	TouchActivity(ctx context.Context, channelID string, at time.Time) error

	// UpdateLastRead records the last message a member has read.
	UpdateLastRead(ctx context.Context, channelID, userID, messageID string) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by id.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// UpdateMessage persists content, edit and reaction changes.
	UpdateMessage(ctx context.Context, msg *Message) error

	// DeleteMessage removes a message entirely. Callers that need an audit
	// trail must archive the message before invoking this.
	DeleteMessage(ctx context.Context, id string) error

	// ListRecentByChannel returns up to limit messages in chronological order.
	// If beforeID is non-empty, only messages older than that message are
	// returned (cursor pagination).
	ListRecentByChannel(ctx context.Context, channelID string, limit int, beforeID string) ([]*Message, error)

	// LastByAuthorInChannel returns the author's most recent message in the
	// channel, or ErrNotFound if they have none.
	LastByAuthorInChannel(ctx context.Context, channelID, authorID string) (*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
