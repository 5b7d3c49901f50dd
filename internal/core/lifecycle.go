package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/personly/channels-server/internal/store"
	"github.com/personly/channels-server/internal/utils"
)

// LifecycleConfig bounds message content and history replay.
type LifecycleConfig struct {
	MaxContentLen int
	HistoryLimit  int
}

// Lifecycle is the state machine for message create/edit/delete/react.
// Per message the states are: absent -> created -> edited* -> removed, with
// removed terminal. The slow-mode check-then-persist sequence in Create is
// serialized per (author, channel) pair so two near-simultaneous sends from
// one author cannot both pass the delay check.
type Lifecycle struct {
	messages store.MessageStore
	dir      *Directory
	cfg      LifecycleConfig

	sendLocks keyedMutex
	now       func() time.Time
}

// NewLifecycle creates a message lifecycle engine.
func NewLifecycle(messages store.MessageStore, dir *Directory, cfg LifecycleConfig) *Lifecycle {
	if cfg.MaxContentLen <= 0 {
		cfg.MaxContentLen = 2000
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Lifecycle{
		messages: messages,
		dir:      dir,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (l *Lifecycle) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errBadRequest("message content is empty")
	}
	if utf8.RuneCountInString(content) > l.cfg.MaxContentLen {
		return "", errBadRequest(fmt.Sprintf("message content exceeds %d characters", l.cfg.MaxContentLen))
	}
	return content, nil
}

// Create validates, applies slow-mode and persists a new message. The caller
// is responsible for the session-joined check and for broadcasting the result.
func (l *Lifecycle) Create(ctx context.Context, ident Identity, channelID, content string) (*store.Message, error) {
	content, err := l.validateContent(content)
	if err != nil {
		return nil, err
	}

	unlock := l.sendLocks.lock(ident.UserID + "\x00" + channelID)
	defer unlock()

	sm, err := l.dir.SlowMode(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("channel not found")
		}
		return nil, fmt.Errorf("slow mode lookup: %w", err)
	}

	now := l.now().UTC()
	if sm.Enabled && sm.DelaySeconds > 0 {
		last, err := l.messages.LastByAuthorInChannel(ctx, channelID, ident.UserID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// First message in this channel, no delay applies.
		case err != nil:
			return nil, fmt.Errorf("last message lookup: %w", err)
		default:
			wait := time.Duration(sm.DelaySeconds)*time.Second - now.Sub(last.CreatedAt)
			if wait > 0 {
				return nil, errRateLimited(int(math.Ceil(wait.Seconds())))
			}
		}
	}

	msg := &store.Message{
		ID:         utils.NewID(),
		ChannelID:  channelID,
		AuthorID:   ident.UserID,
		AuthorName: ident.Username,
		Content:    content,
		CreatedAt:  now,
		Reactions:  map[string][]string{},
	}
	if err := l.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// Activity bump is best-effort; the message is already durable.
	_ = l.dir.TouchActivity(ctx, channelID)

	return msg, nil
}

// Edit replaces the content of a message. Only the author may edit.
func (l *Lifecycle) Edit(ctx context.Context, ident Identity, messageID, content string) (*store.Message, error) {
	content, err := l.validateContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := l.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("message not found")
		}
		return nil, fmt.Errorf("load message: %w", err)
	}

	if msg.AuthorID != ident.UserID {
		return nil, errForbidden("only the author can edit a message")
	}

	now := l.now().UTC()
	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &now
	if err := l.messages.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist edit: %w", err)
	}
	return msg, nil
}

// Delete removes a message entirely. Authorized for the author or for an
// admin; the two predicates are composed explicitly so the moderation path
// is never a silent exception. Returns the deleted message so callers can
// target its channel room.
func (l *Lifecycle) Delete(ctx context.Context, ident Identity, messageID string) (*store.Message, error) {
	msg, err := l.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("message not found")
		}
		return nil, fmt.Errorf("load message: %w", err)
	}

	authorized := msg.AuthorID == ident.UserID || ident.HasRole("admin")
	if !authorized {
		channelAdmin, err := l.dir.HasRole(ctx, msg.ChannelID, ident.UserID, "admin")
		if err != nil {
			return nil, fmt.Errorf("role lookup: %w", err)
		}
		authorized = channelAdmin
	}
	if !authorized {
		return nil, errForbidden("only the author or an admin can delete a message")
	}

	if err := l.messages.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("message not found")
		}
		return nil, fmt.Errorf("delete message: %w", err)
	}
	return msg, nil
}

// React toggles the identity's emoji reaction on a message: present removes,
// absent adds. Emoji entries with no remaining reactors are dropped.
func (l *Lifecycle) React(ctx context.Context, ident Identity, messageID, emoji string) (*store.Message, error) {
	if emoji == "" {
		return nil, errBadRequest("emoji is required")
	}

	msg, err := l.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("message not found")
		}
		return nil, fmt.Errorf("load message: %w", err)
	}

	member, err := l.dir.IsMember(ctx, msg.ChannelID, ident.UserID)
	if err != nil {
		return nil, fmt.Errorf("membership lookup: %w", err)
	}
	if !member {
		return nil, errForbidden("not a channel member")
	}

	if msg.Reactions == nil {
		msg.Reactions = map[string][]string{}
	}
	users := msg.Reactions[emoji]
	removed := false
	for i, u := range users {
		if u == ident.UserID {
			users = append(users[:i], users[i+1:]...)
			removed = true
			break
		}
	}
	switch {
	case removed && len(users) == 0:
		delete(msg.Reactions, emoji)
	case removed:
		msg.Reactions[emoji] = users
	default:
		msg.Reactions[emoji] = append(users, ident.UserID)
	}

	if err := l.messages.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist reaction: %w", err)
	}
	return msg, nil
}

// History returns up to limit recent messages in chronological order,
// optionally older than beforeID. A non-positive or oversized limit falls
// back to the configured history limit.
func (l *Lifecycle) History(ctx context.Context, channelID string, limit int, beforeID string) ([]*store.Message, error) {
	if limit <= 0 || limit > l.cfg.HistoryLimit {
		limit = l.cfg.HistoryLimit
	}
	msgs, err := l.messages.ListRecentByChannel(ctx, channelID, limit, beforeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("message not found")
		}
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// keyedMutex provides a mutex per string key with entries dropped once the
// last holder releases.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*keyedMutexEntry)
	}
	e := k.entries[key]
	if e == nil {
		e = &keyedMutexEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
