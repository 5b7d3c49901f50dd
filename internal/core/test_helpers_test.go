package core

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/personly/channels-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// memStore is an in-memory store.Store for core tests.
type memStore struct {
	mu       sync.Mutex
	channels map[string]*store.Channel
	members  map[string]map[string]*store.ChannelMember
	messages []*store.Message
}

func newMemStore() *memStore {
	return &memStore{
		channels: make(map[string]*store.Channel),
		members:  make(map[string]map[string]*store.ChannelMember),
	}
}

func copyMessage(msg *store.Message) *store.Message {
	cp := *msg
	cp.Reactions = make(map[string][]string, len(msg.Reactions))
	for emoji, users := range msg.Reactions {
		cp.Reactions[emoji] = append([]string(nil), users...)
	}
	return &cp
}

func (m *memStore) CreateChannel(_ context.Context, ch *store.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ch
	m.channels[ch.ID] = &cp
	return nil
}

func (m *memStore) GetChannel(_ context.Context, id string) (*store.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (m *memStore) ListChannelsForUser(_ context.Context, userID string) ([]*store.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var channels []*store.Channel
	for channelID, members := range m.members {
		if _, ok := members[userID]; ok {
			if ch, exists := m.channels[channelID]; exists {
				cp := *ch
				channels = append(channels, &cp)
			}
		}
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	return channels, nil
}

func (m *memStore) AddMember(_ context.Context, channelID, userID string, roles []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[channelID] == nil {
		m.members[channelID] = make(map[string]*store.ChannelMember)
	}
	m.members[channelID][userID] = &store.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		Roles:     append([]string(nil), roles...),
		JoinedAt:  time.Now(),
	}
	return nil
}

func (m *memStore) RemoveMember(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if members, ok := m.members[channelID]; ok {
		if _, exists := members[userID]; exists {
			delete(members, userID)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) IsMember(_ context.Context, channelID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[channelID][userID]
	return ok, nil
}

func (m *memStore) GetMember(_ context.Context, channelID, userID string) (*store.ChannelMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[channelID][userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *member
	return &cp, nil
}

func (m *memStore) SetSlowMode(_ context.Context, channelID string, sm store.SlowMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return store.ErrNotFound
	}
	ch.SlowMode = sm
	return nil
}

func (m *memStore) TouchActivity(_ context.Context, channelID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[channelID]; ok {
		ch.LastActivity = at
	}
	return nil
}

func (m *memStore) UpdateLastRead(_ context.Context, channelID, userID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[channelID][userID]
	if !ok {
		return store.ErrNotFound
	}
	member.LastRead = messageID
	return nil
}

func (m *memStore) CreateMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, copyMessage(msg))
	return nil
}

func (m *memStore) GetMessage(_ context.Context, id string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return copyMessage(msg), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.messages {
		if existing.ID == msg.ID {
			updated := copyMessage(msg)
			updated.AuthorID = existing.AuthorID
			updated.ChannelID = existing.ChannelID
			m.messages[i] = updated
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) DeleteMessage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) ListRecentByChannel(_ context.Context, channelID string, limit int, beforeID string) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inChannel []*store.Message
	for _, msg := range m.messages {
		if msg.ChannelID == channelID {
			inChannel = append(inChannel, msg)
		}
	}

	end := len(inChannel)
	if beforeID != "" {
		end = 0
		for i, msg := range inChannel {
			if msg.ID == beforeID {
				end = i
				break
			}
		}
	}

	start := end - limit
	if start < 0 {
		start = 0
	}

	out := make([]*store.Message, 0, end-start)
	for _, msg := range inChannel[start:end] {
		out = append(out, copyMessage(msg))
	}
	return out, nil
}

func (m *memStore) LastByAuthorInChannel(_ context.Context, channelID, authorID string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.ChannelID == channelID && msg.AuthorID == authorID {
			return copyMessage(msg), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) Close() error { return nil }

// newTestEngine builds a directory and lifecycle over a fresh memStore with
// one text channel and the given members.
func newTestEngine(t *testing.T, channelID string, memberIDs ...string) (*memStore, *Directory, *Lifecycle) {
	t.Helper()

	st := newMemStore()
	ctx := context.Background()
	if err := st.CreateChannel(ctx, &store.Channel{
		ID:   channelID,
		Name: channelID,
		Type: store.ChannelTypeText,
	}); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	for _, userID := range memberIDs {
		if err := st.AddMember(ctx, channelID, userID, nil); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}

	dir := NewDirectory(st)
	lifecycle := NewLifecycle(st, dir, LifecycleConfig{})
	return st, dir, lifecycle
}
