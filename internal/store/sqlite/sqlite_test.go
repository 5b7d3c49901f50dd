package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/personly/channels-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedChannel(t *testing.T, st *SQLiteStore, id string) *store.Channel {
	t.Helper()

	ch := &store.Channel{
		ID:   id,
		Name: id,
		Type: store.ChannelTypeText,
	}
	require.NoError(t, st.CreateChannel(context.Background(), ch))
	return ch
}

func seedMessage(t *testing.T, st *SQLiteStore, id, channelID, authorID string, at time.Time) *store.Message {
	t.Helper()

	msg := &store.Message{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   "content of " + id,
		CreatedAt: at,
		Reactions: map[string][]string{},
	}
	require.NoError(t, st.CreateMessage(context.Background(), msg))
	return msg
}

func TestChannelRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := &store.Channel{
		ID:              "ch1",
		Name:            "intj-lounge",
		Type:            store.ChannelTypeText,
		Category:        "personality",
		IsPrivate:       true,
		AllowedPersonas: []string{"INTJ", "INTP"},
		SlowMode:        store.SlowMode{Enabled: true, DelaySeconds: 15},
	}
	require.NoError(t, st.CreateChannel(ctx, in))

	got, err := st.GetChannel(ctx, "ch1")
	require.NoError(t, err)
	require.Equal(t, in.Name, got.Name)
	require.Equal(t, store.ChannelTypeText, got.Type)
	require.True(t, got.IsPrivate)
	require.Equal(t, []string{"INTJ", "INTP"}, got.AllowedPersonas)
	require.Equal(t, store.SlowMode{Enabled: true, DelaySeconds: 15}, got.SlowMode)
	require.False(t, got.CreatedAt.IsZero())

	_, err = st.GetChannel(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Channel names are unique.
	dup := &store.Channel{ID: "ch2", Name: "intj-lounge", Type: store.ChannelTypeText}
	require.Error(t, st.CreateChannel(ctx, dup))
}

func TestMembership(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "general")

	ok, err := st.IsMember(ctx, "general", "u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, st.AddMember(ctx, "general", "u1", nil))
	ok, err = st.IsMember(ctx, "general", "u1")
	require.NoError(t, err)
	require.True(t, ok)

	member, err := st.GetMember(ctx, "general", "u1")
	require.NoError(t, err)
	require.Empty(t, member.Roles)
	require.False(t, member.HasRole("admin"))

	// Re-adding updates the roles in place.
	require.NoError(t, st.AddMember(ctx, "general", "u1", []string{"admin"}))
	member, err = st.GetMember(ctx, "general", "u1")
	require.NoError(t, err)
	require.True(t, member.HasRole("admin"))

	require.NoError(t, st.RemoveMember(ctx, "general", "u1"))
	require.ErrorIs(t, st.RemoveMember(ctx, "general", "u1"), store.ErrNotFound)
	_, err = st.GetMember(ctx, "general", "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListChannelsForUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "alpha")
	seedChannel(t, st, "beta")
	seedChannel(t, st, "gamma")

	require.NoError(t, st.AddMember(ctx, "alpha", "u1", nil))
	require.NoError(t, st.AddMember(ctx, "gamma", "u1", nil))
	require.NoError(t, st.AddMember(ctx, "beta", "u2", nil))

	// Most recently active first.
	require.NoError(t, st.TouchActivity(ctx, "alpha", time.Now().UTC().Add(time.Hour)))

	channels, err := st.ListChannelsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, channels, 2)
	require.Equal(t, "alpha", channels[0].ID)
	require.Equal(t, "gamma", channels[1].ID)

	channels, err = st.ListChannelsForUser(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, channels)
}

func TestSetSlowMode(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "general")

	require.NoError(t, st.SetSlowMode(ctx, "general", store.SlowMode{Enabled: true, DelaySeconds: 30}))
	ch, err := st.GetChannel(ctx, "general")
	require.NoError(t, err)
	require.Equal(t, store.SlowMode{Enabled: true, DelaySeconds: 30}, ch.SlowMode)

	require.ErrorIs(t, st.SetSlowMode(ctx, "missing", store.SlowMode{}), store.ErrNotFound)
}

func TestUpdateLastRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "general")
	require.NoError(t, st.AddMember(ctx, "general", "u1", nil))

	require.NoError(t, st.UpdateLastRead(ctx, "general", "u1", "m42"))
	member, err := st.GetMember(ctx, "general", "u1")
	require.NoError(t, err)
	require.Equal(t, "m42", member.LastRead)

	require.ErrorIs(t, st.UpdateLastRead(ctx, "general", "stranger", "m42"), store.ErrNotFound)
}

func TestMessageRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "general")

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	in := &store.Message{
		ID:         "m1",
		ChannelID:  "general",
		AuthorID:   "u1",
		AuthorName: "alice",
		Content:    "hello world",
		CreatedAt:  at,
		Reactions:  map[string][]string{"👍": {"u2"}},
	}
	require.NoError(t, st.CreateMessage(ctx, in))

	got, err := st.GetMessage(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "alice", got.AuthorName)
	require.Equal(t, "hello world", got.Content)
	require.False(t, got.Edited)
	require.Nil(t, got.EditedAt)
	require.Equal(t, map[string][]string{"👍": {"u2"}}, got.Reactions)
	require.True(t, got.CreatedAt.Equal(at))

	_, err = st.GetMessage(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateMessagePreservesAuthorAndChannel(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "general")
	msg := seedMessage(t, st, "m1", "general", "u1", time.Now().UTC())

	editedAt := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	msg.Content = "edited"
	msg.Edited = true
	msg.EditedAt = &editedAt
	msg.AuthorID = "intruder"
	msg.ChannelID = "elsewhere"
	require.NoError(t, st.UpdateMessage(ctx, msg))

	got, err := st.GetMessage(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "edited", got.Content)
	require.True(t, got.Edited)
	require.NotNil(t, got.EditedAt)
	require.True(t, got.EditedAt.Equal(editedAt))
	require.Equal(t, "u1", got.AuthorID)
	require.Equal(t, "general", got.ChannelID)

	require.ErrorIs(t, st.UpdateMessage(ctx, &store.Message{ID: "missing"}), store.ErrNotFound)
}

func TestDeleteMessage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "general")
	seedMessage(t, st, "m1", "general", "u1", time.Now().UTC())

	require.NoError(t, st.DeleteMessage(ctx, "m1"))
	_, err := st.GetMessage(ctx, "m1")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, st.DeleteMessage(ctx, "m1"), store.ErrNotFound)
}

func TestListRecentByChannel(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "general")
	seedChannel(t, st, "other")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedMessage(t, st, fmt.Sprintf("m%d", i), "general", "u1", base.Add(time.Duration(i)*time.Minute))
	}
	seedMessage(t, st, "noise", "other", "u1", base)

	// Limit trims to the most recent messages, returned oldest first.
	msgs, err := st.ListRecentByChannel(ctx, "general", 3, "")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "m2", msgs[0].ID)
	require.Equal(t, "m4", msgs[2].ID)

	// Cursor pages strictly older messages.
	msgs, err = st.ListRecentByChannel(ctx, "general", 10, "m2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m0", msgs[0].ID)
	require.Equal(t, "m1", msgs[1].ID)

	_, err = st.ListRecentByChannel(ctx, "general", 10, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRecentByChannelTieBreaksOnID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "general")

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedMessage(t, st, "a", "general", "u1", at)
	seedMessage(t, st, "b", "general", "u1", at)
	seedMessage(t, st, "c", "general", "u1", at)

	msgs, err := st.ListRecentByChannel(ctx, "general", 10, "b")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "a", msgs[0].ID)
}

func TestLastByAuthorInChannel(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, "general")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedMessage(t, st, "m1", "general", "u1", base)
	seedMessage(t, st, "m2", "general", "u2", base.Add(time.Minute))
	seedMessage(t, st, "m3", "general", "u1", base.Add(2*time.Minute))

	last, err := st.LastByAuthorInChannel(ctx, "general", "u1")
	require.NoError(t, err)
	require.Equal(t, "m3", last.ID)

	_, err = st.LastByAuthorInChannel(ctx, "general", "stranger")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestForeignKeysEnforced(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.Error(t, st.AddMember(ctx, "ghost-channel", "u1", nil))
	require.Error(t, st.CreateMessage(ctx, &store.Message{
		ID:        "orphan",
		ChannelID: "ghost-channel",
		AuthorID:  "u1",
		Content:   "no home",
		CreatedAt: time.Now().UTC(),
		Reactions: map[string][]string{},
	}))
}

func TestNewWithSetupSeedsFixtures(t *testing.T) {
	st, err := NewWithSetup(filepath.Join(t.TempDir(), "seeded.db"), func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO channels (id, name, type, last_activity, created_at) VALUES (?, ?, 'text', ?, ?)`,
			"seeded", "seeded", time.Now().UTC(), time.Now().UTC())
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ch, err := st.GetChannel(context.Background(), "seeded")
	require.NoError(t, err)
	require.Equal(t, "seeded", ch.Name)
}
