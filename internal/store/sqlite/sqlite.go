package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/personly/channels-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL UNIQUE,
	type              TEXT NOT NULL DEFAULT 'text',
	category          TEXT NOT NULL DEFAULT '',
	is_private        BOOLEAN NOT NULL DEFAULT 0,
	allowed_personas  TEXT NOT NULL DEFAULT '[]',
	slow_mode_enabled BOOLEAN NOT NULL DEFAULT 0,
	slow_mode_delay   INTEGER NOT NULL DEFAULT 0,
	last_activity     DATETIME NOT NULL,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	roles      TEXT NOT NULL DEFAULT '[]',
	joined_at  DATETIME NOT NULL,
	last_read  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (channel_id, user_id),
	FOREIGN KEY (channel_id) REFERENCES channels(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	channel_id  TEXT NOT NULL,
	author_id   TEXT NOT NULL,
	author_name TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	edited      BOOLEAN NOT NULL DEFAULT 0,
	edited_at   DATETIME,
	reactions   TEXT NOT NULL DEFAULT '{}',
	FOREIGN KEY (channel_id) REFERENCES channels(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at DESC, id);
CREATE INDEX IF NOT EXISTS idx_messages_author ON messages(channel_id, author_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_members_user ON channel_members(user_id);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after the
// schema is applied. Useful for tests to seed fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	st, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(st.db); err != nil {
			st.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== ChannelStore implementation ====

// CreateChannel persists a new channel.
func (s *SQLiteStore) CreateChannel(ctx context.Context, ch *store.Channel) error {
	personas, err := json.Marshal(ch.AllowedPersonas)
	if err != nil {
		return fmt.Errorf("marshal allowed personas: %w", err)
	}

	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	if ch.LastActivity.IsZero() {
		ch.LastActivity = ch.CreatedAt
	}

	query := `
		INSERT INTO channels (id, name, type, category, is_private, allowed_personas,
			slow_mode_enabled, slow_mode_delay, last_activity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		ch.ID, ch.Name, ch.Type, ch.Category, ch.IsPrivate, string(personas),
		ch.SlowMode.Enabled, ch.SlowMode.DelaySeconds, ch.LastActivity, ch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

// GetChannel retrieves a channel by id.
func (s *SQLiteStore) GetChannel(ctx context.Context, id string) (*store.Channel, error) {
	query := `
		SELECT id, name, type, category, is_private, allowed_personas,
			slow_mode_enabled, slow_mode_delay, last_activity, created_at
		FROM channels
		WHERE id = ?
	`
	return s.scanChannel(s.db.QueryRowContext(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanChannel(row rowScanner) (*store.Channel, error) {
	var ch store.Channel
	var personas string
	err := row.Scan(
		&ch.ID,
		&ch.Name,
		&ch.Type,
		&ch.Category,
		&ch.IsPrivate,
		&personas,
		&ch.SlowMode.Enabled,
		&ch.SlowMode.DelaySeconds,
		&ch.LastActivity,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan channel: %w", err)
	}

	if err := json.Unmarshal([]byte(personas), &ch.AllowedPersonas); err != nil {
		return nil, fmt.Errorf("unmarshal allowed personas: %w", err)
	}

	return &ch, nil
}

// ListChannelsForUser lists channels the user is a member of, most recently
// active first.
func (s *SQLiteStore) ListChannelsForUser(ctx context.Context, userID string) ([]*store.Channel, error) {
	query := `
		SELECT c.id, c.name, c.type, c.category, c.is_private, c.allowed_personas,
			c.slow_mode_enabled, c.slow_mode_delay, c.last_activity, c.created_at
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.last_activity DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []*store.Channel
	for rows.Next() {
		ch, err := s.scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// AddMember adds a user to a channel with the given roles.
func (s *SQLiteStore) AddMember(ctx context.Context, channelID, userID string, roles []string) error {
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}

	query := `
		INSERT INTO channel_members (channel_id, user_id, roles, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (channel_id, user_id) DO UPDATE SET roles = excluded.roles
	`
	if _, err := s.db.ExecContext(ctx, query, channelID, userID, string(rolesJSON), time.Now().UTC()); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a channel.
func (s *SQLiteStore) RemoveMember(ctx context.Context, channelID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?`, channelID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// IsMember checks whether the user is a member of the channel.
func (s *SQLiteStore) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM channel_members WHERE channel_id = ? AND user_id = ?`, channelID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// GetMember retrieves a membership record.
func (s *SQLiteStore) GetMember(ctx context.Context, channelID, userID string) (*store.ChannelMember, error) {
	query := `
		SELECT channel_id, user_id, roles, joined_at, last_read
		FROM channel_members
		WHERE channel_id = ? AND user_id = ?
	`
	var m store.ChannelMember
	var roles string
	err := s.db.QueryRowContext(ctx, query, channelID, userID).Scan(
		&m.ChannelID,
		&m.UserID,
		&roles,
		&m.JoinedAt,
		&m.LastRead,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query member: %w", err)
	}

	if err := json.Unmarshal([]byte(roles), &m.Roles); err != nil {
		return nil, fmt.Errorf("unmarshal roles: %w", err)
	}
	return &m, nil
}

// SetSlowMode updates the channel's slow-mode configuration.
func (s *SQLiteStore) SetSlowMode(ctx context.Context, channelID string, sm store.SlowMode) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET slow_mode_enabled = ?, slow_mode_delay = ? WHERE id = ?`,
		sm.Enabled, sm.DelaySeconds, channelID)
	if err != nil {
		return fmt.Errorf("update slow mode: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// TouchActivity updates the channel's last-activity timestamp.
func (s *SQLiteStore) TouchActivity(ctx context.Context, channelID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE channels SET last_activity = ? WHERE id = ?`, at.UTC(), channelID); err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

// UpdateLastRead records the last message a member has read.
func (s *SQLiteStore) UpdateLastRead(ctx context.Context, channelID, userID, messageID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channel_members SET last_read = ? WHERE channel_id = ? AND user_id = ?`,
		messageID, channelID, userID)
	if err != nil {
		return fmt.Errorf("update last read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	reactions, err := marshalReactions(msg.Reactions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (id, channel_id, author_id, author_name, content, created_at, edited, edited_at, reactions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.ChannelID, msg.AuthorID, msg.AuthorName, msg.Content,
		msg.CreatedAt.UTC(), msg.Edited, msg.EditedAt, reactions,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by id.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT id, channel_id, author_id, author_name, content, created_at, edited, edited_at, reactions
		FROM messages
		WHERE id = ?
	`
	return s.scanMessage(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStore) scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var editedAt sql.NullTime
	var reactions string
	err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.AuthorID,
		&msg.AuthorName,
		&msg.Content,
		&msg.CreatedAt,
		&msg.Edited,
		&editedAt,
		&reactions,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}

	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if err := json.Unmarshal([]byte(reactions), &msg.Reactions); err != nil {
		return nil, fmt.Errorf("unmarshal reactions: %w", err)
	}
	return &msg, nil
}

// UpdateMessage persists content, edit and reaction changes. Author and
// channel columns are intentionally not part of the update.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, msg *store.Message) error {
	reactions, err := marshalReactions(msg.Reactions)
	if err != nil {
		return err
	}

	query := `
		UPDATE messages
		SET content = ?, edited = ?, edited_at = ?, reactions = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, msg.Content, msg.Edited, msg.EditedAt, reactions, msg.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteMessage removes a message entirely.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListRecentByChannel returns up to limit messages in chronological order,
// optionally older than beforeID.
func (s *SQLiteStore) ListRecentByChannel(ctx context.Context, channelID string, limit int, beforeID string) ([]*store.Message, error) {
	args := []any{channelID}
	query := `
		SELECT id, channel_id, author_id, author_name, content, created_at, edited, edited_at, reactions
		FROM messages
		WHERE channel_id = ?
	`

	if beforeID != "" {
		before, err := s.GetMessage(ctx, beforeID)
		if err != nil {
			return nil, err
		}
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, before.CreatedAt, before.CreatedAt, before.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the index; callers want chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// LastByAuthorInChannel returns the author's most recent message in the channel.
func (s *SQLiteStore) LastByAuthorInChannel(ctx context.Context, channelID, authorID string) (*store.Message, error) {
	query := `
		SELECT id, channel_id, author_id, author_name, content, created_at, edited, edited_at, reactions
		FROM messages
		WHERE channel_id = ? AND author_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return s.scanMessage(s.db.QueryRowContext(ctx, query, channelID, authorID))
}

func marshalReactions(reactions map[string][]string) (string, error) {
	if reactions == nil {
		reactions = map[string][]string{}
	}
	data, err := json.Marshal(reactions)
	if err != nil {
		return "", fmt.Errorf("marshal reactions: %w", err)
	}
	return string(data), nil
}
