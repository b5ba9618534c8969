package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the cache at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup opens the cache, applies the schema, then runs setup.
// Useful for tests that seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; an in-memory db also lives
	// only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(store.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== messages ====

// SaveMessages upserts settled messages. Provisional entries are skipped.
func (s *SQLiteStore) SaveMessages(ctx context.Context, conversationID string, msgs []*core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, type, text, attachments, reply_to, reactions, state, edited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			attachments = excluded.attachments,
			reactions = excluded.reactions,
			state = excluded.state,
			edited = excluded.edited
	`)
	if err != nil {
		return fmt.Errorf("prepare insert message: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if m == nil || m.Provisional() {
			continue
		}
		wire := proto.MessageFromCore(m)
		attachments, err := json.Marshal(nonNil(wire.Attachments))
		if err != nil {
			return fmt.Errorf("encode attachments: %w", err)
		}
		reactions, err := json.Marshal(nonNil(wire.Reactions))
		if err != nil {
			return fmt.Errorf("encode reactions: %w", err)
		}
		conv := m.ConversationID
		if conv == "" {
			conv = conversationID
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, conv, m.SenderID, m.SenderName, string(m.Type), m.Text,
			string(attachments), m.ReplyTo, string(reactions), string(m.State), m.Edited, m.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	return nil
}

// DeleteMessage removes a message. Missing ids are not an error.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// ListMessages returns the newest limit messages of a conversation in
// chronological order. limit <= 0 returns all of them.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*core.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, conversation_id, sender_id, sender_name, type, text, attachments, reply_to, reactions, state, edited, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*core.Message
	for rows.Next() {
		var (
			wire                   proto.Message
			attachments, reactions string
		)
		if err := rows.Scan(
			&wire.ID,
			&wire.ConversationID,
			&wire.SenderID,
			&wire.SenderName,
			&wire.Type,
			&wire.Text,
			&attachments,
			&wire.ReplyTo,
			&reactions,
			&wire.Status,
			&wire.Edited,
			&wire.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(attachments), &wire.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of %s: %w", wire.ID, err)
		}
		if err := json.Unmarshal([]byte(reactions), &wire.Reactions); err != nil {
			return nil, fmt.Errorf("decode reactions of %s: %w", wire.ID, err)
		}
		out = append(out, wire.ToCore())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// ==== conversations ====

// SaveConversations replaces the cached list with convs.
func (s *SQLiteStore) SaveConversations(ctx context.Context, convs []*core.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (id, kind, name, description, members, last_message, unread, pinned, muted, archived, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert conversation: %w", err)
	}
	defer stmt.Close()

	for _, c := range convs {
		if c == nil {
			continue
		}
		wire := proto.ConversationFromCore(c)
		members, err := json.Marshal(nonNil(wire.Members))
		if err != nil {
			return fmt.Errorf("encode members: %w", err)
		}
		var last sql.NullString
		if wire.LastMessage != nil {
			raw, err := json.Marshal(wire.LastMessage)
			if err != nil {
				return fmt.Errorf("encode last message: %w", err)
			}
			last = sql.NullString{String: string(raw), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, string(c.Kind), c.Name, c.Description, string(members), last,
			c.Unread, c.Pinned, c.Muted, c.Archived, c.LastActivity.UTC(),
		); err != nil {
			return fmt.Errorf("insert conversation %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit conversations: %w", err)
	}
	return nil
}

// ListConversations returns cached conversations, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*core.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, description, members, last_message, unread, pinned, muted, archived, last_activity
		FROM conversations
		ORDER BY last_activity DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []*core.Conversation
	for rows.Next() {
		var (
			wire    proto.Conversation
			members string
			last    sql.NullString
			pinned  bool
			muted   bool
			archive bool
		)
		if err := rows.Scan(
			&wire.ID,
			&wire.Type,
			&wire.Name,
			&wire.Description,
			&members,
			&last,
			&wire.Unread,
			&pinned,
			&muted,
			&archive,
			&wire.LastActivity,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &wire.Members); err != nil {
			return nil, fmt.Errorf("decode members of %s: %w", wire.ID, err)
		}
		if last.Valid {
			wire.LastMessage = &proto.Message{}
			if err := json.Unmarshal([]byte(last.String), wire.LastMessage); err != nil {
				return nil, fmt.Errorf("decode last message of %s: %w", wire.ID, err)
			}
		}
		c := wire.ToCore()
		c.Pinned, c.Muted, c.Archived = pinned, muted, archive
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// Purge drops all cached rows.
func (s *SQLiteStore) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages; DELETE FROM conversations;`); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

var _ store.Store = (*SQLiteStore)(nil)
