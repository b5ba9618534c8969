// Package store defines the offline cache the client keeps between sessions.
package store

import (
	"context"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

// Schema creates the cache tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	sender_name     TEXT NOT NULL DEFAULT '',
	type            TEXT NOT NULL DEFAULT 'text',
	text            TEXT NOT NULL DEFAULT '',
	attachments     TEXT NOT NULL DEFAULT '[]',
	reply_to        TEXT NOT NULL DEFAULT '',
	reactions       TEXT NOT NULL DEFAULT '[]',
	state           TEXT NOT NULL DEFAULT 'sent',
	edited          BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	members       TEXT NOT NULL DEFAULT '[]',
	last_message  TEXT,
	unread        INTEGER NOT NULL DEFAULT 0,
	pinned        BOOLEAN NOT NULL DEFAULT 0,
	muted         BOOLEAN NOT NULL DEFAULT 0,
	archived      BOOLEAN NOT NULL DEFAULT 0,
	last_activity DATETIME NOT NULL
);
`

// Store is a core.Cache backed by a database that must be closed.
type Store interface {
	core.Cache
	// Purge drops everything, e.g. on logout.
	Purge(ctx context.Context) error
	Close() error
}
