package db

import (
	"context"
	"fmt"
)

// Migrate applies idempotent schema changes for the archive tables.
func (a *Archive) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if a.driver == DriverPostgres {
		stmts = postgresSchema
	}
	for i, s := range stmts {
		if _, err := a.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s migrate step %d failed: %w", a.driver, i, err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS streams (
		video_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		live_chat_id TEXT NOT NULL,
		last_connected_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		video_id TEXT NOT NULL,
		message_id TEXT,
		author TEXT NOT NULL,
		message TEXT NOT NULL,
		published_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_video_message ON chat_messages(video_id, message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_video_published ON chat_messages(video_id, published_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS streams (
		video_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		live_chat_id TEXT NOT NULL,
		last_connected_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id TEXT NOT NULL,
		message_id TEXT,
		author TEXT NOT NULL,
		message TEXT NOT NULL,
		published_at TEXT NOT NULL,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_video_message ON chat_messages(video_id, message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_video_published ON chat_messages(video_id, published_at)`,
}
