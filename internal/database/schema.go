// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package database

import (
	"context"
	"fmt"
)

// schemaStatements create every table and index. Each statement is
// idempotent so initialize can run on every start.
var schemaStatements = []string{
	// Read-only copy of the storefront's user directory.
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		type TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT false,
		action_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS push_targets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		p256dh TEXT NOT NULL,
		auth TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, endpoint)
	)`,

	// read stays unindexed; mark-read updates it in place.
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_users_role ON users (role)`,
}

// initialize creates tables and indexes, then checkpoints.
func (db *DB) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return db.Checkpoint(ctx)
}
