// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/orderbell/internal/models"
)

// UpsertUser inserts or refreshes a directory entry.
func (db *DB) UpsertUser(ctx context.Context, u *models.User) (err error) {
	start := time.Now()
	defer func() { observe("UPSERT", "users", start, err) }()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, role, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at`,
		u.ID, u.Name, string(u.Role), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// ListUsersByRole returns every user holding one of roles, ordered by id.
// No roles returns nothing.
func (db *DB) ListUsersByRole(ctx context.Context, roles ...models.Role) (_ []models.User, err error) {
	if len(roles) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() { observe("SELECT", "users", start, err) }()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(roles)), ", ")
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = string(r)
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, role FROM users WHERE role IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.User
	for rows.Next() {
		var (
			u    models.User
			role string
		)
		if err = rows.Scan(&u.ID, &u.Name, &role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = models.Role(role)
		out = append(out, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return out, nil
}
