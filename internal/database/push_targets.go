// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/orderbell/internal/models"
)

// ListPushTargets returns every registered device of the user, oldest first.
func (db *DB) ListPushTargets(ctx context.Context, userID string) (_ []models.PushDeliveryTarget, err error) {
	start := time.Now()
	defer func() { observe("SELECT", "push_targets", start, err) }()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_targets WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query push targets: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.PushDeliveryTarget
	for rows.Next() {
		var t models.PushDeliveryTarget
		if err = rows.Scan(&t.ID, &t.UserID, &t.Endpoint, &t.P256dh, &t.Auth, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan push target: %w", err)
		}
		out = append(out, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate push targets: %w", err)
	}
	return out, nil
}

// UpsertPushTarget registers a device. Re-registering the same endpoint for
// the same user refreshes its keys and keeps the original id, which is
// written back into t.
func (db *DB) UpsertPushTarget(ctx context.Context, t *models.PushDeliveryTarget) (err error) {
	start := time.Now()
	defer func() { observe("UPSERT", "push_targets", start, err) }()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO push_targets (id, user_id, endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, endpoint) DO UPDATE SET
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth`,
		t.ID, t.UserID, t.Endpoint, t.P256dh, t.Auth, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert push target: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM push_targets WHERE user_id = ? AND endpoint = ?`,
		t.UserID, t.Endpoint,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read back push target: %w", err)
	}
	return nil
}

// DeletePushTarget removes a target by id. Used by the gone-endpoint prune
// hook; deleting a missing row is not an error.
func (db *DB) DeletePushTarget(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observe("DELETE", "push_targets", start, err) }()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if _, err = db.conn.ExecContext(ctx, `DELETE FROM push_targets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete push target: %w", err)
	}
	return nil
}

// DeleteUserPushTarget removes one of the user's own targets, returning
// ErrNotFound when the id does not belong to the user.
func (db *DB) DeleteUserPushTarget(ctx context.Context, userID, id string) (err error) {
	start := time.Now()
	defer func() { observe("DELETE", "push_targets", start, err) }()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM push_targets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete push target: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
