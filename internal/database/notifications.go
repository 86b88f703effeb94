// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/orderbell/internal/models"
)

// Page bounds for ListNotifications.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CreateNotification inserts one in-app notification. Missing id and
// created_at are filled in.
func (db *DB) CreateNotification(ctx context.Context, n *models.PersistedNotification) (err error) {
	start := time.Now()
	defer func() { observe("INSERT", "notifications", start, err) }()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, body, type, read, action_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Body, string(n.Type), n.Read, n.ActionURL, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, userID string, limit, offset int, unreadOnly bool) (_ []models.PersistedNotification, err error) {
	start := time.Now()
	defer func() { observe("SELECT", "notifications", start, err) }()

	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, user_id, title, body, type, read, action_url, created_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += " AND read = false"
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer closeQuietly(rows)

	out := make([]models.PersistedNotification, 0, limit)
	for rows.Next() {
		var (
			n     models.PersistedNotification
			ntype string
		)
		if err = rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &ntype, &n.Read, &n.ActionURL, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = models.NotificationType(ntype)
		out = append(out, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

// CountUnread returns how many of the user's notifications are unread.
func (db *DB) CountUnread(ctx context.Context, userID string) (_ int, err error) {
	start := time.Now()
	defer func() { observe("SELECT", "notifications", start, err) }()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var count int64
	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = false`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return int(count), nil
}

// MarkRead flips one notification to read. Only the owner can do so; any
// other combination returns ErrNotFound.
func (db *DB) MarkRead(ctx context.Context, userID, id string) (err error) {
	start := time.Now()
	defer func() { observe("UPDATE", "notifications", start, err) }()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var res sql.Result
	res, err = db.conn.ExecContext(ctx,
		`UPDATE notifications SET read = true WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
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

// MarkAllRead flips every unread notification of the user and returns how
// many changed.
func (db *DB) MarkAllRead(ctx context.Context, userID string) (_ int, err error) {
	start := time.Now()
	defer func() { observe("UPDATE", "notifications", start, err) }()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET read = true WHERE user_id = ? AND read = false`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}
