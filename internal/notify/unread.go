// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/orderbell/internal/metrics"
)

// UnreadStore counts unread notifications.
type UnreadStore interface {
	CountUnread(ctx context.Context, userID string) (int, error)
}

// UnreadCounter feeds the notification badge. Lookup failures read as zero.
type UnreadCounter struct {
	store  UnreadStore
	logger zerolog.Logger
}

// NewUnreadCounter creates a counter over store.
func NewUnreadCounter(store UnreadStore, logger zerolog.Logger) *UnreadCounter {
	return &UnreadCounter{
		store:  store,
		logger: logger.With().Str("component", "unread").Logger(),
	}
}

// CountUnread returns the user's unread count, or 0 when it cannot be read.
func (c *UnreadCounter) CountUnread(ctx context.Context, userID string) int {
	count, err := c.store.CountUnread(ctx, userID)
	if err != nil {
		metrics.RecordUnreadError()
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to count unread notifications")
		return 0
	}
	return count
}
