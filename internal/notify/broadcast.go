// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/orderbell/internal/metrics"
	"github.com/tomtom215/orderbell/internal/models"
)

// RealtimePublisher delivers one event on one realtime channel. Publishing
// to a channel nobody listens on is not an error.
type RealtimePublisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// AdminDirectory looks up dashboard users.
type AdminDirectory interface {
	ListUsersByRole(ctx context.Context, roles ...models.Role) ([]models.User, error)
}

// BroadcastSummary counts per-admin publishes. It is diagnostic only.
type BroadcastSummary struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// AdminBroadcaster raises dashboard events on every admin's channel.
type AdminBroadcaster struct {
	directory AdminDirectory
	publisher RealtimePublisher
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewAdminBroadcaster creates a broadcaster. timeout bounds each publish.
func NewAdminBroadcaster(directory AdminDirectory, publisher RealtimePublisher, timeout time.Duration, logger zerolog.Logger) *AdminBroadcaster {
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	return &AdminBroadcaster{
		directory: directory,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger.With().Str("component", "admin_broadcast").Logger(),
	}
}

// NewOrder tells every admin a new order arrived.
func (b *AdminBroadcaster) NewOrder(ctx context.Context, orderNumber string) BroadcastSummary {
	return b.Broadcast(ctx, &models.AdminEvent{Kind: models.AdminEventNewOrder, OrderNumber: orderNumber})
}

// OrderCancelled tells every admin a driver cancelled an order.
func (b *AdminBroadcaster) OrderCancelled(ctx context.Context, orderNumber, driverName, reason string) BroadcastSummary {
	return b.Broadcast(ctx, &models.AdminEvent{
		Kind:        models.AdminEventOrderCancelled,
		OrderNumber: orderNumber,
		DriverName:  driverName,
		Reason:      reason,
	})
}

// Broadcast publishes ev to every ADMIN and MARKETER in parallel. A failing
// admin never stops the others.
func (b *AdminBroadcaster) Broadcast(ctx context.Context, ev *models.AdminEvent) BroadcastSummary {
	eventName, payload, err := adminMessage(ev)
	if err != nil {
		metrics.RecordAdminBroadcast(metrics.ResultRejected)
		b.logger.Warn().Err(err).Str("order_number", ev.OrderNumber).Msg("Admin broadcast rejected")
		return BroadcastSummary{}
	}

	admins, err := b.directory.ListUsersByRole(ctx, models.RoleAdmin, models.RoleMarketer)
	if err != nil {
		metrics.RecordAdminBroadcast(metrics.ResultFailure)
		b.logger.Error().Err(err).Str("event", eventName).Msg("Failed to load admin directory")
		return BroadcastSummary{}
	}
	if len(admins) == 0 {
		metrics.RecordAdminBroadcast(metrics.ResultSkipped)
		return BroadcastSummary{}
	}

	var (
		wg        sync.WaitGroup
		delivered atomic.Int32
	)
	for _, admin := range admins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			channel := models.AdminChannel(admin.ID)
			err := runChannel(ctx, b.timeout,
				func(cctx context.Context) error {
					return b.publisher.Publish(cctx, channel, eventName, payload)
				},
				func(_, msg string) error { return errors.New(msg) },
			)
			metrics.RecordRealtimePublish(eventName, err)
			if err != nil {
				b.logger.Warn().Err(err).Str("channel", channel).Str("event", eventName).Msg("Admin publish failed")
				return
			}
			delivered.Add(1)
		}()
	}
	wg.Wait()

	summary := BroadcastSummary{Attempted: len(admins), Delivered: int(delivered.Load())}
	summary.Failed = summary.Attempted - summary.Delivered

	switch {
	case summary.Failed == 0:
		metrics.RecordAdminBroadcast(metrics.ResultSuccess)
	case summary.Delivered == 0:
		metrics.RecordAdminBroadcast(metrics.ResultFailure)
	default:
		metrics.RecordAdminBroadcast(metrics.ResultPartial)
	}
	b.logger.Debug().
		Str("event", eventName).
		Int("attempted", summary.Attempted).
		Int("delivered", summary.Delivered).
		Msg("Admin broadcast complete")
	return summary
}

// adminMessage maps an admin event onto its realtime event name and payload.
func adminMessage(ev *models.AdminEvent) (string, models.AdminPayload, error) {
	payload := models.AdminPayload{
		Message:     ev.Message,
		Type:        string(ev.Kind),
		OrderNumber: ev.OrderNumber,
		DriverName:  ev.DriverName,
		Reason:      ev.Reason,
	}

	switch ev.Kind {
	case models.AdminEventNewOrder:
		if payload.Message == "" {
			payload.Message = fmt.Sprintf("New order %s received", ev.OrderNumber)
		}
		return models.RealtimeEventNewOrder, payload, nil
	case models.AdminEventOrderCancelled:
		if payload.Message == "" {
			driver := ev.DriverName
			if driver == "" {
				driver = "the driver"
			}
			reason := ev.Reason
			if reason == "" {
				reason = defaultReason
			}
			payload.Message = fmt.Sprintf("Order %s was cancelled by %s: %s", ev.OrderNumber, driver, reason)
		}
		return models.RealtimeEventOrderCancelled, payload, nil
	default:
		return "", payload, fmt.Errorf("unknown admin event kind %q", ev.Kind)
	}
}
