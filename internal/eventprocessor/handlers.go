// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/orderbell/internal/dedupe"
	"github.com/tomtom215/orderbell/internal/metrics"
	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/notify"
	"github.com/tomtom215/orderbell/internal/validation"
)

// EventDispatcher fans a notification event out to its channels.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *models.NotificationEvent) *models.DispatchOutcome
}

// ClaimLedger records which events were already dispatched.
type ClaimLedger interface {
	Claim(ctx context.Context, ev *models.NotificationEvent) error
	Release(ctx context.Context, ev *models.NotificationEvent) error
}

// AdminEventBroadcaster raises dashboard events.
type AdminEventBroadcaster interface {
	Broadcast(ctx context.Context, ev *models.AdminEvent) notify.BroadcastSummary
}

// NotificationHandler consumes NotificationEvent messages.
//
// Error handling:
//   - Malformed or invalid payloads are acked and dropped
//   - Duplicates (ledger claim refused) are acked without dispatching
//   - Ledger storage errors are returned so the router retries
//   - Dispatch itself never fails the message; its outcome is logged,
//     counted and published by the dispatcher's outcome sink
type NotificationHandler struct {
	dispatcher EventDispatcher
	ledger     ClaimLedger
	topic      string
	logger     zerolog.Logger
}

// NewNotificationHandler creates the handler. ledger may be nil.
func NewNotificationHandler(dispatcher EventDispatcher, ledger ClaimLedger, topic string, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		ledger:     ledger,
		topic:      topic,
		logger:     logger.With().Str("component", "notification_consumer").Logger(),
	}
}

// Handle is a message.NoPublishHandlerFunc.
func (h *NotificationHandler) Handle(msg *message.Message) error {
	start := time.Now()
	ctx := msg.Context()

	var event models.NotificationEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed notification event")
		metrics.RecordEventConsumed(h.topic, metrics.ResultRejected, time.Since(start))
		return nil
	}
	if verr := validation.ValidateStruct(&event); verr != nil {
		h.logger.Warn().Err(verr).Str("message_uuid", msg.UUID).Msg("dropping invalid notification event")
		metrics.RecordEventConsumed(h.topic, metrics.ResultRejected, time.Since(start))
		return nil
	}

	if h.ledger != nil {
		if err := h.ledger.Claim(ctx, &event); err != nil {
			if errors.Is(err, dedupe.ErrDuplicate) {
				h.logger.Debug().
					Str("order_id", event.OrderID).
					Str("event_type", string(event.EventType)).
					Msg("skipping redelivered notification event")
				metrics.RecordEventConsumed(h.topic, metrics.ResultSkipped, time.Since(start))
				return nil
			}
			metrics.RecordEventConsumed(h.topic, metrics.ResultFailure, time.Since(start))
			return fmt.Errorf("claim notification event: %w", err)
		}
	}

	outcome := h.dispatcher.Dispatch(ctx, &event)

	// A failed dispatch gives up its claim so a republished event can try again.
	if !outcome.OverallSuccess && h.ledger != nil {
		if err := h.ledger.Release(context.WithoutCancel(ctx), &event); err != nil {
			h.logger.Warn().Err(err).Str("order_id", event.OrderID).Msg("failed to release dedupe claim")
		}
	}

	metrics.RecordEventConsumed(h.topic, consumedResult(outcome), time.Since(start))
	return nil
}

func consumedResult(o *models.DispatchOutcome) string {
	switch {
	case !o.OverallSuccess:
		return metrics.ResultFailure
	case o.Partial():
		return metrics.ResultPartial
	default:
		return metrics.ResultSuccess
	}
}

// AdminHandler consumes AdminEvent messages.
type AdminHandler struct {
	broadcaster AdminEventBroadcaster
	topic       string
	logger      zerolog.Logger
}

// NewAdminHandler creates the handler.
func NewAdminHandler(broadcaster AdminEventBroadcaster, topic string, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		broadcaster: broadcaster,
		topic:       topic,
		logger:      logger.With().Str("component", "admin_consumer").Logger(),
	}
}

// Handle is a message.NoPublishHandlerFunc. Per-admin failures are already
// absorbed by the broadcaster, so only malformed input is reported here.
func (h *AdminHandler) Handle(msg *message.Message) error {
	start := time.Now()

	var event models.AdminEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed admin event")
		metrics.RecordEventConsumed(h.topic, metrics.ResultRejected, time.Since(start))
		return nil
	}
	if verr := validation.ValidateStruct(&event); verr != nil {
		h.logger.Warn().Err(verr).Str("message_uuid", msg.UUID).Msg("dropping invalid admin event")
		metrics.RecordEventConsumed(h.topic, metrics.ResultRejected, time.Since(start))
		return nil
	}

	summary := h.broadcaster.Broadcast(msg.Context(), &event)

	result := metrics.ResultSuccess
	switch {
	case summary.Attempted == 0:
		result = metrics.ResultSkipped
	case summary.Delivered == 0:
		result = metrics.ResultFailure
	case summary.Failed > 0:
		result = metrics.ResultPartial
	}
	metrics.RecordEventConsumed(h.topic, result, time.Since(start))
	return nil
}
