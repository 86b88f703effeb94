// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/orderbell/internal/dedupe"
	"github.com/tomtom215/orderbell/internal/logging"
	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/notify"
	"github.com/tomtom215/orderbell/internal/validation"
)

// Delivery modes reported by the enqueue endpoints.
const (
	ViaNATS  = "nats"
	ViaLocal = "local"
)

// DispatchResult is the body of a synchronous dispatch. A duplicate carries
// no outcome.
type DispatchResult struct {
	*models.DispatchOutcome
	Duplicate bool `json:"duplicate,omitempty"`
}

// EnqueueResult acknowledges an accepted event.
type EnqueueResult struct {
	Accepted bool                     `json:"accepted"`
	Via      string                   `json:"via"`
	Summary  *notify.BroadcastSummary `json:"summary,omitempty"`
}

func decodeNotificationEvent(w http.ResponseWriter, r *http.Request) *models.NotificationEvent {
	rw := NewResponseWriter(w, r)
	var ev models.NotificationEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return nil
	}
	if verr := validation.ValidateStruct(&ev); verr != nil {
		rw.ValidationError(verr)
		return nil
	}
	return &ev
}

// DispatchEvent runs a dispatch inline and returns its outcome. Events
// carrying statusVersion are claimed on the ledger first, so a retried call
// is a no-op.
func (h *Handler) DispatchEvent(w http.ResponseWriter, r *http.Request) {
	ev := decodeNotificationEvent(w, r)
	if ev == nil {
		return
	}
	rw := NewResponseWriter(w, r)
	ctx := logging.ContextWithOrderID(r.Context(), ev.OrderID)

	claimed := false
	if h.deps.Ledger != nil && ev.StatusVersion > 0 {
		err := h.deps.Ledger.Claim(ctx, ev)
		switch {
		case errors.Is(err, dedupe.ErrDuplicate):
			logging.Ctx(ctx).Info().
				Str("event_type", string(ev.EventType)).
				Int64("status_version", ev.StatusVersion).
				Msg("Duplicate dispatch skipped")
			rw.Success(DispatchResult{Duplicate: true})
			return
		case err != nil:
			logging.Ctx(ctx).Error().Err(err).Msg("Dedupe ledger unavailable")
			rw.ServiceUnavailable("de-duplication ledger unavailable")
			return
		}
		claimed = true
	}

	outcome := h.deps.Notifier.Dispatch(ctx, ev)

	if claimed && !outcome.OverallSuccess {
		if err := h.deps.Ledger.Release(context.WithoutCancel(ctx), ev); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to release dedupe claim")
		}
	}

	rw.Success(DispatchResult{DispatchOutcome: outcome})
}

// EnqueueEvent accepts a notification event for background dispatch. With
// NATS enabled the event goes through the durable stream; otherwise it is
// dispatched in-process.
func (h *Handler) EnqueueEvent(w http.ResponseWriter, r *http.Request) {
	ev := decodeNotificationEvent(w, r)
	if ev == nil {
		return
	}
	rw := NewResponseWriter(w, r)

	if h.deps.Publisher != nil {
		if err := h.deps.Publisher.PublishNotification(r.Context(), ev); err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Str("order_id", ev.OrderID).Msg("Failed to enqueue notification event")
			rw.ServiceUnavailable("event bus unavailable")
			return
		}
		rw.Accepted(EnqueueResult{Accepted: true, Via: ViaNATS})
		return
	}

	h.deps.Notifier.DispatchAsync(r.Context(), ev)
	rw.Accepted(EnqueueResult{Accepted: true, Via: ViaLocal})
}

// AdminEvent raises a dashboard event for every admin.
func (h *Handler) AdminEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var ev models.AdminEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&ev); verr != nil {
		rw.ValidationError(verr)
		return
	}

	if h.deps.Publisher != nil {
		if err := h.deps.Publisher.PublishAdminEvent(r.Context(), &ev); err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Str("order_number", ev.OrderNumber).Msg("Failed to enqueue admin event")
			rw.ServiceUnavailable("event bus unavailable")
			return
		}
		rw.Accepted(EnqueueResult{Accepted: true, Via: ViaNATS})
		return
	}

	summary := h.deps.Broadcaster.Broadcast(r.Context(), &ev)
	rw.Accepted(EnqueueResult{Accepted: true, Via: ViaLocal, Summary: &summary})
}
