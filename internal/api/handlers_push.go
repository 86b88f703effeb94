// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/orderbell/internal/database"
	"github.com/tomtom215/orderbell/internal/logging"
	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/validation"
)

// RegisterPushTarget stores the caller's browser push subscription.
// Re-registering an endpoint refreshes its keys.
func (h *Handler) RegisterPushTarget(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	subject := requireSubject(w, r)
	if subject == nil {
		return
	}

	var reg models.PushTargetRegistration
	if err := decodeJSON(w, r, &reg); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&reg); verr != nil {
		rw.ValidationError(verr)
		return
	}

	target := &models.PushDeliveryTarget{
		UserID:   subject.ID,
		Endpoint: reg.Endpoint,
		P256dh:   reg.Keys.P256dh,
		Auth:     reg.Keys.Auth,
	}
	if err := h.deps.PushTargets.UpsertPushTarget(r.Context(), target); err != nil {
		rw.DatabaseError(err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("user_id", subject.ID).
		Str("target_id", target.ID).
		Msg("Push target registered")
	rw.Created(map[string]interface{}{
		"id":        target.ID,
		"endpoint":  target.Endpoint,
		"createdAt": target.CreatedAt,
	})
}

// DeletePushTarget removes one of the caller's devices.
func (h *Handler) DeletePushTarget(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	subject := requireSubject(w, r)
	if subject == nil {
		return
	}

	err := h.deps.PushTargets.DeleteUserPushTarget(r.Context(), subject.ID, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, database.ErrNotFound):
		rw.NotFound("push target not found")
	case err != nil:
		rw.DatabaseError(err)
	default:
		rw.NoContent()
	}
}
