// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/validation"
)

// UpsertUser mirrors a user from the account service. The path id wins over
// any id in the body.
func (h *Handler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var u models.User
	if err := decodeJSON(w, r, &u); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}
	u.ID = chi.URLParam(r, "id")
	if u.ID == "" || len(u.ID) > 128 {
		rw.BadRequest("invalid user id")
		return
	}
	if verr := validation.ValidateStruct(&u); verr != nil {
		rw.ValidationError(verr)
		return
	}

	if err := h.deps.Directory.UpsertUser(r.Context(), &u); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(u)
}
