// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/orderbell/internal/auth"
	"github.com/tomtom215/orderbell/internal/database"
	"github.com/tomtom215/orderbell/internal/models"
)

// requireSubject returns the authenticated caller or writes a 401.
func requireSubject(w http.ResponseWriter, r *http.Request) *auth.AuthSubject {
	subject := auth.GetAuthSubject(r.Context())
	if subject == nil || subject.ID == "" {
		NewResponseWriter(w, r).Unauthorized("authentication required")
		return nil
	}
	return subject
}

// UnreadCount answers {success, count} for the caller. Lookup failures read
// as zero.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	subject := requireSubject(w, r)
	if subject == nil {
		return
	}
	writeJSON(w, http.StatusOK, UnreadCountResponse{
		Success: true,
		Count:   h.deps.Unread.CountUnread(r.Context(), subject.ID),
	})
}

// ListNotifications returns the caller's notifications, newest first.
// Query: limit (default 20, max 100), offset, unread=true.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	subject := requireSubject(w, r)
	if subject == nil {
		return
	}

	limit, err := queryInt(r, "limit", database.DefaultPageSize)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if limit == 0 {
		limit = database.DefaultPageSize
	}
	if limit > database.MaxPageSize {
		limit = database.MaxPageSize
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	items, err := h.deps.Notifications.ListNotifications(r.Context(), subject.ID, limit, offset, unreadOnly)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if items == nil {
		items = []models.PersistedNotification{}
	}

	rw.SuccessWithPagination(items, &PaginationMeta{
		Count:   len(items),
		Offset:  offset,
		Limit:   limit,
		HasMore: len(items) == limit,
	})
}

// MarkRead marks one of the caller's notifications read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	subject := requireSubject(w, r)
	if subject == nil {
		return
	}

	id := chi.URLParam(r, "id")
	err := h.deps.Notifications.MarkRead(r.Context(), subject.ID, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		rw.NotFound("notification not found")
	case err != nil:
		rw.DatabaseError(err)
	default:
		rw.Success(map[string]interface{}{"id": id, "read": true})
	}
}

// MarkAllRead marks every unread notification of the caller read.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	subject := requireSubject(w, r)
	if subject == nil {
		return
	}

	n, err := h.deps.Notifications.MarkAllRead(r.Context(), subject.ID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]int{"updated": n})
}
