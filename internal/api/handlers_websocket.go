// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package api

import (
	"net/http"

	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/websocket"
)

// WebSocket subscribes the caller to their own admin channel.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	subject := requireSubject(w, r)
	if subject == nil {
		return
	}
	if h.deps.Hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("realtime is not available")
		return
	}
	websocket.ServeWS(h.deps.Hub, &h.deps.Upgrader, models.AdminChannel(subject.ID), w, r)
}
