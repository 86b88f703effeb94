// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package api

import (
	"context"
	"net/http"
	"time"
)

const healthPingTimeout = 2 * time.Second

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	NATSEnabled       bool    `json:"nats_enabled"`
	NATSConnected     bool    `json:"nats_connected"`
	RealtimeClients   int     `json:"realtime_clients"`
	Uptime            float64 `json:"uptime"`
}

func (h *Handler) healthStatus(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	hs := HealthStatus{
		Status:  "healthy",
		Version: h.deps.Version,
		Uptime:  time.Since(h.startTime).Seconds(),
	}
	hs.DatabaseConnected = h.deps.Database != nil && h.deps.Database.Ping(ctx) == nil
	if h.deps.NATSHealthy != nil {
		hs.NATSEnabled = true
		hs.NATSConnected = h.deps.NATSHealthy()
	}
	if h.deps.Hub != nil {
		hs.RealtimeClients = h.deps.Hub.GetClientCount()
	}
	if !hs.DatabaseConnected || (hs.NATSEnabled && !hs.NATSConnected) {
		hs.Status = "degraded"
	}
	return hs
}

// Health reports dependency status. It always answers 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.healthStatus(r.Context()))
}

// HealthLive answers 200 while the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady answers 503 until every enabled dependency is reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	hs := h.healthStatus(r.Context())
	rw := NewResponseWriter(w, r)
	if hs.Status != "healthy" {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready", hs)
		return
	}
	rw.Success(hs)
}
