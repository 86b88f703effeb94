// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/notify"
	"github.com/tomtom215/orderbell/internal/websocket"
)

// maxBodyBytes bounds request bodies; every payload here is small.
const maxBodyBytes = 64 << 10

// NotificationStore is the persisted-notification surface used by the API.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userID string, limit, offset int, unreadOnly bool) ([]models.PersistedNotification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// PushTargetStore registers and removes a user's devices.
type PushTargetStore interface {
	UpsertPushTarget(ctx context.Context, t *models.PushDeliveryTarget) error
	DeleteUserPushTarget(ctx context.Context, userID, id string) error
}

// UserDirectory mirrors users from the account service.
type UserDirectory interface {
	UpsertUser(ctx context.Context, u *models.User) error
}

// Notifier runs dispatches synchronously or in the background.
type Notifier interface {
	Dispatch(ctx context.Context, event *models.NotificationEvent) *models.DispatchOutcome
	DispatchAsync(ctx context.Context, event *models.NotificationEvent)
}

// UnreadCounter reads the badge count. It never fails.
type UnreadCounter interface {
	CountUnread(ctx context.Context, userID string) int
}

// Broadcaster raises an admin dashboard event in-process.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev *models.AdminEvent) notify.BroadcastSummary
}

// EventPublisher enqueues events on the message bus.
type EventPublisher interface {
	PublishNotification(ctx context.Context, ev *models.NotificationEvent) error
	PublishAdminEvent(ctx context.Context, ev *models.AdminEvent) error
}

// ClaimLedger de-duplicates versioned events.
type ClaimLedger interface {
	Claim(ctx context.Context, ev *models.NotificationEvent) error
	Release(ctx context.Context, ev *models.NotificationEvent) error
}

// Pinger reports dependency liveness for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies wires the handler. Publisher, Ledger and NATSHealthy are
// optional; nil means the feature is off.
type Dependencies struct {
	Notifications NotificationStore
	PushTargets   PushTargetStore
	Directory     UserDirectory
	Notifier      Notifier
	Unread        UnreadCounter
	Broadcaster   Broadcaster
	Publisher     EventPublisher
	Ledger        ClaimLedger
	Database      Pinger
	NATSHealthy   func() bool
	Hub           *websocket.Hub
	Upgrader      gorillaws.Upgrader
	Version       string
}

// Handler serves the HTTP API.
type Handler struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandler creates a handler over deps.
func NewHandler(deps Dependencies) *Handler {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handler{deps: deps, startTime: time.Now()}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	return json.Unmarshal(body, v)
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
