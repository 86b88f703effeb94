// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/orderbell/internal/models"
)

// Error codes carried by channel results.
const (
	ErrorCodeStorage     = "STORAGE_ERROR"
	ErrorCodeTimeout     = "TIMEOUT"
	ErrorCodePanic       = "PANIC"
	ErrorCodeGone        = "ENDPOINT_GONE"
	ErrorCodeRateLimited = "RATE_LIMITED"
	ErrorCodeCircuitOpen = "CIRCUIT_OPEN"
	ErrorCodeSendFailed  = "SEND_FAILED"
	ErrorCodeLookup      = "LOOKUP_FAILED"
)

// DefaultOrderLinkBase prefixes the order id in notification deep links.
const DefaultOrderLinkBase = "/orders/"

// NotificationWriter persists in-app notifications.
type NotificationWriter interface {
	CreateNotification(ctx context.Context, n *models.PersistedNotification) error
}

// InAppRequest is one in-app delivery.
type InAppRequest struct {
	UserID      string
	OrderID     string
	OrderNumber string
	Title       string
	Body        string
	// ActionURL overrides the default order deep link.
	ActionURL string
}

// InAppResult reports the in-app write.
type InAppResult struct {
	Success        bool
	NotificationID string
	Error          string
	ErrorCode      string
}

// InAppAdapter stores notifications for the customer's in-app inbox.
type InAppAdapter struct {
	store    NotificationWriter
	linkBase string
}

// NewInAppAdapter creates an adapter writing to store. An empty linkBase
// uses DefaultOrderLinkBase.
func NewInAppAdapter(store NotificationWriter, linkBase string) *InAppAdapter {
	if linkBase == "" {
		linkBase = DefaultOrderLinkBase
	}
	return &InAppAdapter{store: store, linkBase: linkBase}
}

// Deliver writes one notification. Storage failures come back in the
// result; Deliver never returns an error.
func (a *InAppAdapter) Deliver(ctx context.Context, req *InAppRequest) *InAppResult {
	actionURL := req.ActionURL
	if actionURL == "" {
		actionURL = a.linkBase + req.OrderID
	}

	n := &models.PersistedNotification{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Title:     req.Title,
		Body:      req.Body,
		Type:      models.NotificationTypeOrder,
		Read:      false,
		ActionURL: actionURL,
		CreatedAt: time.Now().UTC(),
	}

	if err := a.store.CreateNotification(ctx, n); err != nil {
		return &InAppResult{
			Error:     err.Error(),
			ErrorCode: ErrorCodeStorage,
		}
	}

	return &InAppResult{Success: true, NotificationID: n.ID}
}
