// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

// Package models provides the data structures shared by the Orderbell
// notification pipeline: inbound order events, persisted notifications, push
// targets, the admin directory and dispatch outcomes.
package models

import (
	"time"
)

// ============================================================================
// Order events
// ============================================================================

// EventType identifies the order transition a customer is notified about.
type EventType string

const (
	EventOrderShipped   EventType = "order_shipped"
	EventTripStarted    EventType = "trip_started"
	EventOrderDelivered EventType = "order_delivered"
	EventOrderCancelled EventType = "order_cancelled"
	EventDriverAssigned EventType = "driver_assigned"
)

// EventTypes lists every declared event type.
var EventTypes = []EventType{
	EventOrderShipped,
	EventTripStarted,
	EventOrderDelivered,
	EventOrderCancelled,
	EventDriverAssigned,
}

// Valid reports whether t is a declared event type.
func (t EventType) Valid() bool {
	switch t {
	case EventOrderShipped, EventTripStarted, EventOrderDelivered, EventOrderCancelled, EventDriverAssigned:
		return true
	default:
		return false
	}
}

// NotificationEvent is one order transition addressed to one customer.
// It is built by the caller and consumed once by the dispatcher.
type NotificationEvent struct {
	RecipientUserID string    `json:"recipientUserId" validate:"required,max=128"`
	OrderID         string    `json:"orderId" validate:"required,max=128"`
	OrderNumber     string    `json:"orderNumber" validate:"required,max=64"`
	EventType       EventType `json:"eventType" validate:"required,eventtype"`
	ActorName       string    `json:"actorName,omitempty" validate:"max=128"`
	Reason          string    `json:"reason,omitempty" validate:"max=512"`

	// StatusVersion is only used to derive the consumer de-duplication key.
	StatusVersion int64 `json:"statusVersion,omitempty" validate:"gte=0"`
}

// ============================================================================
// Persisted in-app notifications
// ============================================================================

// NotificationType classifies a persisted notification.
type NotificationType string

const (
	NotificationTypeOrder  NotificationType = "ORDER"
	NotificationTypeSystem NotificationType = "SYSTEM"
	NotificationTypeInfo   NotificationType = "INFO"
)

// PersistedNotification is the durable in-app record shown in the
// customer's notification list. Read starts false and only the recipient
// flips it.
type PersistedNotification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	ActionURL string           `json:"actionUrl"`
	CreatedAt time.Time        `json:"createdAt"`
}

// ============================================================================
// Dispatch outcome
// ============================================================================

// Channel names used in outcome details, logs and metrics.
const (
	ChannelInApp = "in_app"
	ChannelPush  = "push"
)

// DispatchOutcome is the aggregated result of one dispatch. OverallSuccess is
// true when at least one channel succeeded.
type DispatchOutcome struct {
	OverallSuccess bool              `json:"overallSuccess"`
	InAppSuccess   bool              `json:"inAppSuccess"`
	PushSuccess    bool              `json:"pushSuccess"`
	Error          string            `json:"error,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
	NotificationID string            `json:"notificationId,omitempty"`
}

// Partial reports whether exactly one channel succeeded.
func (o *DispatchOutcome) Partial() bool {
	return o.InAppSuccess != o.PushSuccess
}
