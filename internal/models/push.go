// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package models

import "time"

// PushDeliveryTarget is one registered browser/device endpoint of a user,
// with the keys Web Push needs to encrypt the payload for it.
type PushDeliveryTarget struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"createdAt"`
}

// PushPayload is the JSON document delivered to every device.
type PushPayload struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Data  PushPayloadData `json:"data"`
}

// PushPayloadData lets the client deep link into the order.
type PushPayloadData struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Type        EventType `json:"type"`
	ActorName   string    `json:"actorName,omitempty"`
}

// PushTargetRegistration is the body of the device registration endpoint.
// It mirrors the browser PushSubscription JSON.
type PushTargetRegistration struct {
	Endpoint string `json:"endpoint" validate:"required,url,max=2048"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required,base64rawurl|base64url"`
		Auth   string `json:"auth" validate:"required,base64rawurl|base64url"`
	} `json:"keys"`
}
