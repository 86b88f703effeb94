// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package notify

import (
	"errors"
	"fmt"

	"github.com/tomtom215/orderbell/internal/models"
)

// ErrUnknownEventType is returned by Resolve for an event type with no template.
var ErrUnknownEventType = errors.New("unknown event type")

// Placeholders used when optional event fields are empty.
const (
	defaultDriverName = "your driver"
	defaultReason     = "no reason given"
)

// TemplateParams carries the values substituted into a template.
type TemplateParams struct {
	OrderNumber string
	ActorName   string
	Reason      string
}

// Template is the rendered title and body shared by every channel.
type Template struct {
	Title string
	Body  string
}

// Resolve renders the customer-facing text for eventType.
func Resolve(eventType models.EventType, p TemplateParams) (Template, error) {
	driver := p.ActorName
	if driver == "" {
		driver = defaultDriverName
	}
	reason := p.Reason
	if reason == "" {
		reason = defaultReason
	}

	switch eventType {
	case models.EventOrderShipped:
		return Template{
			Title: "🚚 Order Shipped",
			Body:  fmt.Sprintf("Your order %s has been shipped and is on its way with %s.", p.OrderNumber, driver),
		}, nil
	case models.EventTripStarted:
		return Template{
			Title: "🛣️ Trip Started",
			Body:  fmt.Sprintf("%s has started the trip with your order %s.", driver, p.OrderNumber),
		}, nil
	case models.EventOrderDelivered:
		return Template{
			Title: "✅ Order Delivered",
			Body:  fmt.Sprintf("Your order %s has been delivered. Enjoy!", p.OrderNumber),
		}, nil
	case models.EventOrderCancelled:
		return Template{
			Title: "❌ Order Cancelled",
			Body:  fmt.Sprintf("Your order %s has been cancelled: %s.", p.OrderNumber, reason),
		}, nil
	case models.EventDriverAssigned:
		return Template{
			Title: "👤 Driver Assigned",
			Body:  fmt.Sprintf("%s has been assigned to deliver your order %s.", driver, p.OrderNumber),
		}, nil
	default:
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}
