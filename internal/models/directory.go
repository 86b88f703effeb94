// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package models

import "fmt"

// Role is a storefront user role.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleMarketer Role = "MARKETER"
	RoleDriver   Role = "DRIVER"
	RoleCustomer Role = "CUSTOMER"
	// RoleService is used by machine callers (the order service) and never
	// stored in the directory.
	RoleService Role = "SERVICE"
)

// User is a read-only view of a storefront user.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"max=128"`
	Role Role   `json:"role" validate:"required,oneof=ADMIN MARKETER DRIVER CUSTOMER"`
}

// AdminChannel returns the realtime channel name of an admin user.
func AdminChannel(userID string) string {
	return fmt.Sprintf("admin-%s", userID)
}

// ============================================================================
// Admin broadcast events
// ============================================================================

// AdminEventKind selects which dashboard signal is raised.
type AdminEventKind string

const (
	AdminEventNewOrder       AdminEventKind = "new_order"
	AdminEventOrderCancelled AdminEventKind = "order_cancelled"
)

// Realtime event names published on admin channels.
const (
	RealtimeEventNewOrder       = "new-order"
	RealtimeEventOrderCancelled = "order-cancelled"
)

// AdminEvent is an order lifecycle signal for every admin dashboard.
type AdminEvent struct {
	Kind        AdminEventKind `json:"kind" validate:"required,oneof=new_order order_cancelled"`
	OrderNumber string         `json:"orderNumber" validate:"required,max=64"`
	DriverName  string         `json:"driverName,omitempty" validate:"max=128"`
	Reason      string         `json:"reason,omitempty" validate:"max=512"`
	Message     string         `json:"message,omitempty" validate:"max=512"`
}

// AdminPayload is the data published on each admin channel.
type AdminPayload struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	OrderNumber string `json:"orderNumber"`
	DriverName  string `json:"driverName,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
