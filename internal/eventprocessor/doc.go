// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

// Package eventprocessor carries order events from the order service to the
// notification dispatcher over NATS JetStream, using Watermill for the
// consumer side.
//
// Flow:
//
//	order service ──► orders.notifications ──► NotificationHandler ──► notify.Dispatcher
//	              └─► orders.admin         ──► AdminHandler        ──► notify.AdminBroadcaster
//	                                                                         │
//	notify.Dispatcher ──► Publisher.PublishOutcome ──► notifications.outcomes│
//	                                                                         ▼
//	                        RealtimeRelay ──► realtime.admin-{id} (core NATS)
//	                                                │
//	                        CoreSource ◄────────────┘──► websocket.Bridge ──► Hub
//
// Both JetStream subjects live in one stream (ORDERS by default) created by
// StreamManager. The embedded server makes single-instance deployments
// self-contained; multi-instance deployments point every instance at the
// same external cluster so that admin dashboards connected to any instance
// receive every realtime event.
//
// Delivery is at-least-once. Handlers ack malformed messages so they are not
// redelivered forever. When the dedupe ledger is configured, redelivered
// notification events are recognised and skipped.
package eventprocessor
