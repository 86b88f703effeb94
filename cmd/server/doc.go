// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

/*
Package main is the entry point for the Orderbell server.

Orderbell turns order lifecycle events into customer notifications. Each
event is stored as an in-app notification and pushed to the customer's
registered Web Push endpoints at the same time; either channel succeeding
counts as delivered. Order events that concern the store (new orders,
driver cancellations) are raised on every admin's realtime dashboard
channel.

# Application Architecture

Long-running components run under a Suture v4 tree:

	orderbell
	├── data-layer
	│   └── dedupe-ledger-gc (when DEDUPE_ENABLED=true)
	├── messaging-layer
	│   ├── websocket-hub
	│   ├── event-router (when NATS_ENABLED=true)
	│   └── realtime-bridge (when NATS_ENABLED=true)
	└── api-layer
	    └── http-server

Initialization order:

 1. Configuration: Koanf v2 with defaults, config.yaml and environment
 2. Logging: zerolog, bridged to slog for the supervisor
 3. Storage: DuckDB notification store, optional Badger dedupe ledger
 4. Delivery: Web Push sender behind a breaker and rate limiter
 5. NATS (optional): embedded or external JetStream, publisher, consumers
 6. Dispatcher, admin broadcaster and unread counter
 7. HTTP: JWT authentication, Casbin RBAC, chi router

# Event Ingestion

Without NATS, order services call POST /api/v1/events/dispatch and the
dispatch runs inline, or POST /api/v1/events/notifications to dispatch in
the background. With NATS enabled, the latter enqueues on the
notification topic and a durable consumer dispatches it; order services
may also publish on the topic directly.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
server gracefully, then background dispatches are drained before NATS,
the ledger and the database are closed.

# Example Usage

	export JWT_SECRET=$(openssl rand -base64 48)
	export PUSH_ENABLED=true VAPID_PUBLIC_KEY=... VAPID_PRIVATE_KEY=... VAPID_SUBSCRIBER=mailto:ops@example.com
	export NATS_ENABLED=true
	./orderbell
*/
package main
