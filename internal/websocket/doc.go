// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

/*
Package websocket provides channel-routed realtime delivery to admin
dashboards over gorilla/websocket.

Every client subscribes to exactly one channel when it connects (for admins,
"admin-{userId}"). Hub.Publish wraps the event in an Envelope and queues it for
every client on that channel:

	{"channel": "admin-42", "event": "new-order", "data": {...}}

Publishing to a channel nobody listens on is not an error.

# Architecture

	Publisher --> Hub.deliver --> RunWithContext --> Client.send --> writePump --> browser
	                                   ^
	                       Register / Unregister

RunWithContext is the only goroutine touching the client index and is meant
to be run under a supervisor. Clients that fall behind (full send buffer) are
dropped rather than allowed to block other subscribers.

Multi-instance deployments publish through the message broker instead of the
local hub. A Bridge consumes those broker messages and republishes them on
the local Hub so that dashboards connected to any instance see every event.

# Client messages

Clients may send {"event":"ping"}; the hub answers {"event":"pong"} on the
same channel. Transport level ping/pong frames keep idle connections alive.
*/
package websocket
