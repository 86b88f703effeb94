// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

/*
Package notify turns order transitions into customer and admin notifications.

A Dispatcher resolves the customer-facing template for a NotificationEvent and
delivers it over two independent channels at the same time:

  - in-app: one PersistedNotification written through a NotificationWriter
  - push: the same text sent to every registered device through a push.Sender

Each channel runs under its own timeout with its own panic recovery, and a
failure in one never affects the other. The outcome is successful when at
least one channel succeeded:

	outcome := dispatcher.Dispatch(ctx, &models.NotificationEvent{
	    RecipientUserID: "u-1",
	    OrderID:         "o-1",
	    OrderNumber:     "ORD-1001",
	    EventType:       models.EventOrderShipped,
	    ActorName:       "Ahmed",
	})

Order services should not wait on delivery; Notifier.DispatchAsync runs the
dispatch in the background and Notifier.Wait drains it on shutdown.

AdminBroadcaster raises dashboard events ("new-order", "order-cancelled") on
the admin-{id} realtime channel of every ADMIN and MARKETER, and
UnreadCounter backs the notification badge.
*/
package notify
