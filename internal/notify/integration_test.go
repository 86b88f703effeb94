// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/orderbell/internal/config"
	"github.com/tomtom215/orderbell/internal/database"
	"github.com/tomtom215/orderbell/internal/models"
)

func TestDispatch_EndToEndWithDuckDB(t *testing.T) {
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.UpsertPushTarget(ctx, &models.PushDeliveryTarget{
		UserID: "cust-1", Endpoint: "https://push.example/device", P256dh: "k", Auth: "a",
	}); err != nil {
		t.Fatalf("UpsertPushTarget: %v", err)
	}

	sender := &recordingSender{}
	d := NewDispatcher(
		NewInAppAdapter(db, ""),
		NewPushAdapter(db, sender, zerolog.Nop()),
		nil, DispatcherConfig{}, zerolog.Nop(),
	)

	out := d.Dispatch(ctx, shippedEvent())
	if !out.OverallSuccess || !out.InAppSuccess || !out.PushSuccess {
		t.Fatalf("outcome = %+v", out)
	}

	stored, err := db.ListNotifications(ctx, "cust-1", 10, 0, false)
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored = %v, %v; want 1 notification", stored, err)
	}
	n := stored[0]
	if !strings.Contains(n.Title, "🚚") {
		t.Errorf("Title = %q, want truck emoji", n.Title)
	}
	if !strings.Contains(n.Body, "ORD-1001") || !strings.Contains(n.Body, "Ahmed") {
		t.Errorf("Body = %q", n.Body)
	}
	if n.Read || n.Type != models.NotificationTypeOrder || n.ActionURL != "/orders/o-1" || n.ID != out.NotificationID {
		t.Errorf("stored notification = %+v", n)
	}

	if len(sender.payloads) != 1 {
		t.Fatalf("push sends = %d, want 1", len(sender.payloads))
	}
	var payload models.PushPayload
	if err := json.Unmarshal(sender.payloads[0], &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Data.OrderNumber != "ORD-1001" {
		t.Errorf("payload orderNumber = %q", payload.Data.OrderNumber)
	}

	if got := NewUnreadCounter(db, zerolog.Nop()).CountUnread(ctx, "cust-1"); got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}
}

func TestInAppAdapter_StorageFailure(t *testing.T) {
	a := NewInAppAdapter(&memStore{createErr: errStorage}, "https://shop.example/o/")

	res := a.Deliver(context.Background(), &InAppRequest{UserID: "u", OrderID: "o"})
	if res.Success || res.ErrorCode != ErrorCodeStorage || res.Error != errStorage.Error() {
		t.Errorf("result = %+v", res)
	}
}

func TestInAppAdapter_LinkBase(t *testing.T) {
	store := &memStore{}
	a := NewInAppAdapter(store, "https://shop.example/o/")

	res := a.Deliver(context.Background(), &InAppRequest{UserID: "u", OrderID: "o-5", Title: "t", Body: "b"})
	if !res.Success || res.NotificationID == "" {
		t.Fatalf("result = %+v", res)
	}
	if got := store.notifications[0].ActionURL; got != "https://shop.example/o/o-5" {
		t.Errorf("ActionURL = %q", got)
	}

	a.Deliver(context.Background(), &InAppRequest{UserID: "u", OrderID: "o-6", ActionURL: "/custom"})
	if got := store.notifications[1].ActionURL; got != "/custom" {
		t.Errorf("ActionURL override = %q", got)
	}
}
