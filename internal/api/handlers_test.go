// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/orderbell/internal/dedupe"
	"github.com/tomtom215/orderbell/internal/models"
)

func TestHealth_Public(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}

	var hs HealthStatus
	if err := json.Unmarshal(decodeEnvelope(t, env.do(t, http.MethodGet, "/health", "", nil)).Data, &hs); err != nil {
		t.Fatal(err)
	}
	if hs.Status != "healthy" || !hs.DatabaseConnected || hs.NATSEnabled {
		t.Errorf("health = %+v", hs)
	}
}

func TestHealthReady_DegradedWhenNATSDown(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) {
		d.NATSHealthy = func() bool { return false }
	})

	if rec := env.do(t, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/health", "", nil)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestUnreadCount_BothPaths(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, "cust-1", models.RoleCustomer)

	for _, path := range []string{"/notifications/unread-count", "/api/v1/notifications/unread-count"} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, path, tok, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if len(body) != 2 || body["success"] != true || body["count"] != float64(3) {
				t.Errorf("body = %s, want exactly {success, count}", rec.Body.String())
			}
		})
	}

	if rec := env.do(t, http.MethodGet, "/notifications/unread-count", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}
}

func TestListNotifications(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.notifications["cust-1"] = []models.PersistedNotification{
		{ID: "n3", UserID: "cust-1", Title: "Delivered"},
		{ID: "n2", UserID: "cust-1", Title: "On the way", Read: true},
		{ID: "n1", UserID: "cust-1", Title: "Shipped"},
	}
	env.store.notifications["cust-2"] = []models.PersistedNotification{{ID: "x", UserID: "cust-2"}}
	tok := env.token(t, "cust-1", models.RoleCustomer)

	rec := env.do(t, http.MethodGet, "/api/v1/notifications?limit=2&unread=true", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	got := decodeEnvelope(t, rec)
	var items []models.PersistedNotification
	if err := json.Unmarshal(got.Data, &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ID != "n3" {
		t.Errorf("items = %+v", items)
	}
	if got.Meta.Pagination == nil || !got.Meta.Pagination.HasMore || got.Meta.Pagination.Limit != 2 {
		t.Errorf("pagination = %+v", got.Meta.Pagination)
	}
	if !env.store.lastUnread {
		t.Error("unread filter not forwarded")
	}

	env.do(t, http.MethodGet, "/api/v1/notifications?limit=5000", tok, nil)
	if env.store.lastLimit != 100 {
		t.Errorf("limit clamp = %d, want 100", env.store.lastLimit)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/notifications?offset=-1", tok, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("negative offset status = %d", rec.Code)
	}

	env.store.listErr = errBoom
	if rec := env.do(t, http.MethodGet, "/api/v1/notifications", tok, nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("db error status = %d", rec.Code)
	}
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.notifications["cust-1"] = []models.PersistedNotification{{ID: "n1"}, {ID: "n2"}}
	env.store.notifications["cust-2"] = []models.PersistedNotification{{ID: "other"}}
	tok := env.token(t, "cust-1", models.RoleCustomer)

	if rec := env.do(t, http.MethodPost, "/api/v1/notifications/n1/read", tok, nil); rec.Code != http.StatusOK {
		t.Errorf("mark read status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/notifications/other/read", tok, nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign notification status = %d, want 404", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/notifications/read-all", tok, nil)
	var data map[string]int
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["updated"] != 1 {
		t.Errorf("updated = %d, want 1", data["updated"])
	}
}

func TestPushTargets(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, "cust-1", models.RoleCustomer)

	valid := map[string]interface{}{
		"endpoint": "https://push.example.com/send/abc",
		"keys": map[string]string{
			"p256dh": "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM",
			"auth":   "tBHItJI5svbpez7KI4CCXg",
		},
	}

	rec := env.do(t, http.MethodPost, "/api/v1/push/targets", tok, valid)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body %s", rec.Code, rec.Body.String())
	}
	stored, ok := env.store.targets["pt-cust-1"]
	if !ok || stored.UserID != "cust-1" || stored.Auth != "tBHItJI5svbpez7KI4CCXg" {
		t.Fatalf("stored = %+v", stored)
	}

	invalid := map[string]interface{}{"endpoint": "not a url", "keys": map[string]string{}}
	rec = env.do(t, http.MethodPost, "/api/v1/push/targets", tok, invalid)
	if rec.Code != http.StatusBadRequest || decodeEnvelope(t, rec).Error.Code != ErrCodeValidationFailed {
		t.Errorf("invalid registration: %d %s", rec.Code, rec.Body.String())
	}

	other := env.token(t, "cust-2", models.RoleCustomer)
	if rec := env.do(t, http.MethodDelete, "/api/v1/push/targets/pt-cust-1", other, nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/push/targets/pt-cust-1", tok, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
}

func TestDispatchEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	svc := env.token(t, "order-service", models.RoleService)

	rec := env.do(t, http.MethodPost, "/api/v1/events/dispatch", svc, validEvent())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var outcome models.DispatchOutcome
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &outcome); err != nil {
		t.Fatal(err)
	}
	if !outcome.OverallSuccess || outcome.NotificationID != "n-1" {
		t.Errorf("outcome = %+v", outcome)
	}
	if len(env.notifier.sync) != 1 {
		t.Errorf("sync dispatches = %d", len(env.notifier.sync))
	}
}

func TestDispatchEvent_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	svc := env.token(t, "order-service", models.RoleService)
	driver := env.token(t, "drv-1", models.RoleDriver)

	badType := validEvent()
	badType.EventType = "refund_issued"

	tests := []struct {
		name     string
		token    string
		body     interface{}
		wantCode int
	}{
		{"no token", "", validEvent(), http.StatusUnauthorized},
		{"driver role", driver, validEvent(), http.StatusForbidden},
		{"malformed json", svc, "{", http.StatusBadRequest},
		{"empty body", svc, "", http.StatusBadRequest},
		{"unknown event type", svc, badType, http.StatusBadRequest},
		{"missing recipient", svc, models.NotificationEvent{OrderID: "o", OrderNumber: "n", EventType: models.EventOrderShipped}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, "/api/v1/events/dispatch", tt.token, tt.body); rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
	if len(env.notifier.sync) != 0 {
		t.Errorf("rejected requests dispatched %d times", len(env.notifier.sync))
	}
}

func TestDispatchEvent_Ledger(t *testing.T) {
	ledger := &fakeLedger{claimed: map[string]bool{}}
	env := newTestEnv(t, func(d *Dependencies) { d.Ledger = ledger })
	svc := env.token(t, "order-service", models.RoleService)

	ev := validEvent()
	ev.StatusVersion = 4

	env.do(t, http.MethodPost, "/api/v1/events/dispatch", svc, ev)
	rec := env.do(t, http.MethodPost, "/api/v1/events/dispatch", svc, ev)

	var result map[string]interface{}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &result); err != nil {
		t.Fatal(err)
	}
	if result["duplicate"] != true {
		t.Errorf("second dispatch = %s", rec.Body.String())
	}
	if len(env.notifier.sync) != 1 {
		t.Errorf("dispatches = %d, want 1", len(env.notifier.sync))
	}

	// Unversioned events bypass the ledger.
	env.do(t, http.MethodPost, "/api/v1/events/dispatch", svc, validEvent())
	env.do(t, http.MethodPost, "/api/v1/events/dispatch", svc, validEvent())
	if len(env.notifier.sync) != 3 {
		t.Errorf("dispatches = %d, want 3", len(env.notifier.sync))
	}

	// A total failure releases the claim so a retry can deliver.
	env.notifier.outcome = models.DispatchOutcome{Error: "all channels failed"}
	ev.StatusVersion = 5
	env.do(t, http.MethodPost, "/api/v1/events/dispatch", svc, ev)
	if ledger.released != 1 || ledger.claimed[dedupe.Key(&ev)] {
		t.Errorf("released = %d", ledger.released)
	}

	ledger.err = errBoom
	ev.StatusVersion = 6
	if rec := env.do(t, http.MethodPost, "/api/v1/events/dispatch", svc, ev); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ledger failure status = %d, want 503", rec.Code)
	}
}

func TestEnqueueEvent(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(t, http.MethodPost, "/api/v1/events/notifications", env.token(t, "svc", models.RoleService), validEvent())
		if rec.Code != http.StatusAccepted || len(env.notifier.async) != 1 {
			t.Errorf("status = %d async = %d", rec.Code, len(env.notifier.async))
		}
	})

	t.Run("nats", func(t *testing.T) {
		pub := &fakePublisher{}
		env := newTestEnv(t, func(d *Dependencies) { d.Publisher = pub })
		tok := env.token(t, "svc", models.RoleService)

		rec := env.do(t, http.MethodPost, "/api/v1/events/notifications", tok, validEvent())
		var res EnqueueResult
		if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &res); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusAccepted || res.Via != ViaNATS || len(pub.notifications) != 1 {
			t.Errorf("status = %d res = %+v", rec.Code, res)
		}
		if len(env.notifier.async) != 0 {
			t.Error("nats mode must not dispatch in-process")
		}

		pub.err = errBoom
		if rec := env.do(t, http.MethodPost, "/api/v1/events/notifications", tok, validEvent()); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("publish failure status = %d", rec.Code)
		}
	})
}

func TestAdminEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.token(t, "adm-1", models.RoleAdmin)
	marketer := env.token(t, "mkt-1", models.RoleMarketer)

	ev := models.AdminEvent{Kind: models.AdminEventOrderCancelled, OrderNumber: "A-1001", DriverName: "Sam", Reason: "no access"}

	rec := env.do(t, http.MethodPost, "/api/v1/events/admin", admin, ev)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var res EnqueueResult
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Via != ViaLocal || res.Summary == nil || res.Summary.Delivered != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(env.broadcaster.events) != 1 || env.broadcaster.events[0].DriverName != "Sam" {
		t.Errorf("broadcasts = %+v", env.broadcaster.events)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/events/admin", marketer, ev); rec.Code != http.StatusForbidden {
		t.Errorf("marketer status = %d, want 403", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/events/admin", admin, models.AdminEvent{Kind: "refund"}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid kind status = %d, want 400", rec.Code)
	}
}

func TestAdminEvent_ViaNATS(t *testing.T) {
	pub := &fakePublisher{}
	env := newTestEnv(t, func(d *Dependencies) { d.Publisher = pub })

	ev := models.AdminEvent{Kind: models.AdminEventNewOrder, OrderNumber: "A-2002"}
	rec := env.do(t, http.MethodPost, "/api/v1/events/admin", env.token(t, "svc", models.RoleService), ev)
	if rec.Code != http.StatusAccepted || len(pub.admin) != 1 || len(env.broadcaster.events) != 0 {
		t.Errorf("status = %d published = %d local = %d", rec.Code, len(pub.admin), len(env.broadcaster.events))
	}
}

func TestUpsertUser(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.token(t, "adm-1", models.RoleAdmin)

	rec := env.do(t, http.MethodPut, "/api/v1/directory/users/u-9", admin, models.User{ID: "ignored", Name: "Ana", Role: models.RoleMarketer})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if u := env.store.users["u-9"]; u.Name != "Ana" || u.Role != models.RoleMarketer {
		t.Errorf("stored = %+v", u)
	}
	if _, ok := env.store.users["ignored"]; ok {
		t.Error("body id must not override the path id")
	}

	if rec := env.do(t, http.MethodPut, "/api/v1/directory/users/u-9", admin, models.User{Role: models.RoleService}); rec.Code != http.StatusBadRequest {
		t.Errorf("SERVICE role status = %d, want 400", rec.Code)
	}
	svc := env.token(t, "svc", models.RoleService)
	if rec := env.do(t, http.MethodPut, "/api/v1/directory/users/u-9", svc, models.User{Role: models.RoleAdmin}); rec.Code != http.StatusForbidden {
		t.Errorf("service status = %d, want 403", rec.Code)
	}
}

func TestWebSocket_Authorization(t *testing.T) {
	env := newTestEnv(t, nil)

	driver := env.token(t, "drv-1", models.RoleDriver)
	if rec := env.do(t, http.MethodGet, "/api/v1/ws?token="+driver, "", nil); rec.Code != http.StatusForbidden {
		t.Errorf("driver status = %d, want 403", rec.Code)
	}

	// No hub configured: an authorized caller gets 503 instead of an upgrade.
	admin := env.token(t, "adm-1", models.RoleAdmin)
	if rec := env.do(t, http.MethodGet, "/api/v1/ws?token="+admin, "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("admin status = %d, want 503", rec.Code)
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/v1/nope", env.token(t, "u", models.RoleAdmin), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeEnvelope(t, rec); e.Success || e.Error == nil || e.Error.Code != ErrCodeNotFound {
		t.Errorf("envelope = %+v", e)
	}
}
