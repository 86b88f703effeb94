// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package authz

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tomtom215/orderbell/internal/auth"
	"github.com/tomtom215/orderbell/internal/models"
)

func TestMiddleware_Require(t *testing.T) {
	mw := NewMiddleware(setupEnforcer(t, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		subject  *auth.AuthSubject
		obj, act string
		wantCode int
	}{
		{"admin broadcast", &auth.AuthSubject{ID: "a", Role: models.RoleAdmin}, ObjectEvents, ActionBroadcast, http.StatusNoContent},
		{"service dispatch", &auth.AuthSubject{ID: "svc", Role: models.RoleService}, ObjectEvents, ActionDispatch, http.StatusNoContent},
		{"driver dispatch", &auth.AuthSubject{ID: "d", Role: models.RoleDriver}, ObjectEvents, ActionDispatch, http.StatusForbidden},
		{"marketer directory", &auth.AuthSubject{ID: "m", Role: models.RoleMarketer}, ObjectDirectory, ActionWrite, http.StatusForbidden},
		{"no subject", nil, ObjectEvents, ActionDispatch, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events/dispatch", nil)
			if tt.subject != nil {
				req = req.WithContext(auth.ContextWithSubject(req.Context(), tt.subject))
			}
			rec := httptest.NewRecorder()
			mw.Require(tt.obj, tt.act)(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusForbidden && !strings.Contains(rec.Body.String(), `"FORBIDDEN"`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}
