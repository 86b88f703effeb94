// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package validation

import (
	"strings"
	"testing"

	"github.com/tomtom215/orderbell/internal/models"
)

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func validEvent() models.NotificationEvent {
	return models.NotificationEvent{
		RecipientUserID: "user-1",
		OrderID:         "order-1",
		OrderNumber:     "ORD-1001",
		EventType:       models.EventOrderShipped,
		ActorName:       "Ahmed",
	}
}

func TestValidateStruct_NotificationEvent(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(e *models.NotificationEvent)
		wantField string
		wantTag   string
	}{
		{name: "valid", mutate: func(*models.NotificationEvent) {}},
		{
			name:      "missing recipient",
			mutate:    func(e *models.NotificationEvent) { e.RecipientUserID = "" },
			wantField: "recipientUserId",
			wantTag:   "required",
		},
		{
			name:      "unknown event type",
			mutate:    func(e *models.NotificationEvent) { e.EventType = "order_teleported" },
			wantField: "eventType",
			wantTag:   "eventtype",
		},
		{
			name:      "negative status version",
			mutate:    func(e *models.NotificationEvent) { e.StatusVersion = -1 },
			wantField: "statusVersion",
			wantTag:   "gte",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validEvent()
			tt.mutate(&ev)

			verr := ValidateStruct(&ev)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("expected no error, got %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.wantField {
				t.Errorf("field = %q, want %q", errs[0].Field(), tt.wantField)
			}
			if errs[0].Tag() != tt.wantTag {
				t.Errorf("tag = %q, want %q", errs[0].Tag(), tt.wantTag)
			}
		})
	}
}

func TestValidateStruct_AdminEvent(t *testing.T) {
	ev := models.AdminEvent{Kind: "order_lost", OrderNumber: ""}

	verr := ValidateStruct(&ev)
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if len(verr.Errors()) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(verr.Errors()), verr)
	}
	if !strings.Contains(verr.Error(), "kind must be one of") {
		t.Errorf("unexpected message: %s", verr.Error())
	}
}

func TestToAPIError(t *testing.T) {
	ev := validEvent()
	ev.OrderNumber = ""

	apiErr := ValidateStruct(&ev).ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", apiErr.Code)
	}
	if apiErr.Message != "orderNumber is required" {
		t.Errorf("message = %q", apiErr.Message)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 1 || fields[0]["field"] != "orderNumber" {
		t.Errorf("unexpected details: %#v", apiErr.Details)
	}
}
