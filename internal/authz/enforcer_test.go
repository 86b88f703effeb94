// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package authz

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/tomtom215/orderbell/internal/config"
)

func setupEnforcer(t *testing.T, cfg *config.CasbinConfig) *Enforcer {
	t.Helper()
	e, err := NewEnforcer(cfg)
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestEnforcer_EmbeddedPolicy(t *testing.T) {
	e := setupEnforcer(t, nil)

	tests := []struct {
		role, obj, act string
		want           bool
	}{
		{"ADMIN", ObjectEvents, ActionDispatch, true},
		{"ADMIN", ObjectEvents, ActionBroadcast, true},
		{"ADMIN", ObjectDirectory, ActionWrite, true},
		{"ADMIN", ObjectRealtime, ActionSubscribe, true},
		{"SERVICE", ObjectEvents, ActionDispatch, true},
		{"SERVICE", ObjectEvents, ActionBroadcast, true},
		{"SERVICE", ObjectDirectory, ActionWrite, false},
		{"SERVICE", ObjectRealtime, ActionSubscribe, false},
		{"MARKETER", ObjectRealtime, ActionSubscribe, true},
		{"MARKETER", ObjectEvents, ActionDispatch, false},
		{"DRIVER", ObjectRealtime, ActionSubscribe, false},
		{"CUSTOMER", ObjectEvents, ActionDispatch, false},
		{"", ObjectEvents, ActionDispatch, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.obj+"/"+tt.act, func(t *testing.T) {
			got, err := e.Enforce(tt.role, tt.obj, tt.act)
			if err != nil {
				t.Fatalf("Enforce: %v", err)
			}
			if got != tt.want {
				t.Errorf("Enforce(%q, %q, %q) = %v, want %v", tt.role, tt.obj, tt.act, got, tt.want)
			}
		})
	}
}

func TestEnforcer_CachesDecisions(t *testing.T) {
	e := setupEnforcer(t, nil)

	for i := 0; i < 3; i++ {
		if ok, _ := e.Enforce("ADMIN", ObjectEvents, ActionDispatch); !ok {
			t.Fatal("expected allow")
		}
	}
	if n := e.cache.len(); n != 1 {
		t.Errorf("cache entries = %d, want 1", n)
	}
}

func TestEnforcer_RolesFor(t *testing.T) {
	e := setupEnforcer(t, nil)

	roles := e.RolesFor("ADMIN")
	for _, want := range []string{"ADMIN", "SERVICE", "MARKETER"} {
		if !slices.Contains(roles, want) {
			t.Errorf("RolesFor(ADMIN) = %v, missing %s", roles, want)
		}
	}
	if roles := e.RolesFor("DRIVER"); len(roles) != 1 {
		t.Errorf("RolesFor(DRIVER) = %v", roles)
	}
}

func TestEnforcer_PolicyFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(path, []byte("p, DRIVER, realtime, subscribe\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	e := setupEnforcer(t, &config.CasbinConfig{PolicyPath: path})

	if ok, _ := e.Enforce("DRIVER", ObjectRealtime, ActionSubscribe); !ok {
		t.Error("file policy should allow DRIVER realtime")
	}
	if ok, _ := e.Enforce("ADMIN", ObjectEvents, ActionDispatch); ok {
		t.Error("file policy replaces the embedded one")
	}
}

func TestNewEnforcer_BadPaths(t *testing.T) {
	if _, err := NewEnforcer(&config.CasbinConfig{ModelPath: filepath.Join(t.TempDir(), "missing.conf")}); err == nil {
		t.Error("missing model file should fail")
	}
}

func TestLoadPolicy_Malformed(t *testing.T) {
	e := setupEnforcer(t, nil)

	tests := []string{
		"p, ADMIN, events",
		"g, ADMIN",
		"x, a, b",
	}
	for _, line := range tests {
		if err := loadPolicy(e.enforcer, line); err == nil {
			t.Errorf("loadPolicy(%q) expected error", line)
		}
	}
}
