// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

// Package authz maps caller roles to permitted API actions using Casbin RBAC.
//
// The default model and policy are embedded. Objects and actions:
//
//	events     dispatch, broadcast
//	directory  write
//	realtime   subscribe
//
// ADMIN inherits SERVICE and MARKETER permissions.
package authz

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/orderbell/internal/config"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Objects and actions referenced by route guards.
const (
	ObjectEvents    = "events"
	ObjectDirectory = "directory"
	ObjectRealtime  = "realtime"

	ActionDispatch  = "dispatch"
	ActionBroadcast = "broadcast"
	ActionWrite     = "write"
	ActionSubscribe = "subscribe"
)

const defaultCacheTTL = 5 * time.Minute

// Enforcer wraps a synced Casbin enforcer with a decision cache.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
	cache    *enforcementCache
}

// NewEnforcer loads the model and policy. Paths in cfg override the
// embedded defaults; a configured path that cannot be loaded is an error.
func NewEnforcer(cfg *config.CasbinConfig) (*Enforcer, error) {
	if cfg == nil {
		cfg = &config.CasbinConfig{}
	}

	var (
		m   model.Model
		err error
	)
	if cfg.ModelPath != "" {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	return &Enforcer{
		enforcer: enforcer,
		cache:    newEnforcementCache(defaultCacheTTL),
	}, nil
}

// loadPolicy adds the p and g lines of a policy CSV.
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch rule := parts[1:]; parts[0] {
		case "p":
			if len(rule) != 3 {
				return fmt.Errorf("malformed policy line %q", line)
			}
			if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", rule, err)
			}
		case "g":
			if len(rule) != 2 {
				return fmt.Errorf("malformed grouping line %q", line)
			}
			if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
			}
		default:
			return fmt.Errorf("unknown policy type in %q", line)
		}
	}
	return nil
}

// Enforce reports whether role may perform act on obj.
func (e *Enforcer) Enforce(role, obj, act string) (bool, error) {
	start := time.Now()
	if allowed, ok := e.cache.get(role, obj, act); ok {
		recordDecision(role, obj, act, allowed, true, time.Since(start))
		return allowed, nil
	}

	allowed, err := e.enforcer.Enforce(role, obj, act)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	e.cache.set(role, obj, act, allowed)
	recordDecision(role, obj, act, allowed, false, time.Since(start))
	return allowed, nil
}

// RolesFor returns the roles role inherits from, including itself.
func (e *Enforcer) RolesFor(role string) []string {
	inherited, err := e.enforcer.GetImplicitRolesForUser(role)
	if err != nil {
		return []string{role}
	}
	return append([]string{role}, inherited...)
}

// Close stops the cache janitor.
func (e *Enforcer) Close() {
	e.cache.stop()
}
