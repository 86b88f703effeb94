// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package authz

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/orderbell/internal/auth"
	"github.com/tomtom215/orderbell/internal/logging"
)

// Middleware guards routes with the enforcer.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates an authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// Require admits requests whose authenticated role may perform act on obj.
// It must run after auth.Middleware.
func (m *Middleware) Require(obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := auth.GetAuthSubject(r.Context())
			if subject == nil {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "no authentication context")
				return
			}

			allowed, err := m.enforcer.Enforce(string(subject.Role), obj, act)
			if err != nil {
				logging.Error().Err(err).Str("object", obj).Str("action", act).Msg("Authorization error")
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "authorization check failed")
				return
			}
			if !allowed {
				logging.Debug().
					Str("user_id", subject.ID).
					Str("role", string(subject.Role)).
					Str("object", obj).
					Str("action", act).
					Msg("Authorization denied")
				writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode authz error")
	}
}
