// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package auth

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/orderbell/internal/config"
	"github.com/tomtom215/orderbell/internal/logging"
)

// Middleware enforces authentication on API routes.
type Middleware struct {
	authMode      AuthMode
	authenticator *JWTAuthenticator
}

// NewMiddleware builds the middleware for the configured auth mode.
func NewMiddleware(cfg *config.SecurityConfig) (*Middleware, error) {
	mode, err := ParseAuthMode(cfg.AuthMode)
	if err != nil {
		return nil, err
	}

	m := &Middleware{authMode: mode}
	if mode == AuthModeNone {
		logging.Warn().Msg("Authentication disabled (auth_mode=none); every request runs as an anonymous admin")
		return m, nil
	}

	manager, err := NewJWTManager(cfg)
	if err != nil {
		return nil, err
	}
	m.authenticator = NewJWTAuthenticator(manager)
	return m, nil
}

// Mode returns the active auth mode.
func (m *Middleware) Mode() AuthMode {
	return m.authMode
}

// Authenticate rejects requests without a valid token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return m.wrap(next, false)
}

// AuthenticateWebSocket is Authenticate that also accepts ?token=.
func (m *Middleware) AuthenticateWebSocket(next http.Handler) http.Handler {
	return m.wrap(next, true)
}

func (m *Middleware) wrap(next http.Handler, websocket bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.authMode == AuthModeNone {
			next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), AnonymousSubject())))
			return
		}

		var (
			subject *AuthSubject
			err     error
		)
		if websocket {
			subject, err = m.authenticator.AuthenticateWebSocket(r.Context(), r)
		} else {
			subject, err = m.authenticator.Authenticate(r.Context(), r)
		}
		if err != nil {
			writeAuthError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
	})
}

// writeAuthError answers 401 in the API envelope shape.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Debug().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")

	message := "authentication failed"
	switch {
	case errors.Is(err, ErrNoCredentials):
		message = "authentication required"
	case errors.Is(err, ErrExpiredCredentials):
		message = "credentials expired"
	case errors.Is(err, ErrInvalidCredentials):
		message = "invalid credentials"
	}

	body := map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="orderbell"`)
	w.WriteHeader(http.StatusUnauthorized)
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		logging.Error().Err(encErr).Msg("Failed to encode auth error")
	}
}
