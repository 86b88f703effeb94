// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCookie is the cookie carrying the token for browser clients.
const TokenCookie = "token"

// TokenQueryParam carries the token on websocket upgrades, where browsers
// cannot set headers.
const TokenQueryParam = "token"

// JWTAuthenticator authenticates requests using JWT tokens.
type JWTAuthenticator struct {
	manager     *JWTManager
	tokenCookie string
}

// NewJWTAuthenticator creates an authenticator backed by manager.
func NewJWTAuthenticator(manager *JWTManager) *JWTAuthenticator {
	return &JWTAuthenticator{
		manager:     manager,
		tokenCookie: TokenCookie,
	}
}

// Authenticate reads the token from the Authorization header, then the
// token cookie.
func (a *JWTAuthenticator) Authenticate(_ context.Context, r *http.Request) (*AuthSubject, error) {
	return a.authenticate(a.extractToken(r, false))
}

// AuthenticateWebSocket additionally accepts the token query parameter.
func (a *JWTAuthenticator) AuthenticateWebSocket(_ context.Context, r *http.Request) (*AuthSubject, error) {
	return a.authenticate(a.extractToken(r, true))
}

func (a *JWTAuthenticator) authenticate(tokenStr string) (*AuthSubject, error) {
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}

	claims, err := a.manager.ValidateToken(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, ErrInvalidCredentials
	}

	return AuthSubjectFromClaims(claims), nil
}

func (a *JWTAuthenticator) extractToken(r *http.Request, allowQuery bool) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}

	if cookie, err := r.Cookie(a.tokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if allowQuery {
		return r.URL.Query().Get(TokenQueryParam)
	}
	return ""
}
