// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

// Package auth authenticates API callers from HS256 JWTs and exposes the
// resulting subject on the request context.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/orderbell/internal/models"
)

// AuthMode selects how requests are authenticated.
type AuthMode string

const (
	// AuthModeNone disables authentication. Local development only.
	AuthModeNone AuthMode = "none"

	// AuthModeJWT uses HS256 JWT bearer tokens.
	AuthModeJWT AuthMode = "jwt"
)

// ParseAuthMode parses a configured auth mode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "none":
		return AuthModeNone, nil
	case "jwt", "":
		return AuthModeJWT, nil
	default:
		return "", errors.New("invalid auth mode: " + s)
	}
}

func (m AuthMode) String() string {
	return string(m)
}

var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// AnonymousUserID is the subject injected when authentication is disabled.
const AnonymousUserID = "anonymous"

// AuthSubject is an authenticated caller.
type AuthSubject struct {
	// ID is the user id from the token's sub claim.
	ID   string      `json:"id"`
	Name string      `json:"name,omitempty"`
	Role models.Role `json:"role"`

	AuthMethod AuthMode `json:"auth_method"`
	ExpiresAt  int64    `json:"expires_at,omitempty"`
}

// HasRole reports whether the subject holds role.
func (s *AuthSubject) HasRole(role models.Role) bool {
	return s != nil && role != "" && s.Role == role
}

// IsExpired reports whether the subject's credentials have expired.
func (s *AuthSubject) IsExpired() bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > s.ExpiresAt
}

// AnonymousSubject is the development identity used with AuthModeNone. It
// holds the admin role so that every route is reachable locally.
func AnonymousSubject() *AuthSubject {
	return &AuthSubject{
		ID:         AnonymousUserID,
		Name:       "Anonymous",
		Role:       models.RoleAdmin,
		AuthMethod: AuthModeNone,
	}
}

// AuthSubjectFromClaims converts validated claims to a subject.
func AuthSubjectFromClaims(claims *Claims) *AuthSubject {
	if claims == nil {
		return nil
	}

	subject := &AuthSubject{
		ID:         claims.Subject,
		Name:       claims.Name,
		Role:       models.Role(claims.Role),
		AuthMethod: AuthModeJWT,
	}
	if claims.ExpiresAt != nil {
		subject.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return subject
}

type contextKey string

// AuthSubjectContextKey is the context key for AuthSubject.
const AuthSubjectContextKey contextKey = "auth_subject"

// ContextWithSubject returns ctx carrying subject.
func ContextWithSubject(ctx context.Context, subject *AuthSubject) context.Context {
	return context.WithValue(ctx, AuthSubjectContextKey, subject)
}

// GetAuthSubject retrieves the AuthSubject from the request context.
func GetAuthSubject(ctx context.Context) *AuthSubject {
	subject, ok := ctx.Value(AuthSubjectContextKey).(*AuthSubject)
	if !ok {
		return nil
	}
	return subject
}
