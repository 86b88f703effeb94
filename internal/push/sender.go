// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

// Package push delivers encrypted Web Push messages to browser subscriptions.
//
// Every transport implements Sender. WebPushSender talks to the push service
// with VAPID authentication, ResilientSender adds a circuit breaker and a rate
// limiter in front of any Sender, and NopSender stands in when push delivery
// is disabled.
//
// Send errors are classified so callers can react per target:
//   - ErrEndpointGone: the subscription expired (HTTP 404/410); prune it
//   - ErrTransient: rate limited or server-side failure (HTTP 429/5xx, network)
//   - *SendError: any other rejection, permanent for this message
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/orderbell/internal/models"
)

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, target models.PushDeliveryTarget, payload []byte) error
}

var (
	// ErrEndpointGone means the push service no longer knows the subscription.
	ErrEndpointGone = errors.New("push endpoint gone")

	// ErrTransient means the send may succeed if retried later.
	ErrTransient = errors.New("transient push failure")

	// ErrCircuitOpen means the breaker rejected the send without trying.
	ErrCircuitOpen = errors.New("push circuit open")

	// ErrRateLimited means the local limiter gave up waiting for a token.
	ErrRateLimited = errors.New("push rate limited")

	// ErrDisabled is returned by NopSender.
	ErrDisabled = errors.New("push delivery disabled")
)

// SendError is a permanent rejection from the push service.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	if e.StatusCode == 0 {
		return "push rejected: " + e.Body
	}
	if e.Body == "" {
		return fmt.Sprintf("push service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// classifyStatus maps a push service response code onto the error taxonomy.
func classifyStatus(code int, body string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w (status %d)", ErrEndpointGone, code)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w (status %d)", ErrTransient, code)
	default:
		return &SendError{StatusCode: code, Body: body}
	}
}

// IsPermanent reports whether err says nothing about the health of the push
// service itself: gone subscriptions and per-message rejections.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrEndpointGone) {
		return true
	}
	var se *SendError
	return errors.As(err, &se)
}

// NopSender rejects every send with ErrDisabled.
type NopSender struct{}

// Send implements Sender.
func (NopSender) Send(context.Context, models.PushDeliveryTarget, []byte) error {
	return ErrDisabled
}
