// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/orderbell/internal/logging"
	"github.com/tomtom215/orderbell/internal/metrics"
	"github.com/tomtom215/orderbell/internal/models"
)

// BreakerName labels the push breaker in logs and metrics.
const BreakerName = "webpush"

// ResilientConfig tunes ResilientSender.
type ResilientConfig struct {
	// RateLimit is sends per second; 0 disables limiting.
	RateLimit float64
	RateBurst int

	// FailureThreshold consecutive transient failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// ResilientSender guards a Sender with a circuit breaker and a token-bucket
// limiter. Permanent per-subscription errors never trip the breaker.
type ResilientSender struct {
	next    Sender
	cb      *gobreaker.CircuitBreaker[interface{}]
	limiter *rate.Limiter
}

// NewResilientSender wraps next.
func NewResilientSender(next Sender, cfg ResilientConfig) *ResilientSender {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        BreakerName,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String())
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Push circuit breaker state changed")
		},
	}

	s := &ResilientSender{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[interface{}](settings),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// State returns the breaker state ("closed", "half-open" or "open").
func (s *ResilientSender) State() string {
	return s.cb.State().String()
}

// Send implements Sender.
func (s *ResilientSender) Send(ctx context.Context, target models.PushDeliveryTarget, payload []byte) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			metrics.CircuitBreakerRequests.WithLabelValues(BreakerName, "rate_limited").Inc()
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Send(ctx, target, payload)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(BreakerName, "rejected").Inc()
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(BreakerName, "failure").Inc()
		return err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(BreakerName, "success").Inc()
		return nil
	}
}
