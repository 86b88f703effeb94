// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/orderbell/internal/metrics"
	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/push"
)

// PushTargetStore lists a user's registered devices.
type PushTargetStore interface {
	ListPushTargets(ctx context.Context, userID string) ([]models.PushDeliveryTarget, error)
}

// GoneFunc is called for every target the push service reports as gone.
type GoneFunc func(ctx context.Context, target models.PushDeliveryTarget)

// PushRequest is one push delivery to every device of a user.
type PushRequest struct {
	UserID      string
	OrderID     string
	OrderNumber string
	EventType   models.EventType
	ActorName   string
	Title       string
	Body        string
}

// PushResult reports the fan-out across the user's devices.
type PushResult struct {
	Success   bool
	Targets   int
	Delivered int
	Gone      int
	// Skipped counts sends refused because push delivery is disabled.
	Skipped   int
	Error     string
	ErrorCode string
}

var errSendPanic = errors.New("push send panicked")

// PushAdapter fans one payload out to every device of a user.
type PushAdapter struct {
	targets     PushTargetStore
	sender      push.Sender
	parallelism int
	onGone      GoneFunc
	logger      zerolog.Logger
}

// PushAdapterOption configures a PushAdapter.
type PushAdapterOption func(*PushAdapter)

// WithParallelism bounds concurrent sends per dispatch.
func WithParallelism(n int) PushAdapterOption {
	return func(a *PushAdapter) {
		if n > 0 {
			a.parallelism = n
		}
	}
}

// WithGoneHook sets the prune hook for expired subscriptions.
func WithGoneHook(fn GoneFunc) PushAdapterOption {
	return func(a *PushAdapter) { a.onGone = fn }
}

// NewPushAdapter creates a push adapter.
func NewPushAdapter(targets PushTargetStore, sender push.Sender, logger zerolog.Logger, opts ...PushAdapterOption) *PushAdapter {
	a := &PushAdapter{
		targets:     targets,
		sender:      sender,
		parallelism: 4,
		logger:      logger.With().Str("component", "push_adapter").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Deliver sends to every target of req.UserID. A user without devices is a
// success, and so is a user whose every send was skipped because push is
// disabled; otherwise at least one device must accept the message. A panic
// in the sender or the gone hook fails that device only.
func (a *PushAdapter) Deliver(ctx context.Context, req *PushRequest) *PushResult {
	targets, err := a.targets.ListPushTargets(ctx, req.UserID)
	if err != nil {
		return &PushResult{
			Error:     fmt.Sprintf("list push targets: %v", err),
			ErrorCode: ErrorCodeLookup,
		}
	}
	if len(targets) == 0 {
		return &PushResult{Success: true}
	}

	payload, err := json.Marshal(models.PushPayload{
		Title: req.Title,
		Body:  req.Body,
		Data: models.PushPayloadData{
			OrderID:     req.OrderID,
			OrderNumber: req.OrderNumber,
			Type:        req.EventType,
			ActorName:   req.ActorName,
		},
	})
	if err != nil {
		return &PushResult{
			Targets:   len(targets),
			Error:     fmt.Sprintf("encode push payload: %v", err),
			ErrorCode: ErrorCodeSendFailed,
		}
	}

	result := &PushResult{Targets: len(targets)}
	var (
		mu      sync.Mutex
		lastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for _, target := range targets {
		g.Go(func() error {
			// Per-target failures never cancel the siblings.
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					lastErr = fmt.Errorf("%w: %v", errSendPanic, r)
					mu.Unlock()
					metrics.RecordPushSend(metrics.ResultFailure)
					a.logger.Error().Interface("panic", r).Str("target_id", target.ID).Msg("Push send panicked")
				}
			}()
			a.sendOne(gctx, target, payload, result, &mu, &lastErr)
			return nil
		})
	}
	_ = g.Wait()

	result.Success = result.Delivered > 0 || result.Skipped == result.Targets
	if result.Success {
		return result
	}

	result.Error = fmt.Sprintf("no device accepted the message (%d targets): %v", result.Targets, lastErr)
	result.ErrorCode = pushErrorCode(lastErr)
	return result
}

// sendOne delivers to a single device and folds the result into res.
func (a *PushAdapter) sendOne(ctx context.Context, target models.PushDeliveryTarget, payload []byte, res *PushResult, mu *sync.Mutex, lastErr *error) {
	sendErr := a.sender.Send(ctx, target, payload)
	gone := errors.Is(sendErr, push.ErrEndpointGone)

	mu.Lock()
	switch {
	case sendErr == nil:
		res.Delivered++
		metrics.RecordPushSend("delivered")
	case errors.Is(sendErr, push.ErrDisabled):
		res.Skipped++
		metrics.RecordPushSend(metrics.ResultSkipped)
	case gone:
		res.Gone++
		*lastErr = sendErr
		metrics.RecordPushSend("gone")
	default:
		*lastErr = sendErr
		metrics.RecordPushSend(metrics.ResultFailure)
	}
	mu.Unlock()

	if gone && a.onGone != nil {
		a.onGone(ctx, target)
	}
	if sendErr != nil && !gone {
		a.logger.Debug().Err(sendErr).Str("target_id", target.ID).Msg("Push send failed")
	}
}

func pushErrorCode(err error) string {
	switch {
	case errors.Is(err, push.ErrEndpointGone):
		return ErrorCodeGone
	case errors.Is(err, push.ErrRateLimited):
		return ErrorCodeRateLimited
	case errors.Is(err, push.ErrCircuitOpen):
		return ErrorCodeCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	case errors.Is(err, errSendPanic):
		return ErrorCodePanic
	default:
		return ErrorCodeSendFailed
	}
}
