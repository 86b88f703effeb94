// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/orderbell/internal/metrics"
	"github.com/tomtom215/orderbell/internal/models"
)

// DefaultChannelTimeout bounds each channel when no timeout is configured.
const DefaultChannelTimeout = 5 * time.Second

// Outcome errors that are not channel failures.
const (
	ErrAllChannelsFailed = "all channels failed"
	ErrNilEvent          = "nil event"
)

// Keys of DispatchOutcome.Details.
const (
	DetailInApp = "inApp"
	DetailPush  = "push"
)

// InAppDeliverer is the in-app channel seen by the dispatcher.
type InAppDeliverer interface {
	Deliver(ctx context.Context, req *InAppRequest) *InAppResult
}

// PushDeliverer is the push channel seen by the dispatcher.
type PushDeliverer interface {
	Deliver(ctx context.Context, req *PushRequest) *PushResult
}

// OutcomeSink receives every completed dispatch for downstream monitoring.
type OutcomeSink interface {
	PublishOutcome(ctx context.Context, event *models.NotificationEvent, outcome *models.DispatchOutcome) error
}

// DispatcherConfig holds per-channel timeouts.
type DispatcherConfig struct {
	InAppTimeout time.Duration
	PushTimeout  time.Duration
}

// Dispatcher delivers one order event to the customer over both channels.
// It is not idempotent: calling Dispatch twice stores two notifications and
// pushes twice.
type Dispatcher struct {
	inApp  InAppDeliverer
	push   PushDeliverer
	sink   OutcomeSink
	cfg    DispatcherConfig
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. sink may be nil.
func NewDispatcher(inApp InAppDeliverer, push PushDeliverer, sink OutcomeSink, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.InAppTimeout <= 0 {
		cfg.InAppTimeout = DefaultChannelTimeout
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultChannelTimeout
	}
	return &Dispatcher{
		inApp:  inApp,
		push:   push,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch resolves the template and runs both channels concurrently.
// It never panics and never returns an error; every failure is reported in
// the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.NotificationEvent) *models.DispatchOutcome {
	if event == nil {
		metrics.RecordDispatchRejected()
		return &models.DispatchOutcome{Error: ErrNilEvent}
	}
	start := time.Now()

	tmpl, err := Resolve(event.EventType, TemplateParams{
		OrderNumber: event.OrderNumber,
		ActorName:   event.ActorName,
		Reason:      event.Reason,
	})
	if err != nil {
		metrics.RecordDispatchRejected()
		d.logger.Warn().Err(err).
			Str("order_id", event.OrderID).
			Str("event_type", string(event.EventType)).
			Msg("Dispatch rejected")
		return &models.DispatchOutcome{Error: err.Error()}
	}

	var (
		wg       sync.WaitGroup
		inAppRes *InAppResult
		pushRes  *PushResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		inAppRes = runChannel(ctx, d.cfg.InAppTimeout,
			func(cctx context.Context) *InAppResult {
				return d.inApp.Deliver(cctx, &InAppRequest{
					UserID:      event.RecipientUserID,
					OrderID:     event.OrderID,
					OrderNumber: event.OrderNumber,
					Title:       tmpl.Title,
					Body:        tmpl.Body,
				})
			},
			func(code, msg string) *InAppResult {
				return &InAppResult{Error: msg, ErrorCode: code}
			},
		)
		recordInApp(inAppRes)
	}()
	go func() {
		defer wg.Done()
		pushRes = runChannel(ctx, d.cfg.PushTimeout,
			func(cctx context.Context) *PushResult {
				return d.push.Deliver(cctx, &PushRequest{
					UserID:      event.RecipientUserID,
					OrderID:     event.OrderID,
					OrderNumber: event.OrderNumber,
					EventType:   event.EventType,
					ActorName:   event.ActorName,
					Title:       tmpl.Title,
					Body:        tmpl.Body,
				})
			},
			func(code, msg string) *PushResult {
				return &PushResult{Error: msg, ErrorCode: code}
			},
		)
		recordPush(pushRes)
	}()
	wg.Wait()

	outcome := aggregate(inAppRes, pushRes)
	elapsed := time.Since(start)
	metrics.RecordDispatch(outcome.InAppSuccess, outcome.PushSuccess, elapsed)
	d.logOutcome(event, outcome, elapsed)

	if d.sink != nil {
		if err := d.sink.PublishOutcome(ctx, event, outcome); err != nil {
			d.logger.Warn().Err(err).Str("order_id", event.OrderID).Msg("Failed to publish dispatch outcome")
		}
	}
	return outcome
}

func aggregate(inApp *InAppResult, push *PushResult) *models.DispatchOutcome {
	if inApp == nil {
		inApp = &InAppResult{Error: "in-app adapter returned no result"}
	}
	if push == nil {
		push = &PushResult{Error: "push adapter returned no result"}
	}

	outcome := &models.DispatchOutcome{
		InAppSuccess:   inApp.Success,
		PushSuccess:    push.Success,
		OverallSuccess: inApp.Success || push.Success,
		NotificationID: inApp.NotificationID,
	}

	details := make(map[string]string, 2)
	if !inApp.Success {
		details[DetailInApp] = inApp.Error
	}
	if !push.Success {
		details[DetailPush] = push.Error
	}
	if len(details) > 0 {
		outcome.Details = details
	}
	if !outcome.OverallSuccess {
		outcome.Error = ErrAllChannelsFailed
	}
	return outcome
}

func (d *Dispatcher) logOutcome(event *models.NotificationEvent, o *models.DispatchOutcome, elapsed time.Duration) {
	var e *zerolog.Event
	switch {
	case !o.OverallSuccess:
		e = d.logger.Error()
	case o.Partial():
		e = d.logger.Warn()
	default:
		e = d.logger.Debug()
	}
	e.Str("order_id", event.OrderID).
		Str("order_number", event.OrderNumber).
		Str("event_type", string(event.EventType)).
		Str("user_id", event.RecipientUserID).
		Bool("in_app", o.InAppSuccess).
		Bool("push", o.PushSuccess).
		Dur("duration", elapsed)
	if len(o.Details) > 0 {
		e = e.Interface("details", o.Details)
	}
	switch {
	case !o.OverallSuccess:
		e.Msg("Dispatch failed on every channel")
	case o.Partial():
		e.Msg("Dispatch partially failed")
	default:
		e.Msg("Dispatch complete")
	}
}

// runChannel calls fn under its own timeout. A panic or an expired timeout
// is turned into a failed result via fail, even when fn ignores ctx.
func runChannel[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) T, fail func(code, msg string) T) T {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan T, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fail(ErrorCodePanic, fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- fn(cctx)
	}()

	select {
	case res := <-done:
		return res
	case <-cctx.Done():
		if ctx.Err() != nil {
			return fail(ErrorCodeTimeout, fmt.Sprintf("cancelled: %v", ctx.Err()))
		}
		return fail(ErrorCodeTimeout, fmt.Sprintf("timed out after %s", timeout))
	}
}

// Channel metrics are recorded once per dispatch from the final result.
// Adapters never record them, since a timed-out adapter may still finish.
func recordInApp(res *InAppResult) {
	switch {
	case res == nil:
		metrics.RecordChannelDelivery(models.ChannelInApp, metrics.ResultFailure)
	case res.Success:
		metrics.RecordChannelDelivery(models.ChannelInApp, metrics.ResultSuccess)
	default:
		metrics.RecordChannelDelivery(models.ChannelInApp, failureResult(res.ErrorCode))
	}
}

func recordPush(res *PushResult) {
	switch {
	case res == nil:
		metrics.RecordChannelDelivery(models.ChannelPush, metrics.ResultFailure)
	case res.Success && res.Delivered == 0:
		metrics.RecordChannelDelivery(models.ChannelPush, metrics.ResultSkipped)
	case res.Success:
		metrics.RecordChannelDelivery(models.ChannelPush, metrics.ResultSuccess)
	default:
		metrics.RecordChannelDelivery(models.ChannelPush, failureResult(res.ErrorCode))
	}
}

func failureResult(code string) string {
	if code == ErrorCodeTimeout {
		return metrics.ResultTimeout
	}
	return metrics.ResultFailure
}

// Notifier runs dispatches in the background so order transitions never
// wait on notification delivery.
type Notifier struct {
	dispatcher *Dispatcher
	wg         sync.WaitGroup
}

// NewNotifier wraps d.
func NewNotifier(d *Dispatcher) *Notifier {
	return &Notifier{dispatcher: d}
}

// Dispatch runs synchronously; see Dispatcher.Dispatch.
func (n *Notifier) Dispatch(ctx context.Context, event *models.NotificationEvent) *models.DispatchOutcome {
	return n.dispatcher.Dispatch(ctx, event)
}

// DispatchAsync starts a dispatch and returns immediately. The dispatch
// keeps ctx's values but not its cancellation.
func (n *Notifier) DispatchAsync(ctx context.Context, event *models.NotificationEvent) {
	ev := *event
	detached := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.dispatcher.Dispatch(detached, &ev)
	}()
}

// Wait blocks until every async dispatch has finished or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for dispatches: %w", ctx.Err())
	}
}
