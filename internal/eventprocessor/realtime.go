// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package eventprocessor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/orderbell/internal/websocket"
)

// RealtimeRelay publishes dashboard events on core NATS so that every
// instance's hub can deliver them. It implements notify.RealtimePublisher.
// Core NATS is fire-and-forget: an event published while nobody listens is
// gone, which matches the hub's own semantics.
type RealtimeRelay struct {
	nc     *natsgo.Conn
	prefix string
}

// NewRealtimeRelay creates a relay publishing to prefix.{channel}.
func NewRealtimeRelay(nc *natsgo.Conn, prefix string) *RealtimeRelay {
	return &RealtimeRelay{nc: nc, prefix: prefix}
}

// Subject returns the wildcard subject covering every channel.
func (r *RealtimeRelay) Subject() string {
	return r.prefix + ".>"
}

// Publish implements notify.RealtimePublisher.
func (r *RealtimeRelay) Publish(ctx context.Context, channel, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channel == "" || strings.ContainsAny(channel, " *>") {
		return fmt.Errorf("invalid realtime channel %q", channel)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal realtime payload: %w", err)
	}
	frame, err := json.Marshal(websocket.Envelope{Channel: channel, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal realtime envelope: %w", err)
	}

	if err := r.nc.Publish(r.prefix+"."+channel, frame); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}

// CoreSource adapts a core NATS connection to websocket.MessageSource.
type CoreSource struct {
	nc *natsgo.Conn

	mu     sync.Mutex
	subs   []*natsgo.Subscription
	done   chan struct{}
	closed bool
}

// NewCoreSource creates a source on nc. The connection is not owned.
func NewCoreSource(nc *natsgo.Conn) *CoreSource {
	return &CoreSource{nc: nc, done: make(chan struct{})}
}

// Subscribe delivers message payloads for subject until ctx is done or the
// source is closed.
func (s *CoreSource) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("realtime source closed")
	}

	msgs := make(chan *natsgo.Msg, 256)
	sub, err := s.nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.subs = append(s.subs, sub)

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }() //nolint:errcheck // best-effort

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case m := <-msgs:
				select {
				case out <- m.Data:
				case <-ctx.Done():
					return
				case <-s.done:
					return
				}
			}
		}
	}()

	return out, nil
}

// Close stops every subscription. Safe to call more than once.
func (s *CoreSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.subs = nil
	return nil
}
