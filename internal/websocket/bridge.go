// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/orderbell/internal/logging"
)

// MessageSource delivers raw broker messages for a subject pattern. It lets
// the bridge consume the broker without importing it.
type MessageSource interface {
	Subscribe(ctx context.Context, subject string) (<-chan []byte, error)
	Close() error
}

// Bridge republishes broker realtime envelopes on the local hub.
type Bridge struct {
	hub     *Hub
	source  MessageSource
	subject string
	timeout time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBridge creates a bridge reading subject (e.g. "realtime.>") from source.
func NewBridge(hub *Hub, source MessageSource, subject string) *Bridge {
	return &Bridge{
		hub:     hub,
		source:  source,
		subject: subject,
		timeout: 5 * time.Second,
	}
}

// Start subscribes and begins forwarding in the background.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}

	messages, err := b.source.Subscribe(ctx, b.subject)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.mu.Unlock()

	go b.processMessages(ctx, messages)

	logging.Info().Str("subject", b.subject).Msg("realtime bridge started")
	return nil
}

// Stop stops forwarding and waits for the loop to exit.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	done := b.doneCh
	b.mu.Unlock()

	<-done
	logging.Info().Msg("realtime bridge stopped")
}

// IsRunning reports whether the bridge is forwarding.
func (b *Bridge) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bridge) processMessages(ctx context.Context, messages <-chan []byte) {
	defer close(b.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case data, ok := <-messages:
			if !ok {
				return
			}
			b.handleMessage(ctx, data)
		}
	}
}

func (b *Bridge) handleMessage(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logging.Warn().Err(err).Msg("failed to unmarshal realtime envelope")
		return
	}
	if env.Channel == "" {
		logging.Warn().Msg("realtime envelope without channel dropped")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.hub.PublishRaw(pubCtx, env.Channel, env.Event, env.Data); err != nil {
		logging.Warn().Err(err).Str("channel", env.Channel).Msg("failed to forward realtime envelope")
	}
}
