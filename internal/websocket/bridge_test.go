// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package websocket

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type chanSource struct {
	ch      chan []byte
	subject atomic.Value
	err     error
}

func (s *chanSource) Subscribe(_ context.Context, subject string) (<-chan []byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.subject.Store(subject)
	return s.ch, nil
}

func (s *chanSource) Close() error { return nil }

func TestBridge_ForwardsEnvelopes(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub, nil, "admin-3")
	hub.Register <- c
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "registration")

	src := &chanSource{ch: make(chan []byte, 4)}
	b := NewBridge(hub, src, "realtime.>")
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	if got := src.subject.Load(); got != "realtime.>" {
		t.Errorf("subscribed to %v", got)
	}
	if !b.IsRunning() {
		t.Error("IsRunning = false after Start")
	}

	src.ch <- []byte(`not json`)
	src.ch <- []byte(`{"event":"new-order","data":{}}`)
	src.ch <- []byte(`{"channel":"admin-3","event":"new-order","data":{"orderNumber":"ORD-5"}}`)

	env := receive(t, c)
	if env.Channel != "admin-3" || env.Event != "new-order" || string(env.Data) != `{"orderNumber":"ORD-5"}` {
		t.Errorf("envelope = %+v data=%s", env, env.Data)
	}
	assertNothing(t, c)

	b.Stop()
	if b.IsRunning() {
		t.Error("IsRunning = true after Stop")
	}
}

func TestBridge_StartError(t *testing.T) {
	src := &chanSource{err: errors.New("no broker")}
	b := NewBridge(NewHub(), src, "realtime.>")
	if err := b.Start(context.Background()); err == nil {
		t.Fatal("Start should fail")
	}
	if b.IsRunning() {
		t.Error("IsRunning = true after failed Start")
	}
	b.Stop() // no-op
}
