// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/orderbell/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", msg)
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame %s: %v", frame, err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return Envelope{}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame on %s: %s", c.channel, frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_RoutesByChannel(t *testing.T) {
	hub := startHub(t)

	a1 := NewClient(hub, nil, "admin-1")
	a1b := NewClient(hub, nil, "admin-1")
	a2 := NewClient(hub, nil, "admin-2")
	for _, c := range []*Client{a1, a1b, a2} {
		hub.Register <- c
	}
	waitFor(t, func() bool { return hub.GetClientCount() == 3 }, "registration")

	if got := hub.ChannelClientCount("admin-1"); got != 2 {
		t.Errorf("ChannelClientCount(admin-1) = %d, want 2", got)
	}

	payload := map[string]string{"orderNumber": "ORD-1"}
	if err := hub.Publish(context.Background(), "admin-1", "new-order", payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, c := range []*Client{a1, a1b} {
		env := receive(t, c)
		if env.Channel != "admin-1" || env.Event != "new-order" {
			t.Errorf("envelope = %+v", env)
		}
		var data map[string]string
		if err := json.Unmarshal(env.Data, &data); err != nil || data["orderNumber"] != "ORD-1" {
			t.Errorf("data = %s, %v", env.Data, err)
		}
	}
	assertNothing(t, a2)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := startHub(t)

	if err := hub.Publish(context.Background(), "admin-nobody", "new-order", nil); err != nil {
		t.Errorf("Publish to empty channel = %v, want nil", err)
	}
	if err := hub.Publish(context.Background(), "", "new-order", nil); !errors.Is(err, ErrEmptyChannel) {
		t.Errorf("Publish to blank channel = %v, want ErrEmptyChannel", err)
	}
}

func TestHub_PublishBoundedByContextWhenStopped(t *testing.T) {
	hub := NewHub() // never run
	for i := 0; i < cap(hub.deliver); i++ {
		hub.deliver <- delivery{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := hub.Publish(ctx, "admin-1", "new-order", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish = %v, want deadline exceeded", err)
	}
}

func TestHub_UnregisterAndSlowClient(t *testing.T) {
	hub := startHub(t)

	slow := NewClient(hub, nil, "admin-1")
	gone := NewClient(hub, nil, "admin-1")
	hub.Register <- slow
	hub.Register <- gone
	waitFor(t, func() bool { return hub.GetClientCount() == 2 }, "registration")

	hub.Unregister <- gone
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "unregister")
	if _, ok := <-gone.send; ok {
		t.Error("unregistered client's send channel should be closed")
	}

	// Fill the slow client's buffer and one more.
	for i := 0; i <= sendBuffer; i++ {
		if err := hub.Publish(context.Background(), "admin-1", "tick", i); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	waitFor(t, func() bool { return hub.GetClientCount() == 0 }, "slow client drop")
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.RunWithContext(ctx) }()

	c := NewClient(hub, nil, "admin-1")
	hub.Register <- c
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "registration")

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithContext = %v, want context.Canceled", err)
	}
	if _, ok := <-c.send; ok {
		t.Error("client send channel should be closed on shutdown")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("GetClientCount = %d after shutdown", hub.GetClientCount())
	}
}

func TestGetShutdownReason(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextCanceled {
		t.Errorf("reason = %s", got)
	}

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextDeadline {
		t.Errorf("reason = %s", got)
	}
}
