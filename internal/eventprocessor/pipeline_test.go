// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package eventprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/orderbell/internal/config"
	"github.com/tomtom215/orderbell/internal/dedupe"
	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/websocket"
)

const (
	testNotificationTopic = "orders.notifications"
	testAdminTopic        = "orders.admin"
	testOutcomeTopic      = "notifications.outcomes"
)

type testBroker struct {
	url string
	nc  *natsgo.Conn
}

// startBroker runs an embedded server with the order stream on a random port.
func startBroker(t *testing.T) *testBroker {
	t.Helper()
	if testing.Short() {
		t.Skip("embedded NATS server skipped in short mode")
	}

	srv, err := NewEmbeddedServer(&ServerConfig{
		Host:              "127.0.0.1",
		Port:              -1,
		StoreDir:          t.TempDir(),
		JetStreamMaxMem:   64 << 20,
		JetStreamMaxStore: 256 << 20,
	})
	if err != nil {
		t.Fatalf("NewEmbeddedServer: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	if !srv.IsRunning() || !srv.JetStreamEnabled() {
		t.Fatal("embedded server should be running with JetStream")
	}

	nc, err := natsgo.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)

	streamCfg := DefaultStreamConfig()
	streamCfg.MemoryStorage = true
	sm, err := NewStreamManager(nc, &streamCfg)
	if err != nil {
		t.Fatalf("NewStreamManager: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := sm.EnsureStream(ctx); err != nil {
		t.Fatalf("EnsureStream: %v", err)
	}
	// Second call takes the update path.
	if _, err := sm.EnsureStream(ctx); err != nil {
		t.Fatalf("EnsureStream (update): %v", err)
	}
	info, err := sm.StreamInfo(ctx)
	if err != nil || info.Config.Name != "ORDERS" {
		t.Fatalf("StreamInfo = %+v, %v", info, err)
	}

	return &testBroker{url: srv.ClientURL(), nc: nc}
}

func (b *testBroker) publisher(t *testing.T) *EventPublisher {
	t.Helper()
	pub, err := NewPublisher(DefaultPublisherConfig(b.url), nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	pub.SetCircuitBreaker(NewCircuitBreaker(DefaultCircuitBreakerConfig("test-publisher")))
	t.Cleanup(func() { _ = pub.Close() })
	return NewEventPublisher(pub, Topics{
		Notifications: testNotificationTopic,
		Admin:         testAdminTopic,
		Outcomes:      testOutcomeTopic,
	})
}

func (b *testBroker) subscriber(t *testing.T, name string) *Subscriber {
	t.Helper()
	cfg := DefaultSubscriberConfig(b.url)
	cfg.DurableName = "test-" + name
	cfg.QueueGroup = "test-" + name
	cfg.SubscribersCount = 1
	cfg.AckWaitTimeout = 5 * time.Second
	cfg.CloseTimeout = 5 * time.Second
	cfg.StreamName = "ORDERS"
	sub, err := NewSubscriber(&cfg, nil)
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

// runRouter starts the router and waits until every handler is subscribed.
func runRouter(t *testing.T, rc *RouterComponents) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rc.Router.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = rc.Router.Close()
		<-done
	})

	select {
	case <-rc.Router.Running():
	case <-time.After(15 * time.Second):
		t.Fatal("router did not start")
	}
	if !rc.Router.IsRunning() {
		t.Error("IsRunning should be true while Run is active")
	}
}

func TestPipeline_NotificationEvents(t *testing.T) {
	broker := startBroker(t)
	events := broker.publisher(t)

	ledger, err := dedupe.Open(&config.DedupeConfig{Enabled: true, TTL: time.Hour})
	if err != nil {
		t.Fatalf("dedupe.Open: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	dispatcher := newFakeDispatcher(true)
	rc, err := NewRouterComponents(&RouterComponentsConfig{
		NotificationHandler:    NewNotificationHandler(dispatcher, ledger, testNotificationTopic, zerolog.Nop()),
		NotificationSubscriber: broker.subscriber(t, "notify"),
	}, nil)
	if err != nil {
		t.Fatalf("NewRouterComponents: %v", err)
	}
	runRouter(t, rc)

	ctx := context.Background()
	first := shippedEvent(1)
	if err := events.PublishNotification(ctx, first); err != nil {
		t.Fatalf("PublishNotification: %v", err)
	}
	got := waitDispatched(t, dispatcher)
	if got.OrderNumber != "ORD-1001" || got.ActorName != "Ahmed" {
		t.Errorf("dispatched = %+v", got)
	}

	// A redelivery under a fresh message id gets past the stream's duplicate
	// window and must be stopped by the ledger.
	data, _ := json.Marshal(first)
	raw := message.NewMessage(uuid.NewString(), data)
	if err := events.pub.Publish(ctx, testNotificationTopic, raw); err != nil {
		t.Fatalf("Publish duplicate: %v", err)
	}
	// Malformed input is acked and dropped.
	if err := events.pub.Publish(ctx, testNotificationTopic, message.NewMessage(uuid.NewString(), []byte("{"))); err != nil {
		t.Fatalf("Publish malformed: %v", err)
	}

	sentinel := shippedEvent(2)
	sentinel.OrderNumber = "ORD-1002"
	if err := events.PublishNotification(ctx, sentinel); err != nil {
		t.Fatalf("PublishNotification: %v", err)
	}
	if got := waitDispatched(t, dispatcher); got.OrderNumber != "ORD-1002" {
		t.Errorf("second dispatch = %+v, want the sentinel", got)
	}
	if n := dispatcher.count(); n != 2 {
		t.Errorf("dispatch calls = %d, want 2", n)
	}
}

func TestPipeline_AdminEvents(t *testing.T) {
	broker := startBroker(t)
	events := broker.publisher(t)

	b := &fakeBroadcaster{seen: make(chan models.AdminEvent, 4)}
	rc, err := NewRouterComponents(&RouterComponentsConfig{
		AdminHandler:    NewAdminHandler(b, testAdminTopic, zerolog.Nop()),
		AdminSubscriber: broker.subscriber(t, "admin"),
	}, nil)
	if err != nil {
		t.Fatalf("NewRouterComponents: %v", err)
	}
	runRouter(t, rc)

	ev := &models.AdminEvent{
		Kind:        models.AdminEventOrderCancelled,
		OrderNumber: "ORD-9",
		DriverName:  "Ahmed",
		Reason:      "customer unreachable",
	}
	if err := events.PublishAdminEvent(context.Background(), ev); err != nil {
		t.Fatalf("PublishAdminEvent: %v", err)
	}

	select {
	case got := <-b.seen:
		if got != *ev {
			t.Errorf("broadcast = %+v, want %+v", got, *ev)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("admin event was not broadcast")
	}
}

func TestPipeline_PublishOutcome(t *testing.T) {
	broker := startBroker(t)
	events := broker.publisher(t)

	sub, err := broker.nc.SubscribeSync(testOutcomeTopic)
	if err != nil {
		t.Fatalf("SubscribeSync: %v", err)
	}
	if err := broker.nc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	outcome := &models.DispatchOutcome{
		OverallSuccess: true,
		InAppSuccess:   true,
		Details:        map[string]string{"push": "no device accepted the message"},
	}
	if err := events.PublishOutcome(context.Background(), shippedEvent(3), outcome); err != nil {
		t.Fatalf("PublishOutcome: %v", err)
	}

	msg, err := sub.NextMsg(10 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	var rec OutcomeRecord
	if err := json.Unmarshal(msg.Data, &rec); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if rec.OrderNumber != "ORD-1001" || !rec.Partial || !rec.Outcome.OverallSuccess || rec.Outcome.PushSuccess {
		t.Errorf("outcome record = %+v", rec)
	}

	// No outcome topic: nothing is published.
	quiet := NewEventPublisher(events.pub, Topics{Notifications: testNotificationTopic})
	if err := quiet.PublishOutcome(context.Background(), shippedEvent(4), outcome); err != nil {
		t.Errorf("PublishOutcome without topic = %v", err)
	}
	if _, err := sub.NextMsg(300 * time.Millisecond); err == nil {
		t.Error("outcome published although outcomes are disabled")
	}
}

func TestRealtimeRelay_ReachesCoreSource(t *testing.T) {
	broker := startBroker(t)

	relay := NewRealtimeRelay(broker.nc, "realtime")
	source := NewCoreSource(broker.nc)
	t.Cleanup(func() { _ = source.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames, err := source.Subscribe(ctx, relay.Subject())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := broker.nc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	payload := models.AdminPayload{Message: "New order ORD-5 received", Type: "new_order", OrderNumber: "ORD-5"}
	if err := relay.Publish(ctx, models.AdminChannel("42"), models.RealtimeEventNewOrder, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case frame := <-frames:
		var env websocket.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Channel != "admin-42" || env.Event != "new-order" {
			t.Errorf("envelope = %+v", env)
		}
		var got models.AdminPayload
		if err := json.Unmarshal(env.Data, &got); err != nil || got != payload {
			t.Errorf("payload = %+v, %v; want %+v", got, err, payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay frame not received")
	}

	if err := relay.Publish(ctx, "bad channel", "x", nil); err == nil {
		t.Error("channel with a space should be rejected")
	}

	if err := source.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-frames:
		if ok {
			t.Error("unexpected frame after Close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("frames channel not closed after Close")
	}
	if _, err := source.Subscribe(ctx, relay.Subject()); err == nil {
		t.Error("Subscribe after Close should fail")
	}
}

func waitDispatched(t *testing.T, d *fakeDispatcher) models.NotificationEvent {
	t.Helper()
	select {
	case ev := <-d.seen:
		return ev
	case <-time.After(15 * time.Second):
		t.Fatal("event was not dispatched")
		return models.NotificationEvent{}
	}
}
