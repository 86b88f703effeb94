// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package eventprocessor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/orderbell/internal/dedupe"
	"github.com/tomtom215/orderbell/internal/metrics"
	"github.com/tomtom215/orderbell/internal/models"
)

// Publisher publishes messages to JetStream through Watermill. An optional
// circuit breaker fails fast while the broker is unreachable.
type Publisher struct {
	publisher      message.Publisher
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	mu             sync.RWMutex
	closed         bool
	logger         watermill.LoggerAdapter
}

// NewPublisher connects a JetStream publisher. The stream must already exist.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: publisher URL required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS publisher disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS publisher reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // StreamManager owns the stream
			TrackMsgId:    cfg.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return &Publisher{
		publisher: pub,
		logger:    logger,
	}, nil
}

// SetCircuitBreaker wraps every publish in cb.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[interface{}]) {
	p.circuitBreaker = cb
}

// Publish sends msg to topic. The JetStream message id defaults to the
// Watermill UUID so that retried publishes are de-duplicated by the stream.
func (p *Publisher) Publish(_ context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	if p.circuitBreaker != nil {
		_, err := p.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, p.publisher.Publish(topic, msg)
		})
		return err
	}
	return p.publisher.Publish(topic, msg)
}

// Close closes the publisher. Safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}

// Topics names the subjects used by EventPublisher.
type Topics struct {
	Notifications string
	Admin         string
	Outcomes      string
}

// TopicsFrom reads topic names from the app config. Outcomes is left empty
// when outcome publishing is off.
func TopicsFrom(notifications, admin, outcomes string, publishOutcomes bool) Topics {
	t := Topics{Notifications: notifications, Admin: admin}
	if publishOutcomes {
		t.Outcomes = outcomes
	}
	return t
}

// OutcomeRecord is published once per dispatch on the outcomes topic.
type OutcomeRecord struct {
	RecipientUserID string                 `json:"recipientUserId"`
	OrderID         string                 `json:"orderId"`
	OrderNumber     string                 `json:"orderNumber"`
	EventType       models.EventType       `json:"eventType"`
	Outcome         models.DispatchOutcome `json:"outcome"`
	Partial         bool                   `json:"partial"`
	DispatchedAt    time.Time              `json:"dispatchedAt"`
}

// EventPublisher publishes domain events on their topics. It implements
// notify.OutcomeSink.
type EventPublisher struct {
	pub    *Publisher
	topics Topics
}

// NewEventPublisher wraps pub with the given topics.
func NewEventPublisher(pub *Publisher, topics Topics) *EventPublisher {
	return &EventPublisher{pub: pub, topics: topics}
}

// PublishNotification enqueues an order event for dispatch. Events with a
// status version use the de-duplication key as message id so that the
// stream drops producer retries inside its duplicate window.
func (e *EventPublisher) PublishNotification(ctx context.Context, ev *models.NotificationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("event_type", string(ev.EventType))
	msg.Metadata.Set("order_id", ev.OrderID)
	if ev.StatusVersion > 0 {
		msg.Metadata.Set(natsgo.MsgIdHdr, dedupe.Key(ev))
	}

	if err := e.pub.Publish(ctx, e.topics.Notifications, msg); err != nil {
		return fmt.Errorf("publish notification event: %w", err)
	}
	return nil
}

// PublishAdminEvent enqueues a dashboard event for broadcast.
func (e *EventPublisher) PublishAdminEvent(ctx context.Context, ev *models.AdminEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal admin event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("kind", string(ev.Kind))

	if err := e.pub.Publish(ctx, e.topics.Admin, msg); err != nil {
		return fmt.Errorf("publish admin event: %w", err)
	}
	return nil
}

// PublishOutcome publishes a dispatch summary. It is a no-op when no
// outcome topic is configured.
func (e *EventPublisher) PublishOutcome(ctx context.Context, ev *models.NotificationEvent, outcome *models.DispatchOutcome) error {
	if e.topics.Outcomes == "" || ev == nil || outcome == nil {
		return nil
	}

	rec := OutcomeRecord{
		RecipientUserID: ev.RecipientUserID,
		OrderID:         ev.OrderID,
		OrderNumber:     ev.OrderNumber,
		EventType:       ev.EventType,
		Outcome:         *outcome,
		Partial:         outcome.Partial(),
		DispatchedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		metrics.RecordOutcomePublished(err)
		return fmt.Errorf("marshal outcome: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("overall_success", fmt.Sprintf("%t", outcome.OverallSuccess))

	err = e.pub.Publish(ctx, e.topics.Outcomes, msg)
	metrics.RecordOutcomePublished(err)
	if err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	return nil
}
