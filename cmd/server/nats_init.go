// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/orderbell/internal/config"
	"github.com/tomtom215/orderbell/internal/eventprocessor"
	"github.com/tomtom215/orderbell/internal/logging"
	"github.com/tomtom215/orderbell/internal/supervisor"
	ws "github.com/tomtom215/orderbell/internal/websocket"
)

// NATSComponents holds the event pipeline for lifecycle management.
//
// InitNATS brings up the connection, stream and publisher. Consumers are
// attached later with StartConsumers, once the dispatcher they feed exists.
type NATSComponents struct {
	cfg    *config.NATSConfig
	logger watermill.LoggerAdapter

	server   *eventprocessor.EmbeddedServer
	natsConn *natsgo.Conn
	url      string

	publisher *eventprocessor.Publisher
	events    *eventprocessor.EventPublisher
	relay     *eventprocessor.RealtimeRelay
	source    *eventprocessor.CoreSource

	notifySubscriber *eventprocessor.Subscriber
	adminSubscriber  *eventprocessor.Subscriber
	router           *eventprocessor.RouterComponents

	mu      sync.Mutex
	running bool
}

// InitNATS starts the embedded server if configured, connects, and
// ensures the order stream. It returns nil, nil when NATS is disabled.
func InitNATS(ctx context.Context, cfg *config.NATSConfig) (*NATSComponents, error) {
	if !cfg.Enabled {
		logging.Info().Msg("NATS event pipeline disabled (NATS_ENABLED=false)")
		return nil, nil
	}

	logging.Info().Msg("Initializing NATS event pipeline...")

	c := &NATSComponents{
		cfg:    cfg,
		logger: watermill.NewSlogLogger(logging.NewSlogLogger()),
	}

	if cfg.EmbeddedServer {
		serverCfg := eventprocessor.ServerConfigFrom(cfg)
		srv, err := eventprocessor.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, err
		}
		c.server = srv
		c.url = srv.ClientURL()
		logging.Info().Str("url", c.url).Msg("Embedded NATS server started")
	} else {
		c.url = cfg.URL
		logging.Info().Str("url", c.url).Msg("Using external NATS server")
	}

	nc, err := natsgo.Connect(c.url,
		natsgo.Name("orderbell"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	c.natsConn = nc
	c.running = true

	streamCfg := eventprocessor.StreamConfigFrom(cfg)
	sm, err := eventprocessor.NewStreamManager(nc, &streamCfg)
	if err != nil {
		c.Shutdown(ctx)
		return nil, err
	}
	if _, err := sm.EnsureStream(ctx); err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	logging.Info().
		Str("stream", streamCfg.Name).
		Strs("subjects", streamCfg.Subjects).
		Msg("JetStream stream ready")

	publisher, err := eventprocessor.NewPublisher(eventprocessor.DefaultPublisherConfig(c.url), c.logger)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	publisher.SetCircuitBreaker(eventprocessor.NewCircuitBreaker(
		eventprocessor.DefaultCircuitBreakerConfig("nats-publisher"),
	))
	c.publisher = publisher
	c.events = eventprocessor.NewEventPublisher(publisher, eventprocessor.TopicsFrom(
		cfg.NotificationTopic, cfg.AdminTopic, cfg.OutcomeTopic, cfg.PublishOutcomes,
	))

	c.relay = eventprocessor.NewRealtimeRelay(nc, cfg.RealtimeSubjectPrefix)
	c.source = eventprocessor.NewCoreSource(nc)

	logging.Info().Bool("publish_outcomes", cfg.PublishOutcomes).Msg("NATS publisher ready")
	return c, nil
}

// StartConsumers creates the durable subscribers and registers their
// handlers on a router. The router itself runs under the supervisor.
func (c *NATSComponents) StartConsumers(notifications *eventprocessor.NotificationHandler, admin *eventprocessor.AdminHandler) error {
	if c == nil {
		return nil
	}

	notifyCfg := eventprocessor.SubscriberConfigFrom(c.cfg, c.url, "notify")
	notifySub, err := eventprocessor.NewSubscriber(&notifyCfg, c.logger)
	if err != nil {
		return fmt.Errorf("create notification subscriber: %w", err)
	}
	c.notifySubscriber = notifySub

	adminCfg := eventprocessor.SubscriberConfigFrom(c.cfg, c.url, "admin")
	adminSub, err := eventprocessor.NewSubscriber(&adminCfg, c.logger)
	if err != nil {
		return fmt.Errorf("create admin subscriber: %w", err)
	}
	c.adminSubscriber = adminSub

	routerCfg := eventprocessor.DefaultRouterConfig()
	rc, err := eventprocessor.NewRouterComponents(&eventprocessor.RouterComponentsConfig{
		RouterConfig:           &routerCfg,
		NotificationHandler:    notifications,
		NotificationSubscriber: notifySub,
		AdminHandler:           admin,
		AdminSubscriber:        adminSub,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("create event router: %w", err)
	}
	c.router = rc

	logging.Info().
		Str("notification_topic", c.cfg.NotificationTopic).
		Str("admin_topic", c.cfg.AdminTopic).
		Int("subscribers", c.cfg.SubscribersCount).
		Msg("NATS consumers registered")
	return nil
}

// AddToSupervisor registers the event router and the realtime bridge with
// the messaging layer.
func (c *NATSComponents) AddToSupervisor(tree *supervisor.SupervisorTree, hub *ws.Hub) {
	if c == nil {
		return
	}
	if c.router != nil {
		tree.AddMessagingService(supervisor.NewRouterService(c.router.Router))
		logging.Info().Msg("Event router added to supervisor tree")
	}
	if hub != nil && c.source != nil {
		bridge := ws.NewBridge(hub, c.source, c.relay.Subject())
		tree.AddMessagingService(supervisor.NewBridgeService(bridge))
		logging.Info().Str("subject", c.relay.Subject()).Msg("Realtime bridge added to supervisor tree")
	}
}

// Events returns the domain event publisher.
func (c *NATSComponents) Events() *eventprocessor.EventPublisher {
	if c == nil {
		return nil
	}
	return c.events
}

// Relay returns the realtime relay used for dashboard events.
func (c *NATSComponents) Relay() *eventprocessor.RealtimeRelay {
	if c == nil {
		return nil
	}
	return c.relay
}

// Healthy reports whether the NATS connection is up.
func (c *NATSComponents) Healthy() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.natsConn != nil && c.natsConn.IsConnected()
}

// IsRunning returns whether the components are active.
func (c *NATSComponents) IsRunning() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Shutdown releases everything in reverse order of creation. It is safe to
// call more than once.
func (c *NATSComponents) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}

	c.mu.Lock()
	if !c.running && c.natsConn == nil && c.server == nil {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	logging.Info().Msg("Shutting down NATS components...")

	c.shutdownRouter()
	c.shutdownSubscribers()
	c.shutdownPublisher()
	c.shutdownConnection(ctx)

	logging.Info().Msg("NATS shutdown complete")
}

func (c *NATSComponents) shutdownRouter() {
	if c.router == nil {
		return
	}
	if err := c.router.Router.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing event router")
	}
	c.router = nil
}

func (c *NATSComponents) shutdownSubscribers() {
	if c.notifySubscriber != nil {
		if err := c.notifySubscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing notification subscriber")
		}
		c.notifySubscriber = nil
	}
	if c.adminSubscriber != nil {
		if err := c.adminSubscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing admin subscriber")
		}
		c.adminSubscriber = nil
	}
}

func (c *NATSComponents) shutdownPublisher() {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing publisher")
	}
	c.publisher = nil
}

func (c *NATSComponents) shutdownConnection(ctx context.Context) {
	if c.source != nil {
		if err := c.source.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing realtime source")
		}
		c.source = nil
	}
	if c.natsConn != nil {
		c.natsConn.Close()
		c.natsConn = nil
		logging.Info().Msg("NATS connection closed")
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down NATS server")
		}
		c.server = nil
		logging.Info().Msg("Embedded NATS server stopped")
	}
}
