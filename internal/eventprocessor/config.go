// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package eventprocessor

import (
	"strings"
	"time"

	"github.com/tomtom215/orderbell/internal/config"
)

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host string
	// Port of -1 picks a random free port.
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns defaults for the embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   256 << 20, // 256MB
		JetStreamMaxStore: 1 << 30,   // 1GB
	}
}

// ServerConfigFrom derives the embedded server settings from the app config.
func ServerConfigFrom(cfg *config.NATSConfig) ServerConfig {
	sc := DefaultServerConfig()
	sc.StoreDir = cfg.StoreDir
	sc.JetStreamMaxMem = cfg.MaxMemory
	sc.JetStreamMaxStore = cfg.MaxStore
	return sc
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive
}

// DefaultPublisherConfig returns defaults for the publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024, // 8MB
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL              string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
	// StreamName binds the consumer to an existing stream instead of letting
	// Watermill provision one from the topic name.
	StreamName string
}

// DefaultSubscriberConfig returns defaults for a subscriber.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      "orderbell-notifier",
		QueueGroup:       "notifiers",
		SubscribersCount: 4,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       5,
		MaxAckPending:    1000,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
	}
}

// SubscriberConfigFrom derives a subscriber for one consumer from the app
// config. suffix keeps durable names and queue groups distinct per topic.
func SubscriberConfigFrom(cfg *config.NATSConfig, url, suffix string) SubscriberConfig {
	sc := DefaultSubscriberConfig(url)
	sc.DurableName = cfg.DurableName + "-" + suffix
	sc.QueueGroup = cfg.QueueGroup + "-" + suffix
	sc.SubscribersCount = cfg.SubscribersCount
	sc.AckWaitTimeout = cfg.AckWaitTimeout
	sc.MaxDeliver = cfg.MaxDeliver
	sc.StreamName = cfg.StreamName
	return sc
}

// StreamConfig defines the order event stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
	// MemoryStorage keeps the stream in RAM. Used by tests.
	MemoryStorage bool
}

// DefaultStreamConfig returns the stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name: "ORDERS",
		Subjects: []string{
			"orders.>",
			"notifications.outcomes",
		},
		MaxAge:          72 * time.Hour,
		MaxBytes:        1 << 30, // 1GB
		MaxMsgs:         -1,      // Unlimited
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// StreamConfigFrom derives the stream settings from the app config. The
// stream always captures the notification, admin and outcome topics.
func StreamConfigFrom(cfg *config.NATSConfig) StreamConfig {
	sc := DefaultStreamConfig()
	sc.Name = cfg.StreamName
	sc.MaxAge = cfg.StreamMaxAge
	sc.Subjects = uniqueSubjects(
		"orders.>",
		cfg.NotificationTopic,
		cfg.AdminTopic,
		cfg.OutcomeTopic,
	)
	return sc
}

// uniqueSubjects drops blanks, duplicates and subjects already covered by
// the orders.> wildcard.
func uniqueSubjects(subjects ...string) []string {
	out := make([]string, 0, len(subjects))
	seen := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		if s == "" || seen[s] {
			continue
		}
		if s != "orders.>" && strings.HasPrefix(s, "orders.") {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// RouterConfig holds Watermill router configuration.
type RouterConfig struct {
	CloseTimeout time.Duration

	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// ThrottlePerSecond caps handled messages per second; 0 disables.
	ThrottlePerSecond int64
}

// DefaultRouterConfig returns router defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		RetryMultiplier:      2.0,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns breaker defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}
