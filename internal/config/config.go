// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

// Package config loads Orderbell configuration from built-in defaults, an
// optional YAML file and environment variables (in increasing priority).
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	NATS     NATSConfig     `koanf:"nats"`
	Notify   NotifyConfig   `koanf:"notify"`
	Push     PushConfig     `koanf:"push"`
	Dedupe   DedupeConfig   `koanf:"dedupe"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins is a comma-separated list when set from the environment.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// DatabaseConfig holds the DuckDB notification store settings.
type DatabaseConfig struct {
	// Path of the DuckDB file. ":memory:" keeps everything in RAM.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads of 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// SecurityConfig holds authentication and authorization settings.
type SecurityConfig struct {
	// AuthMode is "jwt" or "none". "none" is for local development only.
	AuthMode       string        `koanf:"auth_mode"`
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`
	Casbin         CasbinConfig  `koanf:"casbin"`
}

// CasbinConfig optionally overrides the embedded RBAC model and policy.
type CasbinConfig struct {
	ModelPath  string `koanf:"model_path"`
	PolicyPath string `koanf:"policy_path"`
}

// NATSConfig holds event pipeline settings.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	StreamName   string        `koanf:"stream_name"`
	StreamMaxAge time.Duration `koanf:"stream_max_age"`

	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	MaxDeliver       int           `koanf:"max_deliver"`

	// NotificationTopic carries NotificationEvent JSON.
	NotificationTopic string `koanf:"notification_topic"`
	// AdminTopic carries AdminEvent JSON.
	AdminTopic string `koanf:"admin_topic"`
	// OutcomeTopic receives one record per dispatch when PublishOutcomes is set.
	OutcomeTopic    string `koanf:"outcome_topic"`
	PublishOutcomes bool   `koanf:"publish_outcomes"`

	// RealtimeSubjectPrefix is prepended to admin channel names on core NATS.
	RealtimeSubjectPrefix string `koanf:"realtime_subject_prefix"`
}

// NotifyConfig holds dispatcher and broadcaster settings.
type NotifyConfig struct {
	InAppTimeout     time.Duration `koanf:"in_app_timeout"`
	PushTimeout      time.Duration `koanf:"push_timeout"`
	BroadcastTimeout time.Duration `koanf:"broadcast_timeout"`

	// OrderLinkBase is prefixed to the order ID to build the default action URL.
	OrderLinkBase   string `koanf:"order_link_base"`
	PushParallelism int    `koanf:"push_parallelism"`
}

// PushConfig holds Web Push delivery settings.
type PushConfig struct {
	Enabled         bool   `koanf:"enabled"`
	VAPIDPublicKey  string `koanf:"vapid_public_key"`
	VAPIDPrivateKey string `koanf:"vapid_private_key"`
	// Subscriber is the VAPID contact, a mailto: address or https URL.
	Subscriber string `koanf:"subscriber"`
	// TTL in seconds the push service keeps an undelivered message.
	TTL     int    `koanf:"ttl"`
	Urgency string `koanf:"urgency"`

	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RateLimit is sends per second across all targets; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerOpenTimeout      time.Duration `koanf:"breaker_open_timeout"`
}

// DedupeConfig holds the consumer de-duplication ledger settings.
type DedupeConfig struct {
	Enabled bool `koanf:"enabled"`
	// Path of the Badger directory. Empty runs the ledger in memory.
	Path       string        `koanf:"path"`
	TTL        time.Duration `koanf:"ttl"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration with LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
