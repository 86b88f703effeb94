// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/orderbell/config.yaml",
	"/etc/orderbell/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default applied.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/orderbell.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Security: SecurityConfig{
			AuthMode:       "jwt",
			JWTSecret:      "",
			SessionTimeout: 24 * time.Hour,
		},
		NATS: NATSConfig{
			Enabled:               false, // direct in-process dispatch by default
			URL:                   "nats://127.0.0.1:4222",
			EmbeddedServer:        true,
			StoreDir:              "/data/nats/jetstream",
			MaxMemory:             256 << 20, // 256MB
			MaxStore:              1 << 30,   // 1GB
			StreamName:            "ORDERS",
			StreamMaxAge:          72 * time.Hour,
			DurableName:           "orderbell-notifier",
			QueueGroup:            "notifiers",
			SubscribersCount:      4,
			AckWaitTimeout:        30 * time.Second,
			MaxDeliver:            5,
			NotificationTopic:     "orders.notifications",
			AdminTopic:            "orders.admin",
			OutcomeTopic:          "notifications.outcomes",
			PublishOutcomes:       true,
			RealtimeSubjectPrefix: "realtime",
		},
		Notify: NotifyConfig{
			InAppTimeout:     5 * time.Second,
			PushTimeout:      5 * time.Second,
			BroadcastTimeout: 5 * time.Second,
			OrderLinkBase:    "/orders/",
			PushParallelism:  4,
		},
		Push: PushConfig{
			Enabled:                 false, // needs VAPID keys
			Subscriber:              "mailto:ops@orderbell.local",
			TTL:                     3600,
			Urgency:                 "normal",
			RequestTimeout:          10 * time.Second,
			RateLimit:               50,
			RateBurst:               10,
			BreakerFailureThreshold: 5,
			BreakerOpenTimeout:      30 * time.Second,
		},
		Dedupe: DedupeConfig{
			Enabled:    false,
			Path:       "/data/dedupe",
			TTL:        24 * time.Hour,
			GCInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, NATS_URL -> nats.url
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" if none.
// CONFIG_PATH wins when it points at an existing file.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed from comma-separated strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars always arrive as strings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Security
	"auth_mode":          "security.auth_mode",
	"jwt_secret":         "security.jwt_secret",
	"session_timeout":    "security.session_timeout",
	"casbin_model_path":  "security.casbin.model_path",
	"casbin_policy_path": "security.casbin.policy_path",

	// NATS
	"nats_enabled":            "nats.enabled",
	"nats_url":                "nats.url",
	"nats_embedded":           "nats.embedded_server",
	"nats_store_dir":          "nats.store_dir",
	"nats_max_memory":         "nats.max_memory",
	"nats_max_store":          "nats.max_store",
	"nats_stream_name":        "nats.stream_name",
	"nats_stream_max_age":     "nats.stream_max_age",
	"nats_durable_name":       "nats.durable_name",
	"nats_queue_group":        "nats.queue_group",
	"nats_subscribers":        "nats.subscribers_count",
	"nats_ack_wait":           "nats.ack_wait_timeout",
	"nats_max_deliver":        "nats.max_deliver",
	"nats_notification_topic": "nats.notification_topic",
	"nats_admin_topic":        "nats.admin_topic",
	"nats_outcome_topic":      "nats.outcome_topic",
	"nats_publish_outcomes":   "nats.publish_outcomes",
	"nats_realtime_prefix":    "nats.realtime_subject_prefix",

	// Notify
	"notify_in_app_timeout":    "notify.in_app_timeout",
	"notify_push_timeout":      "notify.push_timeout",
	"notify_broadcast_timeout": "notify.broadcast_timeout",
	"order_link_base":          "notify.order_link_base",
	"push_parallelism":         "notify.push_parallelism",

	// Push
	"push_enabled":           "push.enabled",
	"vapid_public_key":       "push.vapid_public_key",
	"vapid_private_key":      "push.vapid_private_key",
	"vapid_subscriber":       "push.subscriber",
	"push_ttl":               "push.ttl",
	"push_urgency":           "push.urgency",
	"push_request_timeout":   "push.request_timeout",
	"push_rate_limit":        "push.rate_limit",
	"push_rate_burst":        "push.rate_burst",
	"push_breaker_threshold": "push.breaker_failure_threshold",
	"push_breaker_timeout":   "push.breaker_open_timeout",

	// Dedupe
	"dedupe_enabled":     "dedupe.enabled",
	"dedupe_path":        "dedupe.path",
	"dedupe_ttl":         "dedupe.ttl",
	"dedupe_gc_interval": "dedupe.gc_interval",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped keys return "" so unrelated environment variables are skipped.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - VAPID_PUBLIC_KEY -> push.vapid_public_key
//   - NATS_ENABLED -> nats.enabled
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
