// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateSecurity,
		c.validateNATS,
		c.validateNotify,
		c.validatePush,
		c.validateDedupe,
		c.validateLogging,
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			return err
		}
	}
	return nil
}

// Rate limit bounds
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP read, write and shutdown timeouts must be positive")
	}
	return c.validateRateLimits()
}

// validateRateLimits validates rate limiting configuration bounds.
func (c *Config) validateRateLimits() error {
	if c.Server.RateLimitDisabled {
		return nil
	}
	if c.Server.RateLimitRequests < minRateLimitRequests || c.Server.RateLimitRequests > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Server.RateLimitWindow < minRateLimitWindow || c.Server.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be non-negative")
	}
	return nil
}

// validateSecurity validates the auth mode and, for jwt, the signing secret.
func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "none":
		return nil
	case "jwt":
		return c.validateJWTSecret()
	default:
		return fmt.Errorf("AUTH_MODE must be one of: jwt, none")
	}
}

// validateJWTSecret validates the JWT secret configuration
func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is jwt")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

// NATS limits
const (
	natsMinMemory      = 64 * 1024 * 1024  // 64MB
	natsMinStore       = 100 * 1024 * 1024 // 100MB
	natsMaxSubscribers = 32
)

// validateNATS validates NATS configuration (only if enabled)
func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}

	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if c.NATS.EmbeddedServer {
		if c.NATS.MaxMemory < natsMinMemory {
			return fmt.Errorf("NATS_MAX_MEMORY must be at least 64MB (67108864 bytes)")
		}
		if c.NATS.MaxStore < natsMinStore {
			return fmt.Errorf("NATS_MAX_STORE must be at least 100MB (104857600 bytes)")
		}
	}
	if c.NATS.SubscribersCount < 1 || c.NATS.SubscribersCount > natsMaxSubscribers {
		return fmt.Errorf("NATS_SUBSCRIBERS must be between 1 and %d", natsMaxSubscribers)
	}
	if c.NATS.StreamName == "" || c.NATS.NotificationTopic == "" || c.NATS.AdminTopic == "" {
		return fmt.Errorf("NATS stream name, notification topic and admin topic are required")
	}
	if c.NATS.PublishOutcomes && c.NATS.OutcomeTopic == "" {
		return fmt.Errorf("NATS_OUTCOME_TOPIC is required when NATS_PUBLISH_OUTCOMES=true")
	}
	if c.NATS.RealtimeSubjectPrefix == "" || strings.ContainsAny(c.NATS.RealtimeSubjectPrefix, "*> ") {
		return fmt.Errorf("NATS_REALTIME_PREFIX must be a plain subject token")
	}
	return nil
}

// validateNATSURL accepts nats://, tls:// and ws(s):// URLs with a host.
func validateNATSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func (c *Config) validateNotify() error {
	n := c.Notify
	if n.InAppTimeout <= 0 || n.PushTimeout <= 0 || n.BroadcastTimeout <= 0 {
		return fmt.Errorf("NOTIFY_*_TIMEOUT values must be positive")
	}
	if n.OrderLinkBase == "" {
		return fmt.Errorf("ORDER_LINK_BASE is required")
	}
	if n.PushParallelism < 1 || n.PushParallelism > 64 {
		return fmt.Errorf("PUSH_PARALLELISM must be between 1 and 64")
	}
	return nil
}

var validUrgencies = map[string]bool{
	"very-low": true,
	"low":      true,
	"normal":   true,
	"high":     true,
}

// validatePush validates Web Push configuration (only if enabled)
func (c *Config) validatePush() error {
	if !c.Push.Enabled {
		return nil
	}

	if c.Push.VAPIDPublicKey == "" || c.Push.VAPIDPrivateKey == "" {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY are required when PUSH_ENABLED=true")
	}
	if !strings.HasPrefix(c.Push.Subscriber, "mailto:") && !strings.HasPrefix(c.Push.Subscriber, "https://") {
		return fmt.Errorf("VAPID_SUBSCRIBER must be a mailto: address or https URL")
	}
	if !validUrgencies[c.Push.Urgency] {
		return fmt.Errorf("PUSH_URGENCY must be one of: very-low, low, normal, high")
	}
	if c.Push.TTL < 0 {
		return fmt.Errorf("PUSH_TTL must be non-negative")
	}
	if c.Push.RequestTimeout <= 0 {
		return fmt.Errorf("PUSH_REQUEST_TIMEOUT must be positive")
	}
	if c.Push.RateLimit < 0 || c.Push.RateBurst < 0 {
		return fmt.Errorf("PUSH_RATE_LIMIT and PUSH_RATE_BURST must be non-negative")
	}
	return nil
}

func (c *Config) validateDedupe() error {
	if !c.Dedupe.Enabled {
		return nil
	}
	if c.Dedupe.TTL <= 0 {
		return fmt.Errorf("DEDUPE_TTL must be positive when DEDUPE_ENABLED=true")
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// ShouldWarnAboutCORS reports wildcard CORS combined with authentication.
func (c *Config) ShouldWarnAboutCORS() bool {
	if c.Security.AuthMode == "none" {
		return false
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// placeholderPatterns indicate a secret that was never replaced.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
