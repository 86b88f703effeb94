// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

// Package metrics registers Orderbell's Prometheus collectors on the default
// registry and exposes small Record* helpers so callers never deal with label
// plumbing directly. Everything is served at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess  = "success"
	ResultPartial  = "partial"
	ResultFailure  = "failure"
	ResultTimeout  = "timeout"
	ResultSkipped  = "skipped"
	ResultRejected = "rejected"
)

var (
	// Dispatch Metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dispatch_total",
			Help: "Total number of notification dispatches by aggregated result",
		},
		[]string{"result"}, // success, partial, failure, rejected
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_dispatch_duration_seconds",
			Help:    "End-to-end duration of a dispatch across all channels",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	ChannelDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_channel_deliveries_total",
			Help: "Per-channel delivery attempts by result",
		},
		[]string{"channel", "result"}, // channel: in_app, push
	)

	// Push Metrics
	PushSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_push_sends_total",
			Help: "Individual Web Push sends by result",
		},
		[]string{"result"}, // success, gone, transient, rejected, failure
	)

	PushTargetsGone = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_push_targets_gone_total",
			Help: "Push targets the push service reported as expired or unsubscribed",
		},
	)

	// Admin Broadcast Metrics
	AdminBroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_admin_broadcast_total",
			Help: "Admin broadcasts by result",
		},
		[]string{"result"}, // success, failure, skipped
	)

	RealtimePublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_realtime_publishes_total",
			Help: "Per-admin realtime publishes by result",
		},
		[]string{"event", "result"},
	)

	UnreadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_unread_errors_total",
			Help: "Unread count lookups that failed and were reported as zero",
		},
	)

	// Event Pipeline Metrics
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_events_consumed_total",
			Help: "Order events consumed from the broker by topic and result",
		},
		[]string{"topic", "result"}, // processed, duplicate, invalid, failed
	)

	EventProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_event_processing_duration_seconds",
			Help:    "Time spent handling one consumed event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	OutcomesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_outcomes_published_total",
			Help: "Dispatch outcome records published to the broker",
		},
		[]string{"result"}, // success, failure
	)

	DedupeLedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dedupe_checks_total",
			Help: "De-duplication ledger checks by result",
		},
		[]string{"result"}, // new, duplicate, error
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"endpoint"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordDispatch records the aggregated result of one dispatch.
func RecordDispatch(inApp, push bool, duration time.Duration) {
	DispatchDuration.Observe(duration.Seconds())
	switch {
	case inApp && push:
		DispatchTotal.WithLabelValues(ResultSuccess).Inc()
	case inApp || push:
		DispatchTotal.WithLabelValues(ResultPartial).Inc()
	default:
		DispatchTotal.WithLabelValues(ResultFailure).Inc()
	}
}

// RecordDispatchRejected records a dispatch refused before any channel ran.
func RecordDispatchRejected() {
	DispatchTotal.WithLabelValues(ResultRejected).Inc()
}

// RecordChannelDelivery records one channel attempt. result is one of the
// Result* constants.
func RecordChannelDelivery(channel, result string) {
	ChannelDeliveries.WithLabelValues(channel, result).Inc()
}

// RecordPushSend records one Web Push send.
func RecordPushSend(result string) {
	PushSends.WithLabelValues(result).Inc()
	if result == "gone" {
		PushTargetsGone.Inc()
	}
}

// RecordAdminBroadcast records one broadcast run.
func RecordAdminBroadcast(result string) {
	AdminBroadcastTotal.WithLabelValues(result).Inc()
}

// RecordRealtimePublish records one per-admin publish.
func RecordRealtimePublish(event string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	RealtimePublishes.WithLabelValues(event, result).Inc()
}

// RecordUnreadError records a failed unread lookup.
func RecordUnreadError() {
	UnreadErrors.Inc()
}

// RecordEventConsumed records one consumed broker message.
func RecordEventConsumed(topic, result string, duration time.Duration) {
	EventsConsumed.WithLabelValues(topic, result).Inc()
	EventProcessingDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// RecordOutcomePublished records one outcome publish.
func RecordOutcomePublished(err error) {
	if err != nil {
		OutcomesPublished.WithLabelValues(ResultFailure).Inc()
		return
	}
	OutcomesPublished.WithLabelValues(ResultSuccess).Inc()
}

// RecordDedupeCheck records one ledger lookup.
func RecordDedupeCheck(result string) {
	DedupeLedgerEntries.WithLabelValues(result).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordBreakerTransition updates the state gauge and transition counter.
// States follow gobreaker naming: "closed", "half-open", "open".
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
