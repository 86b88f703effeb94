// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

/*
Package middleware provides chi-compatible HTTP middleware shared by the API
router.

  - RequestID adopts or generates X-Request-ID and seeds the logging context.
  - PrometheusMetrics records request counts and latency keyed by chi route
    pattern, so path parameters do not explode label cardinality.
  - AccessLog writes one structured log line per request.

Wrapped response writers pass through http.Hijacker and http.Flusher so the
websocket upgrade keeps working behind them.
*/
package middleware
