// Package metrics provides the centralized Prometheus metrics registry.
// All metrics are defined in their respective packages (store, cache,
// scheduler, github, server) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - hubcache_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - hubcache_cache_misses_total (Counter): Cache misses
//   - hubcache_cache_errors_total{operation} (Counter): Cache operation errors
//   - hubcache_cache_self_heals_total (Counter): Stale throttling entries purged on read
//   - hubcache_cache_skipped_writes_total (Counter): Throttling envelopes refused persistence
//
// Scheduler Metrics (pkg/scheduler):
//   - hubcache_scheduler_calls_total{outcome} (Counter): Scheduled calls by outcome
//     (success, terminal, exhausted, abandoned)
//   - hubcache_scheduler_retries_total (Counter): Retry attempts for throttled calls
//   - hubcache_scheduler_retry_backoff_seconds (Histogram): Backoff before retries
//   - hubcache_scheduler_queue_depth (Gauge): Calls queued behind the worker
//
// Upstream Metrics (pkg/github):
//   - hubcache_upstream_requests_total{endpoint, status} (Counter): Upstream requests
//     by endpoint and HTTP status (or "network_error")
//   - hubcache_upstream_request_duration_seconds{endpoint} (Histogram): Upstream latency
//
// HTTP Metrics (internal/server):
//   - hubcache_http_requests_total{route, status} (Counter): Served requests by route
//   - hubcache_http_request_duration_seconds{route} (Histogram): Serving latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(hubcache_cache_hits_total[5m])) /
//   (sum(rate(hubcache_cache_hits_total[5m])) + sum(rate(hubcache_cache_misses_total[5m])))
//
//   # Upstream Throttle Pressure
//   rate(hubcache_scheduler_retries_total[5m])
//
//   # Retry Exhaustion Rate
//   rate(hubcache_scheduler_calls_total{outcome="exhausted"}[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(hubcache_upstream_request_duration_seconds_bucket[5m]))
//
//   # Queue Backlog
//   hubcache_scheduler_queue_depth > 10
