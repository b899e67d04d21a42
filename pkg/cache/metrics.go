package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubcache_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hubcache_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubcache_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "counter"
	)

	// CacheSelfHeals tracks stored throttling envelopes purged on read
	CacheSelfHeals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hubcache_cache_self_heals_total",
			Help: "Total number of stale throttling entries purged on read",
		},
	)

	// CacheSkippedWrites tracks writes refused because the envelope
	// recorded a throttling outcome
	CacheSkippedWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hubcache_cache_skipped_writes_total",
			Help: "Total number of throttling envelopes refused persistence",
		},
	)
)
