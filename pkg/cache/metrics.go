package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aks_cache_hits_total",
			Help: "Total number of version cache hits",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	// CacheMisses tracks full cache misses (both layers)
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aks_cache_misses_total",
			Help: "Total number of version cache misses",
		},
	)

	// FlightsShared tracks callers that attached to an in-flight fetch
	// instead of starting their own
	FlightsShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aks_cache_flights_shared_total",
			Help: "Total number of callers that shared an in-flight fetch",
		},
	)

	// CacheErrors tracks shared-layer operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aks_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
