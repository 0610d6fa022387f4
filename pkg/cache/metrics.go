package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gdelt_cache_hits_total",
			Help: "Total number of bulk file cache hits",
		},
	)

	// CacheMisses tracks cache misses, including corrupt sidecars and
	// expired entries.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdelt_cache_misses_total",
			Help: "Total number of bulk file cache misses",
		},
		[]string{"reason"}, // "absent", "expired", "corrupt"
	)

	// CacheSize tracks the payload bytes currently on disk.
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gdelt_cache_size_bytes",
			Help: "Current size of the on-disk cache in bytes",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdelt_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "set", "clear", "size"
	)
)
