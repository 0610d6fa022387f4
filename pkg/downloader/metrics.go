package downloader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for download operations.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gdelt_download_requests_total",
		Help: "Total bulk file download attempts by result status",
	}, []string{"status"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gdelt_download_duration_seconds",
		Help:    "Bulk file download duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gdelt_download_bytes_total",
		Help: "Total decompressed bytes handed to consumers",
	})

	downloadErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gdelt_download_errors_total",
		Help: "Total download errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gdelt_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gdelt_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gdelt_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)
