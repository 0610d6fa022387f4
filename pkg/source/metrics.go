package source

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for source orchestration.
var (
	fetchRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gdelt_fetch_records_total",
		Help: "Records emitted by source",
	}, []string{"source"}) // "bulk", "secondary"

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gdelt_fallbacks_total",
		Help: "Fallbacks to the secondary source by triggering signal",
	}, []string{"reason"})

	fetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gdelt_fetch_failures_total",
		Help: "File-level failures surviving retry and fallback, by policy outcome",
	}, []string{"action"})
)
