package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Processor metrics
	enrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_processor_enrichment_failures_total",
			Help: "Total number of enrichment lookups that degraded to a placeholder",
		},
		[]string{"stage"},
	)
)

func EnrichmentFailuresInc(stage string) {
	enrichmentFailures.WithLabelValues(stage).Inc()
}
