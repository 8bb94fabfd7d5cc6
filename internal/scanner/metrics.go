package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scanner metrics
	scanBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_scanner_batches_total",
			Help: "Total number of log batches fetched per source",
		},
		[]string{"source"},
	)

	scanLogs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_scanner_logs_total",
			Help: "Total number of logs fetched per source",
		},
		[]string{"source"},
	)

	scanEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_scanner_events_total",
			Help: "Total number of events processed per source and kind",
		},
		[]string{"source", "kind"},
	)

	scanDecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_scanner_decode_failures_total",
			Help: "Total number of logs skipped because they could not be decoded",
		},
		[]string{"source"},
	)

	scanProcessFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_scanner_process_failures_total",
			Help: "Total number of events whose processing failed",
		},
		[]string{"source"},
	)

	scanBatchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_scanner_batch_retries_total",
			Help: "Total number of batch fetch retries per source",
		},
		[]string{"source"},
	)

	scanHeadLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketsync_scanner_head_lag_blocks",
			Help: "Blocks between the confirmed head target and the scan position",
		},
		[]string{"source"},
	)
)

func BatchesInc(source string) {
	scanBatches.WithLabelValues(source).Inc()
}

func LogsAdd(source string, count int) {
	scanLogs.WithLabelValues(source).Add(float64(count))
}

func EventsInc(source, kind string) {
	scanEvents.WithLabelValues(source, kind).Inc()
}

func DecodeFailuresInc(source string) {
	scanDecodeFailures.WithLabelValues(source).Inc()
}

func ProcessFailuresInc(source string) {
	scanProcessFailures.WithLabelValues(source).Inc()
}

func BatchRetriesInc(source string) {
	scanBatchRetries.WithLabelValues(source).Inc()
}

func HeadLagLog(source string, target, position uint64) {
	lag := float64(0)
	if target > position {
		lag = float64(target - position)
	}
	scanHeadLag.WithLabelValues(source).Set(lag)
}
