package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache refresher metrics
	cacheSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_cache_sweeps_total",
			Help: "Total number of completed refresh sweeps per domain",
		},
		[]string{"domain"},
	)

	cacheSweepsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_cache_sweeps_skipped_total",
			Help: "Total number of refresh triggers dropped per domain and reason",
		},
		[]string{"domain", "reason"},
	)

	cacheSweepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_cache_sweep_failures_total",
			Help: "Total number of sweeps aborted before fetching, per domain",
		},
		[]string{"domain"},
	)

	cacheFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_cache_fetch_failures_total",
			Help: "Total number of per-subject fetches that failed, per domain",
		},
		[]string{"domain"},
	)

	cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketsync_cache_entries",
			Help: "Number of snapshot entries held per domain",
		},
		[]string{"domain"},
	)

	cacheSweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketsync_cache_sweep_duration_seconds",
			Help:    "Duration of completed refresh sweeps per domain",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"domain"},
	)

	cacheLastRefresh = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketsync_cache_last_refresh_timestamp_seconds",
			Help: "Unix timestamp of the last completed sweep per domain",
		},
		[]string{"domain"},
	)
)

func SweepsInc(domain string) {
	cacheSweeps.WithLabelValues(domain).Inc()
}

func SweepsSkippedInc(domain, reason string) {
	cacheSweepsSkipped.WithLabelValues(domain, reason).Inc()
}

func SweepFailuresInc(domain string) {
	cacheSweepFailures.WithLabelValues(domain).Inc()
}

func FetchFailuresInc(domain string) {
	cacheFetchFailures.WithLabelValues(domain).Inc()
}

func EntriesLog(domain string, count int) {
	cacheEntries.WithLabelValues(domain).Set(float64(count))
}

func SweepDurationObserve(domain string, d time.Duration) {
	cacheSweepDuration.WithLabelValues(domain).Observe(d.Seconds())
}

func LastRefreshLog(domain string) {
	cacheLastRefresh.WithLabelValues(domain).Set(float64(time.Now().Unix()))
}
