package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkpointWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_checkpoint_writes_total",
			Help: "Total number of checkpoint writes per source",
		},
		[]string{"source"},
	)

	checkpointPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketsync_checkpoint_position",
			Help: "Last checkpointed position per source",
		},
		[]string{"source"},
	)
)

func CheckpointWritesInc(source string) {
	checkpointWrites.WithLabelValues(source).Inc()
}

func CheckpointPositionLog(source string, position uint64) {
	checkpointPosition.WithLabelValues(source).Set(float64(position))
}
