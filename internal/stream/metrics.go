package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream metrics
	streamState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketsync_stream_state",
			Help: "Connector state: 0 disconnected, 1 backoff, 2 connecting, 3 connected",
		},
	)

	streamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketsync_stream_reconnects_total",
			Help: "Total number of reconnect attempts scheduled",
		},
	)

	streamFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_stream_frames_total",
			Help: "Total number of inbound frames by class",
		},
		[]string{"class"},
	)

	streamHeartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketsync_stream_heartbeats_total",
			Help: "Total number of heartbeat frames sent",
		},
	)
)

func StateLog(state State) {
	switch state {
	case StateConnected:
		streamState.Set(3)
	case StateConnecting:
		streamState.Set(2)
	case StateBackoff:
		streamState.Set(1)
	default:
		streamState.Set(0)
	}
}

func ReconnectsInc() {
	streamReconnects.Inc()
}

func FramesInc(class string) {
	streamFrames.WithLabelValues(class).Inc()
}

func HeartbeatsInc() {
	streamHeartbeats.Inc()
}
