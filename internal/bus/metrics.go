package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	busPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_bus_published_total",
			Help: "Total number of events published to the bus by kind",
		},
		[]string{"kind"},
	)

	busDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_bus_delivered_total",
			Help: "Total number of events delivered to subscribers by kind",
		},
		[]string{"kind"},
	)

	busSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketsync_bus_subscribers",
			Help: "Current number of bus subscriptions",
		},
	)
)

func BusPublishedInc(kind string) {
	busPublished.WithLabelValues(kind).Inc()
}

func BusDeliveredInc(kind string) {
	busDelivered.WithLabelValues(kind).Inc()
}

func BusSubscribersLog(count int) {
	busSubscribers.Set(float64(count))
}
