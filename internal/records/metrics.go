package records

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	collectionUpserts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketsync_collection_upserts_total",
			Help: "Total number of collection upserts",
		},
	)

	listings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketsync_listings_total",
			Help: "Total number of listings recorded",
		},
	)

	salesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketsync_sales_recorded_total",
			Help: "Total number of sales recorded",
		},
	)

	saleDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketsync_sale_duplicates_total",
			Help: "Total number of sales skipped as already recorded",
		},
	)

	collectionsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketsync_collections_tracked",
			Help: "Number of collections in the record store",
		},
	)

	salesTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketsync_sales_tracked",
			Help: "Number of sales in the record store",
		},
	)
)

func CollectionUpsertsInc() {
	collectionUpserts.Inc()
}

func ListingsInc() {
	listings.Inc()
}

func SalesRecordedInc() {
	salesRecorded.Inc()
}

func SaleDuplicatesInc() {
	saleDuplicates.Inc()
}

func CollectionsTrackedLog(count uint64) {
	collectionsTracked.Set(float64(count))
}

func SalesTrackedLog(count uint64) {
	salesTracked.Set(float64(count))
}
