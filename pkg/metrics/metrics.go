package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PurchaseClearanceDuration measures hub-enqueue to settlement latency
	// per destination chain.
	PurchaseClearanceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "purchase_clearance_duration_seconds",
		Help:    "Time between hub invoice enqueue and settlement, per destination chain",
		Buckets: prometheus.ExponentialBuckets(30, 2, 12),
	}, []string{"destination"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_events_processed_total",
		Help: "Processed queue events by type and result",
	}, []string{"type", "result"})

	RebalanceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalance_operations_total",
		Help: "Rebalance operation status transitions",
	}, []string{"status", "bridge"})
)

// ObserveClearance records a purchase clearance duration for a destination.
func ObserveClearance(destination uint64, d time.Duration) {
	PurchaseClearanceDuration.WithLabelValues(strconv.FormatUint(destination, 10)).Observe(d.Seconds())
}
