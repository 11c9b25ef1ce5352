// Package telemetry defines Hive's Prometheus metrics.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var EventsIngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Total number of normalized events written to the hot table.",
	},
	[]string{"team"},
)

var EventsRejectedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "ingest",
		Name:      "events_rejected_total",
		Help:      "Total number of raw events rejected during normalization.",
	},
)

var ContentDeduplicatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "content",
		Name:      "deduplicated_total",
		Help:      "Total number of content blobs deduplicated in the cold store.",
	},
)

var IngestDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "hive",
		Subsystem: "ingest",
		Name:      "batch_duration_seconds",
		Help:      "Event batch ingestion duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
)

var WSConnections = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "hive",
		Subsystem: "fanout",
		Name:      "ws_connections",
		Help:      "Currently open dashboard WebSocket connections.",
	},
)

var BatchesFlushedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "fanout",
		Name:      "batches_flushed_total",
		Help:      "Total number of event batches flushed, by reason.",
	},
	[]string{"reason"},
)

var EventsDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "fanout",
		Name:      "events_dropped_total",
		Help:      "Total number of event summaries dropped by batcher backpressure.",
	},
)

var AlertsFiredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "alerts",
		Name:      "fired_total",
		Help:      "Total number of budget alerts fired, by channel.",
	},
	[]string{"channel"},
)

var BudgetValidationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "policy",
		Name:      "validations_total",
		Help:      "Total number of budget validations, by resulting action.",
	},
	[]string{"action"},
)

// All returns every Hive metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		EventsIngestedTotal,
		EventsRejectedTotal,
		ContentDeduplicatedTotal,
		IngestDuration,
		WSConnections,
		BatchesFlushedTotal,
		EventsDroppedTotal,
		AlertsFiredTotal,
		BudgetValidationsTotal,
	}
}
