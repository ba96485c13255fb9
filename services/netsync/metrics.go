package netsync

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusSyncHeadersAccepted prometheus.Counter
	prometheusSyncHeadersRejected *prometheus.CounterVec
	prometheusSyncBlocksConnected prometheus.Counter
	prometheusSyncReorgs          prometheus.Counter
	prometheusSyncReorgDepth      prometheus.Histogram
	prometheusSyncRequestTimeouts prometheus.Counter
	prometheusSyncPeers           prometheus.Gauge
	prometheusSyncTipHeight       prometheus.Gauge
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusSyncHeadersAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nakamotocash",
			Subsystem: "netsync",
			Name:      "headers_accepted",
			Help:      "Number of headers accepted into the index",
		},
	)

	prometheusSyncHeadersRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nakamotocash",
			Subsystem: "netsync",
			Name:      "headers_rejected",
			Help:      "Number of headers rejected, by reason",
		},
		[]string{"reason"},
	)

	prometheusSyncBlocksConnected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nakamotocash",
			Subsystem: "netsync",
			Name:      "blocks_connected",
			Help:      "Number of block bodies connected to the active chain",
		},
	)

	prometheusSyncReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nakamotocash",
			Subsystem: "netsync",
			Name:      "reorgs",
			Help:      "Number of chain reorganizations applied",
		},
	)

	prometheusSyncReorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nakamotocash",
			Subsystem: "netsync",
			Name:      "reorg_depth",
			Help:      "Depth of applied chain reorganizations",
			Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
		},
	)

	prometheusSyncRequestTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nakamotocash",
			Subsystem: "netsync",
			Name:      "request_timeouts",
			Help:      "Number of pending requests that expired",
		},
	)

	prometheusSyncPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nakamotocash",
			Subsystem: "netsync",
			Name:      "peers",
			Help:      "Number of ready peers known to the sync manager",
		},
	)

	prometheusSyncTipHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nakamotocash",
			Subsystem: "netsync",
			Name:      "tip_height",
			Help:      "Height of the active chain tip",
		},
	)
}
