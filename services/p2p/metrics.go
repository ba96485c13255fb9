package p2p

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusPeersConnected     prometheus.Gauge
	prometheusPeersBanned        prometheus.Counter
	prometheusConnectionsRefused *prometheus.CounterVec
	prometheusMessagesReceived   *prometheus.CounterVec
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusPeersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nakamotocash",
			Subsystem: "p2p",
			Name:      "peers_connected",
			Help:      "Number of currently connected peers",
		},
	)

	prometheusPeersBanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nakamotocash",
			Subsystem: "p2p",
			Name:      "peers_banned",
			Help:      "Number of peers banned for misbehavior",
		},
	)

	prometheusConnectionsRefused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nakamotocash",
			Subsystem: "p2p",
			Name:      "connections_refused",
			Help:      "Number of connections refused, by reason",
		},
		[]string{"reason"},
	)

	prometheusMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nakamotocash",
			Subsystem: "p2p",
			Name:      "messages_received",
			Help:      "Number of protocol messages received, by command",
		},
		[]string{"command"},
	)
}
