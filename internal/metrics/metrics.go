// Package metrics exposes the server's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MovesCommitted counts half-moves by origin: "normal" or "premove".
	MovesCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "game",
		Name:      "moves_committed_total",
		Help:      "Half-moves committed to game history.",
	}, []string{"origin"})

	// PremoveExecution observes the time from turn flip to the premove
	// broadcast completing. The p95 target is 10ms.
	PremoveExecution = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chess",
		Subsystem: "game",
		Name:      "premove_execution_seconds",
		Help:      "Latency from turn flip to premove move_made broadcast.",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	GamesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "game",
		Name:      "games_completed_total",
		Help:      "Games reaching a terminal state, by result reason.",
	}, []string{"reason"})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "store",
		Name:      "persist_failures_total",
		Help:      "Asynchronous game persistence failures.",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chess",
		Subsystem: "ws",
		Name:      "connected_clients",
		Help:      "Currently connected websocket clients on this node.",
	})

	WatcherTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "watcher",
		Name:      "ticks_total",
		Help:      "Timeout watcher scan iterations.",
	})
)
