package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the sweep-level prometheus instruments, exposed by the
// status server's /metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	RunsCompleted prometheus.Counter
	RunsFailed    prometheus.Counter
	RunsInFlight  prometheus.Gauge
	RunSeconds    prometheus.Histogram
	TradesTotal   prometheus.Counter
}

// NewMetrics builds the instruments on their own registry so concurrent
// sweeps in one process never collide.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "breakout",
			Name:      "runs_completed_total",
			Help:      "Backtest runs finished successfully.",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "breakout",
			Name:      "runs_failed_total",
			Help:      "Backtest runs that errored.",
		}),
		RunsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "breakout",
			Name:      "runs_in_flight",
			Help:      "Backtest runs currently executing.",
		}),
		RunSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "breakout",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of one backtest run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		TradesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "breakout",
			Name:      "trades_total",
			Help:      "Closed trades across all runs.",
		}),
	}
}

// Registry returns the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
