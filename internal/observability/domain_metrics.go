package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	asksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlbridge_asks_total",
			Help: "Total number of ask requests by backend and outcome.",
		},
		[]string{"backend", "status"},
	)
	askDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlbridge_ask_duration_seconds",
			Help:    "End-to-end ask latency by backend.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)
	askStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlbridge_ask_stage_duration_seconds",
			Help:    "Per-stage ask latency by backend and stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend", "stage"},
	)
	askFaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlbridge_ask_faults_total",
			Help: "Total number of failed asks by backend and fault kind.",
		},
		[]string{"backend", "kind"},
	)
	askResultRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlbridge_ask_result_rows",
			Help:    "Row counts of successful ask results by backend.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(
		asksTotal,
		askDurationSeconds,
		askStageDurationSeconds,
		askFaultsTotal,
		askResultRows,
	)
}

func ObserveAskStage(backend, stage string, elapsed time.Duration) {
	askStageDurationSeconds.WithLabelValues(backend, stage).Observe(elapsed.Seconds())
}

func ObserveAskSuccess(backend string, rows int, elapsed time.Duration) {
	asksTotal.WithLabelValues(backend, "ok").Inc()
	askDurationSeconds.WithLabelValues(backend).Observe(elapsed.Seconds())
	askResultRows.WithLabelValues(backend).Observe(float64(rows))
}

func ObserveAskFailure(backend, faultKind string, elapsed time.Duration) {
	asksTotal.WithLabelValues(backend, "error").Inc()
	askDurationSeconds.WithLabelValues(backend).Observe(elapsed.Seconds())
	askFaultsTotal.WithLabelValues(backend, faultKind).Inc()
}
