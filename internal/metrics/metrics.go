// Package metrics exposes the agent's prometheus counters and gauges,
// registered package-init style: tasks executed, diagnostic severities,
// lifecycle transitions, and peer count.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LifecycleTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2p_agent_lifecycle_transitions_total",
			Help: "Total number of lifecycle state transitions, by from and to state",
		},
		[]string{"from", "to"},
	)

	LifecycleState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "p2p_agent_lifecycle_state",
			Help: "1 for the current lifecycle state, 0 for all others",
		},
		[]string{"state"},
	)

	DiagnosticSeverity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "p2p_agent_diagnostic_severity",
			Help: "Severity of the most recent startup diagnostic check (0=OK, 1=WARN, 2=CRITICAL)",
		},
		[]string{"check"},
	)

	TasksExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2p_agent_tasks_executed_total",
			Help: "Total number of tasks executed, by outcome",
		},
		[]string{"outcome"},
	)

	TaskExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "p2p_agent_task_execution_duration_seconds",
			Help:    "Time taken to execute a task in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PeerCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "p2p_agent_peer_count",
			Help: "Current number of connected peers",
		},
	)

	ShutdownDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "p2p_agent_shutdown_duration_seconds",
			Help:    "Time taken to complete graceful shutdown in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(LifecycleTransitionsTotal)
	prometheus.MustRegister(LifecycleState)
	prometheus.MustRegister(DiagnosticSeverity)
	prometheus.MustRegister(TasksExecutedTotal)
	prometheus.MustRegister(TaskExecutionDuration)
	prometheus.MustRegister(PeerCount)
	prometheus.MustRegister(ShutdownDuration)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation and reports its duration to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
