// Package metrics holds the Prometheus collectors of the optimisation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hyperopt"

// Metrics groups the service's collectors. A nil *Metrics records nothing.
type Metrics struct {
	runsTotal        *prometheus.CounterVec
	evaluationsTotal *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	activeJobs       prometheus.Gauge
	rejectedTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished optimisation runs by strategy and terminal state",
		}, []string{"strategy", "termination"}),

		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Objective evaluations performed",
		}, []string{"objective"}),

		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of optimisation runs",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"strategy"}),

		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Optimisation jobs currently running",
		}),

		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_jobs_total",
			Help:      "Job submissions rejected before running",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.runsTotal, m.evaluationsTotal,
		m.runDuration, m.activeJobs, m.rejectedTotal,
	)

	return m
}

// JobStarted marks a job as running.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

// JobFinished records a finished run. termination is the terminal state name,
// or "failed".
func (m *Metrics) JobFinished(strategy, termination string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
	m.runsTotal.WithLabelValues(strategy, termination).Inc()
	m.runDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// Evaluated counts one objective evaluation.
func (m *Metrics) Evaluated(objective string) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(objective).Inc()
}

// Rejected counts a submission turned away, e.g. for "invalid" or "capacity".
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(reason).Inc()
}
