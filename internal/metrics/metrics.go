// Package metrics exposes Prometheus collectors for download jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "grabba"

// Job outcomes used as the "outcome" label.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeTimeout   = "timeout"
	OutcomeFatal     = "fatal"
	OutcomeRejected  = "rejected"
)

// Metrics holds the service's collectors. Collectors are registered on the
// registerer passed to New so tests can use a private registry.
type Metrics struct {
	jobsTotal        *prometheus.CounterVec
	transferAttempts *prometheus.CounterVec
	networkWaits     prometheus.Counter
	jobsInFlight     *prometheus.GaugeVec
	jobDuration      *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
}

// New creates and registers the collectors on reg.
// Registration panics on duplicate collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Finished download jobs by media kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		transferAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_attempts_total",
				Help:      "Transfer attempts started, including resumes.",
			},
			[]string{"kind"},
		),
		networkWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "network_waits_total",
				Help:      "Times a job paused waiting for connectivity.",
			},
		),
		jobsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_in_flight",
				Help:      "Jobs currently being downloaded.",
			},
			[]string{"kind"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall time from job start to terminal state.",
				// Jobs are bounded by a 420s deadline.
				Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 420, 600},
			},
			[]string{"kind", "outcome"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Jobs waiting for a free worker.",
			},
		),
	}

	reg.MustRegister(
		m.jobsTotal,
		m.transferAttempts,
		m.networkWaits,
		m.jobsInFlight,
		m.jobDuration,
		m.queueDepth,
	)

	return m
}

// JobStarted marks a job of kind as in flight.
func (m *Metrics) JobStarted(kind string) {
	m.jobsInFlight.WithLabelValues(kind).Inc()
}

// JobFinished records a terminal outcome and clears the in-flight mark.
func (m *Metrics) JobFinished(kind, outcome string, elapsed time.Duration) {
	m.jobsInFlight.WithLabelValues(kind).Dec()
	m.jobsTotal.WithLabelValues(kind, outcome).Inc()
	m.jobDuration.WithLabelValues(kind, outcome).Observe(elapsed.Seconds())
}

// JobRejected counts a request refused before any transfer started.
func (m *Metrics) JobRejected(kind string) {
	m.jobsTotal.WithLabelValues(kind, OutcomeRejected).Inc()
}

// TransferAttempt counts one downloader invocation.
func (m *Metrics) TransferAttempt(kind string) {
	m.transferAttempts.WithLabelValues(kind).Inc()
}

// NetworkWait counts a pause for lost connectivity.
func (m *Metrics) NetworkWait() {
	m.networkWaits.Inc()
}

// SetQueueDepth records how many tasks wait for a worker.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
