// Package observability collects Prometheus metrics for the gateway and
// worker runtime and exposes them via promhttp on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a small fixed set of counters/gauges/histograms covering the
// dispatch path: how many jobs got dispatched, how many timed out waiting
// for a rendezvous result, how long that wait took, how many nodes are
// currently tracked, and how often the registry's distributed lock gets
// acquired.
type Metrics struct {
	jobsDispatched   prometheus.Counter
	jobsTimedOut     prometheus.Counter
	jobsFailed       prometheus.Counter
	rendezvousWait   prometheus.Histogram
	activeNodes      prometheus.Gauge
	mutexAcquisitions *prometheus.CounterVec
}

// NewMetrics constructs and registers the gateway's metric set against the
// default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callme_gate_jobs_dispatched_total",
			Help: "Total number of jobs successfully dispatched to a worker queue.",
		}),
		jobsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callme_gate_jobs_timed_out_total",
			Help: "Total number of jobs whose rendezvous wait exceeded the route timeout.",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callme_gate_jobs_failed_total",
			Help: "Total number of jobs that reached a failed terminal state.",
		}),
		rendezvousWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "callme_gate_rendezvous_wait_seconds",
			Help:    "Time spent blocked waiting for a worker's rendezvous result.",
			Buckets: prometheus.DefBuckets,
		}),
		activeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "callme_gate_active_nodes",
			Help: "Number of nodes currently tracked by the registry, regardless of status.",
		}),
		mutexAcquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callme_gate_mutex_acquisitions_total",
			Help: "Distributed mutex acquisition attempts, partitioned by outcome.",
		}, []string{"name", "outcome"}),
	}

	prometheus.MustRegister(
		m.jobsDispatched,
		m.jobsTimedOut,
		m.jobsFailed,
		m.rendezvousWait,
		m.activeNodes,
		m.mutexAcquisitions,
	)
	return m
}

func (m *Metrics) RecordDispatched() {
	if m == nil {
		return
	}
	m.jobsDispatched.Inc()
}

func (m *Metrics) RecordTimedOut() {
	if m == nil {
		return
	}
	m.jobsTimedOut.Inc()
}

func (m *Metrics) RecordFailed() {
	if m == nil {
		return
	}
	m.jobsFailed.Inc()
}

func (m *Metrics) ObserveRendezvousWait(seconds float64) {
	if m == nil {
		return
	}
	m.rendezvousWait.Observe(seconds)
}

func (m *Metrics) SetActiveNodes(count int) {
	if m == nil {
		return
	}
	m.activeNodes.Set(float64(count))
}

func (m *Metrics) RecordMutexAcquisition(name string, acquired bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if acquired {
		outcome = "acquired"
	}
	m.mutexAcquisitions.WithLabelValues(name, outcome).Inc()
}
