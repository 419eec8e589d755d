// Package metricx exposes queue metrics in the Prometheus text format.
package metricx

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/culturalsoundlab/soundlab/pkg/jobx"
)

const namespace = "soundlab"

// Metrics records job lifecycle events. It implements jobx.Observer.
type Metrics struct {
	registry *prometheus.Registry

	submitted   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	retries     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New registers the queue metrics on a fresh registry. stats is read on
// every scrape for the queue depth gauges.
func New(stats func() jobx.Stats) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs submitted to the queue",
		}, []string{"type"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs that reached a terminal state",
		}, []string{"type", "outcome"}), // completed, failed, cancelled
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_retried_total",
			Help:      "Total number of failed runs that were requeued",
		}, []string{"type"}),
		// 1s to ~17min
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_run_duration_seconds",
			Help:      "Duration of a single job run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
		}, []string{"type", "outcome"}),
	}

	gauge := func(name, help string, value func(jobx.Stats) int) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(stats())) })
	}
	gauge("queue_waiting_jobs", "Jobs waiting to be admitted", func(s jobx.Stats) int { return s.Waiting })
	gauge("queue_active_jobs", "Jobs currently running", func(s jobx.Stats) int { return s.Active })
	gauge("queue_concurrency", "Maximum number of concurrently running jobs", func(s jobx.Stats) int { return s.Concurrency })

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe implements jobx.Observer.
func (m *Metrics) Observe(_ context.Context, ev jobx.Event) {
	typ := ev.Job.Type
	switch ev.Kind {
	case jobx.EventSubmitted:
		m.submitted.WithLabelValues(typ).Inc()
	case jobx.EventRetrying:
		m.retries.WithLabelValues(typ).Inc()
		m.duration.WithLabelValues(typ, "retrying").Observe(ev.Duration.Seconds())
	case jobx.EventCompleted, jobx.EventFailed:
		outcome := string(ev.Kind)
		m.transitions.WithLabelValues(typ, outcome).Inc()
		m.duration.WithLabelValues(typ, outcome).Observe(ev.Duration.Seconds())
	case jobx.EventCancelled:
		m.transitions.WithLabelValues(typ, "cancelled").Inc()
	}
}
