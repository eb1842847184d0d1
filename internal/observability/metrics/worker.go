package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	sweepTotal       *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	jobsTotal        *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	sweepTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "sweeps_total",
			Help:      "Job sweeps by status.",
		},
		[]string{"service", "status"},
	)
	sweepDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "sweep_duration_seconds",
			Help:      "Job sweep duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Async jobs touched by the sweep, by result.",
		},
		[]string{"service", "result"},
	)
	providerCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls by outcome.",
		},
		[]string{"service", "provider", "outcome"},
	)
	providerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Provider call latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "provider"},
	)

	registry.MustRegister(sweepTotal, sweepDuration, jobsTotal, providerCalls, providerDuration)

	return &WorkerMetrics{
		registry:         registry,
		service:          service,
		sweepTotal:       sweepTotal,
		sweepDuration:    sweepDuration,
		jobsTotal:        jobsTotal,
		providerCalls:    providerCalls,
		providerDuration: providerDuration,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) ObserveSweep(report ports.SweepReport, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.sweepTotal.WithLabelValues(m.service, status).Inc()
	m.sweepDuration.Observe(duration.Seconds())

	m.jobsTotal.WithLabelValues(m.service, "polled").Add(float64(report.Polled))
	m.jobsTotal.WithLabelValues(m.service, "completed").Add(float64(report.Completed))
	m.jobsTotal.WithLabelValues(m.service, "failed").Add(float64(report.Failed))
	m.jobsTotal.WithLabelValues(m.service, "expired").Add(float64(report.Expired))
}

func (m *WorkerMetrics) ObserveProviderCall(provider string, outcome domain.ProviderOutcome, duration time.Duration) {
	m.providerCalls.WithLabelValues(m.service, provider, string(outcome)).Inc()
	m.providerDuration.WithLabelValues(m.service, provider).Observe(duration.Seconds())
}
