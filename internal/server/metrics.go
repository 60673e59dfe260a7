package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/vqafit/internal/backend"
	"github.com/cwbudde/vqafit/internal/circuit"
	"github.com/cwbudde/vqafit/internal/dist"
)

// Metrics holds the Prometheus collectors of one server. Each server owns a
// registry so tests can create several.
type Metrics struct {
	registry       *prometheus.Registry
	jobsTotal      *prometheus.CounterVec
	jobsRunning    prometheus.Gauge
	evaluations    prometheus.Counter
	bestCost       *prometheus.GaugeVec
	backendLatency *prometheus.HistogramVec
	backendErrors  *prometheus.CounterVec
}

// NewMetrics registers the server collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vqafit",
			Name:      "jobs_total",
			Help:      "Training jobs by final state.",
		}, []string{"state"}),
		jobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vqafit",
			Name:      "jobs_running",
			Help:      "Training jobs currently running.",
		}),
		evaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vqafit",
			Name:      "cost_evaluations_total",
			Help:      "Cost-function evaluations across all jobs.",
		}),
		bestCost: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vqafit",
			Name:      "job_best_cost",
			Help:      "Best L1 cost of each job.",
		}, []string{"job_id"}),
		backendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vqafit",
			Name:      "backend_execute_seconds",
			Help:      "Circuit execution latency by backend.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"backend"}),
		backendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vqafit",
			Name:      "backend_errors_total",
			Help:      "Failed circuit executions by backend.",
		}, []string{"backend"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) jobStarted() {
	m.jobsRunning.Inc()
}

func (m *Metrics) jobFinished(jobID string, state JobState) {
	m.jobsRunning.Dec()
	m.jobsTotal.WithLabelValues(string(state)).Inc()
	m.bestCost.DeleteLabelValues(jobID)
}

func (m *Metrics) evaluated(jobID string, best float64) {
	m.evaluations.Inc()
	m.bestCost.WithLabelValues(jobID).Set(best)
}

// Instrument wraps a backend so every execution is timed.
func (m *Metrics) Instrument(b backend.Backend) backend.Backend {
	return &instrumentedBackend{Backend: b, metrics: m}
}

type instrumentedBackend struct {
	backend.Backend
	metrics *Metrics
}

func (ib *instrumentedBackend) Execute(ctx context.Context, c *circuit.Circuit, shots int) (dist.Counts, error) {
	start := time.Now()
	counts, err := ib.Backend.Execute(ctx, c, shots)
	ib.metrics.backendLatency.WithLabelValues(ib.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		ib.metrics.backendErrors.WithLabelValues(ib.Name()).Inc()
	}
	return counts, err
}
