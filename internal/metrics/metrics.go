// Package metrics defines the Prometheus collectors exported by a running
// notebook. Each App owns its own registry so several instances (and tests)
// can coexist in one process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the runtime collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// evaluations counts finished cell evaluations.
	// Labels: module, outcome (resolved, errored, failed_dependency, pending)
	evaluations *prometheus.CounterVec
	// evalLatency measures synchronous body execution time.
	// Labels: module
	evalLatency *prometheus.HistogramVec
	// transitions counts value-state writes.
	// Labels: status
	transitions *prometheus.CounterVec
	// generatorItems counts values produced by generator cells.
	generatorItems prometheus.Counter
	// inflight is the number of awaits and generators currently running.
	inflight prometheus.Gauge
	// staleResults counts async results dropped because their cell was re-run.
	staleResults prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellgrid",
			Subsystem: "runtime",
			Name:      "evaluations_total",
			Help:      "Cell evaluations by outcome",
		}, []string{"module", "outcome"}),
		evalLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cellgrid",
			Subsystem: "runtime",
			Name:      "evaluation_seconds",
			Help:      "Cell body execution time in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"module"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellgrid",
			Subsystem: "runtime",
			Name:      "transitions_total",
			Help:      "Cell value-state transitions by resulting status",
		}, []string{"status"}),
		generatorItems: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cellgrid",
			Subsystem: "runtime",
			Name:      "generator_items_total",
			Help:      "Values produced by generator cells",
		}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cellgrid",
			Subsystem: "runtime",
			Name:      "inflight_async",
			Help:      "Awaits and generators currently running",
		}),
		staleResults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cellgrid",
			Subsystem: "runtime",
			Name:      "stale_results_total",
			Help:      "Async results dropped because their cell was re-run",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Evaluated records one evaluation outcome and how long the body took.
func (m *Metrics) Evaluated(module, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(module, outcome).Inc()
	if took > 0 {
		m.evalLatency.WithLabelValues(module).Observe(took.Seconds())
	}
}

// Transition records a state write.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// GeneratorItem records one generated value.
func (m *Metrics) GeneratorItem() {
	if m == nil {
		return
	}
	m.generatorItems.Inc()
}

// AsyncStarted and AsyncFinished track in-flight async work.
func (m *Metrics) AsyncStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) AsyncFinished() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

// StaleResult records a dropped async result.
func (m *Metrics) StaleResult() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}
