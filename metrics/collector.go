package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/isdmx/execbox/engine"
)

const namespace = "execbox"

// Collector holds all Prometheus metrics for the engine.
// Uses a custom registry, no global state.
type Collector struct {
	Registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ActiveExecutions  prometheus.Gauge
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates a Collector with all metrics registered on a custom registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total code executions by backend, language and terminal status.",
		}, []string{"backend", "language", "status"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "execution_duration_seconds",
			Help:      "Code execution duration in seconds, as seen by the caller.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 15, 30},
		}, []string{"backend", "language"}),

		ActiveExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "active_executions",
			Help:      "Number of executions currently in flight.",
		}),
	}

	reg.MustRegister(
		c.ExecutionsTotal,
		c.ExecutionDuration,
		c.ActiveExecutions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// ExecutionStarted implements engine.Observer
func (c *Collector) ExecutionStarted(string, string) {
	c.ActiveExecutions.Inc()
}

// ExecutionFinished implements engine.Observer
func (c *Collector) ExecutionFinished(backend, language, status string, duration time.Duration) {
	c.ActiveExecutions.Dec()
	c.ExecutionsTotal.WithLabelValues(backend, language, status).Inc()
	c.ExecutionDuration.WithLabelValues(backend, language).Observe(duration.Seconds())
}
