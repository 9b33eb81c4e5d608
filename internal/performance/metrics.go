package performance

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promMetrics are the Prometheus collectors behind a Profiler. Each
// profiler owns its registry so tests and multiple servers do not collide.
type promMetrics struct {
	registry  *prometheus.Registry
	durations *prometheus.HistogramVec
	outcomes  *prometheus.CounterVec
}

func newPromMetrics() *promMetrics {
	m := &promMetrics{
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mapcore_operation_duration_seconds",
			Help:    "Duration of map operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mapcore_operation_outcomes_total",
			Help: "Map operation outcomes (hit, miss, conversion_failed, ...)",
		}, []string{"operation", "outcome"}),
	}
	m.registry.MustRegister(m.durations, m.outcomes)
	m.registry.MustRegister(collectors.NewGoCollector())
	return m
}

// Registry returns the profiler's Prometheus registry for extra collectors
func (p *Profiler) Registry() *prometheus.Registry {
	return p.prom.registry
}

// Handler serves the profiler's metrics in the Prometheus text format
func (p *Profiler) Handler() http.Handler {
	return promhttp.HandlerFor(p.prom.registry, promhttp.HandlerOpts{})
}
