package metric

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a Prometheus registry with the lattice metrics and Go runtime
// collectors registered.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	metrics            *Metrics
}

// NewRegistry creates a registry with core metrics and runtime collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	reg.MustRegister(m.Collectors()...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{prometheusRegistry: reg, metrics: m}
}

// Metrics returns the lattice collectors.
func (r *Registry) Metrics() *Metrics { return r.metrics }

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry { return r.prometheusRegistry }

// Register adds an extra collector. Registering the same collector twice is
// not an error.
func (r *Registry) Register(c prometheus.Collector) error {
	if err := r.prometheusRegistry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{Registry: r.prometheusRegistry})
}
