// Package metrics implements the name-keyed meter/instrument registry of
// spec section 4.13: a small OpenTelemetry-shaped façade backed directly by
// Prometheus, since no retrieved repository imports go.opentelemetry.io/otel
// directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/privacysandbox/pbs/internal/concurrent"
)

// Counter is a monotonic instrument labeled by endpoint and reporting
// origin, matching the front end's total_requests/client_errors/
// server_errors counters.
type Counter interface {
	Inc(endpoint, reportingOrigin string)
}

// Gauge is a settable instrument, used by the health service to report
// memory/filesystem usage ratios.
type Gauge interface {
	Set(value float64)
}

// Router is a lazily-populated, idempotent registry of Counter and Gauge
// instruments keyed by name. Router.Handler serves the registry at
// /metrics when enabled is true; when disabled, instruments are still
// created and updated so request-handling code never branches on whether
// metrics are exposed.
type Router struct {
	enabled  bool
	registry *prometheus.Registry

	counters *concurrent.Map[string, *prometheusCounter]
	gauges   *concurrent.Map[string, *prometheusGauge]
}

// NewRouter constructs a Router. When enabled is false, Handler still
// returns a valid http.Handler but callers are expected not to mount it.
func NewRouter(enabled bool) *Router {
	return &Router{
		enabled:  enabled,
		registry: prometheus.NewRegistry(),
		counters: concurrent.NewMap[string, *prometheusCounter](),
		gauges:   concurrent.NewMap[string, *prometheusGauge](),
	}
}

// Enabled reports whether this router's /metrics endpoint should be mounted.
func (r *Router) Enabled() bool {
	return r.enabled
}

// Counter returns the named counter instrument, creating and registering it
// on first use.
func (r *Router) Counter(name string) Counter {
	return r.counters.GetOrInsert(name, func() *prometheusCounter {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: sanitizeMetricName(name),
			Help: name,
		}, []string{"endpoint", "reporting_origin"})
		r.registry.MustRegister(vec)
		return &prometheusCounter{vec: vec}
	})
}

// Gauge returns the named gauge instrument, creating and registering it on
// first use.
func (r *Router) Gauge(name string) Gauge {
	return r.gauges.GetOrInsert(name, func() *prometheusGauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: sanitizeMetricName(name),
			Help: name,
		})
		r.registry.MustRegister(g)
		return &prometheusGauge{g: g}
	})
}

// Handler serves the registry's current instrument values.
func (r *Router) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

type prometheusCounter struct {
	vec *prometheus.CounterVec
}

func (c *prometheusCounter) Inc(endpoint, reportingOrigin string) {
	c.vec.WithLabelValues(endpoint, reportingOrigin).Inc()
}

type prometheusGauge struct {
	g prometheus.Gauge
}

func (g *prometheusGauge) Set(value float64) {
	g.g.Set(value)
}

func sanitizeMetricName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
			continue
		}
		out = append(out, '_')
	}
	return string(out)
}
