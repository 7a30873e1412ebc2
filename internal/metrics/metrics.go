// Package metrics holds the prometheus collectors for presentation and
// collaborator lookups.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ModeBatch  = "batch"
	ModeSingle = "single"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	lookups   *prometheus.CounterVec
	presented prometheus.Counter
	latency   *prometheus.HistogramVec
	gatherer  prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marginalia",
			Name:      "lookup_round_trips_total",
			Help:      "Collaborator lookups issued while presenting annotations.",
		}, []string{"collaborator", "mode"}),
		presented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marginalia",
			Name:      "payloads_presented_total",
			Help:      "Annotation payloads produced.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "marginalia",
			Name:      "presentation_duration_seconds",
			Help:      "Time spent presenting a request's annotations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.lookups, m.presented, m.latency)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Lookup counts one round trip to a collaborator.
func (m *Metrics) Lookup(collaborator, mode string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(collaborator, mode).Inc()
}

func (m *Metrics) Presented(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.presented.Add(float64(n))
}

func (m *Metrics) ObservePresentation(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handler serves the registry New registered with, or the default registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
