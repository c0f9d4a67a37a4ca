// Package metrics exposes Prometheus collectors for the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "appshell"

// Metrics owns a registry and the collectors recorded by the API.
// A nil *Metrics records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fruits    prometheus.Gauge
	buildInfo *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry, alongside the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by backend, method, route and status code",
			},
			[]string{"backend", "method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency, by backend, method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "method", "route"},
		),
		fruits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fruits",
				Help:      "Fruits currently held in the basket",
			},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Always 1; labels describe the running configuration",
			},
			[]string{"environment", "backend"},
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.fruits,
		m.buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(backend, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(backend, method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(backend, method, route).Observe(elapsed.Seconds())
}

// SetFruits publishes the basket size.
func (m *Metrics) SetFruits(n int) {
	if m == nil {
		return
	}
	m.fruits.Set(float64(n))
}

// SetBuildInfo marks the environment and backend the process runs with.
func (m *Metrics) SetBuildInfo(environment, backend string) {
	if m == nil {
		return
	}
	m.buildInfo.Reset()
	m.buildInfo.WithLabelValues(environment, backend).Set(1)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
