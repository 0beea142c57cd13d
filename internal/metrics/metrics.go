// Package metrics exposes Prometheus metrics for the merge service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the merge service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal *prometheus.CounterVec

	// Merge metrics
	MergesTotal      *prometheus.CounterVec
	MergeDuration    prometheus.Histogram
	MergedPagesTotal prometheus.Counter
	FailuresTotal    *prometheus.CounterVec

	// Render metrics
	RendersTotal    *prometheus.CounterVec
	RenderDuration  *prometheus.HistogramVec
	RendersInFlight prometheus.Gauge
}

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfmerge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),

		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfmerge_merges_total",
				Help: "Total number of merge requests",
			},
			[]string{"status"},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdfmerge_merge_duration_seconds",
				Help:    "Duration of merge requests in seconds, rendering included",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		MergedPagesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pdfmerge_merged_pages_total",
				Help: "Total number of pages written to merged documents",
			},
		),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfmerge_failures_total",
				Help: "Total number of failed requests by error code",
			},
			[]string{"code"},
		),

		RendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfmerge_renders_total",
				Help: "Total number of page renders",
			},
			[]string{"kind", "status"},
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfmerge_render_duration_seconds",
				Help:    "Duration of page renders in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		RendersInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdfmerge_renders_in_flight",
				Help: "Number of renders currently running",
			},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.RequestsTotal)

	m.registry.MustRegister(m.MergesTotal)
	m.registry.MustRegister(m.MergeDuration)
	m.registry.MustRegister(m.MergedPagesTotal)
	m.registry.MustRegister(m.FailuresTotal)

	m.registry.MustRegister(m.RendersTotal)
	m.registry.MustRegister(m.RenderDuration)
	m.registry.MustRegister(m.RendersInFlight)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
