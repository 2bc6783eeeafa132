package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Consistency metrics
	RebuildsTotal      *prometheus.CounterVec
	RebuildDuration    prometheus.Histogram
	RebuildErrorsTotal prometheus.Counter

	// Search metrics
	SearchesTotal  prometheus.Counter
	SearchDuration prometheus.Histogram

	// Store metrics
	DocumentsIndexed prometheus.Gauge

	// Link metrics
	LinkRepairsTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rebuilds_total",
				Help: "Total number of index rebuild executions",
			},
			[]string{"reason"},
		),
		RebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_rebuild_duration_seconds",
				Help:    "Duration of index rebuilds in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		RebuildErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_rebuild_errors_total",
				Help: "Total number of failed index rebuilds",
			},
		),

		SearchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searches_total",
				Help: "Total number of search queries served",
			},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_duration_seconds",
				Help:    "Duration of search queries in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		DocumentsIndexed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "documents_indexed",
				Help: "Number of documents in the search index",
			},
		),

		LinkRepairsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "link_repairs_total",
				Help: "Total number of link symmetry repairs applied",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.RebuildsTotal)
	m.registry.MustRegister(m.RebuildDuration)
	m.registry.MustRegister(m.RebuildErrorsTotal)
	m.registry.MustRegister(m.SearchesTotal)
	m.registry.MustRegister(m.SearchDuration)
	m.registry.MustRegister(m.DocumentsIndexed)
	m.registry.MustRegister(m.LinkRepairsTotal)
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
