// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	FetchesTotal         *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	StoreLookupsTotal    *prometheus.CounterVec
	SnapshotsCached      prometheus.Gauge
	RenderDuration       *prometheus.HistogramVec
	RenderedRows         *prometheus.HistogramVec
	StaleRenders         prometheus.Counter
	AnalyticsDropped     prometheus.Counter
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankview_fetches_total",
				Help: "Static resource fetches by kind (snapshot, metadata) and result (ok, error, malformed).",
			},
			[]string{"kind", "result"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rankview_fetch_duration_seconds",
				Help:    "Static resource fetch latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"kind"},
		),
		StoreLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankview_store_lookups_total",
				Help: "Snapshot store lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
		SnapshotsCached: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rankview_snapshots_cached",
				Help: "Number of snapshots held in memory.",
			},
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rankview_render_duration_seconds",
				Help:    "Time to load and render a table, by front-end.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"frontend"},
		),
		RenderedRows: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rankview_rendered_rows",
				Help:    "Number of rows per rendered table.",
				Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000},
			},
			[]string{"variant"},
		),
		StaleRenders: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rankview_stale_renders_discarded_total",
				Help: "Loads that finished after a newer selection and were not rendered.",
			},
		),
		AnalyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rankview_analytics_events_dropped_total",
				Help: "View events dropped because the collector buffer was full.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.FetchesTotal,
		m.FetchDuration,
		m.StoreLookupsTotal,
		m.SnapshotsCached,
		m.RenderDuration,
		m.RenderedRows,
		m.StaleRenders,
		m.AnalyticsDropped,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
