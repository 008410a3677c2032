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
	TagMutationsTotal    *prometheus.CounterVec
	RankQueriesTotal     *prometheus.CounterVec
	RankLatency          *prometheus.HistogramVec
	RankResultsCount     prometheus.Histogram
	Entities             prometheus.Gauge
	Tags                 prometheus.Gauge
	LoaderRecordsTotal   *prometheus.CounterVec
	TagEventsTotal       *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. Passing
// prometheus.DefaultRegisterer exposes them through Handler.
func New(reg prometheus.Registerer) *Metrics {
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
		TagMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tag_mutations_total",
				Help: "Index mutations by operation (register, attach, detach) and outcome (applied, noop, not_found, invalid).",
			},
			[]string{"op", "outcome"},
		),
		RankQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_queries_total",
				Help: "Rank queries by cache status (hit, miss, disabled).",
			},
			[]string{"cache_status"},
		),
		RankLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rank_latency_seconds",
				Help:    "Rank query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"cache_status"},
		),
		RankResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rank_results_count",
				Help:    "Number of entities returned per rank query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		Entities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_entities",
				Help: "Number of registered entities.",
			},
		),
		Tags: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_tags",
				Help: "Number of distinct tags attached to at least one entity.",
			},
		),
		LoaderRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loader_records_total",
				Help: "Bulk-load records by status (loaded, malformed, failed).",
			},
			[]string{"status"},
		),
		TagEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tag_events_consumed_total",
				Help: "Tag events consumed from Kafka by op and status.",
			},
			[]string{"op", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.TagMutationsTotal,
		m.RankQueriesTotal,
		m.RankLatency,
		m.RankResultsCount,
		m.Entities,
		m.Tags,
		m.LoaderRecordsTotal,
		m.TagEventsTotal,
	)

	return m
}

// NewUnregistered returns collectors registered on a private registry. Tests
// and tools that do not expose /metrics use it.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
