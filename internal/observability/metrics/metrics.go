// Package metrics exposes Prometheus collectors for the tip pipeline and the HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	ingestOutcomes   *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	reviewDecisions  *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// New registers the travelbot collectors plus Go runtime and process collectors on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()

	if err := m.registry.Register(m); err != nil {
		return nil, err
	}
	if err := m.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := m.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.ingestOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travelbot_ingest_outcomes_total",
			Help: "Ingested tips by final status and review reason",
		},
		[]string{"status", "reason"},
	)

	m.upstreamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travelbot_upstream_failures_total",
			Help: "Failed calls to external collaborators by pipeline stage",
		},
		[]string{"stage"},
	)

	m.upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "travelbot_upstream_duration_seconds",
			Help:    "Latency of calls to external collaborators by pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	m.reviewDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travelbot_review_decisions_total",
			Help: "Administrator decisions on queued tips",
		},
		[]string{"decision"},
	)

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travelbot_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "travelbot_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	m.collectors = []prometheus.Collector{
		m.ingestOutcomes,
		m.upstreamFailures,
		m.upstreamDuration,
		m.reviewDecisions,
		m.httpRequests,
		m.httpDuration,
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// All recorders are safe on a nil *Metrics so callers can run without instrumentation.

func (m *Metrics) RecordIngest(status, reason string) {
	if m == nil {
		return
	}
	m.ingestOutcomes.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) RecordUpstream(stage string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(stage).Observe(took.Seconds())
	if err != nil {
		m.upstreamFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) RecordReview(decision string) {
	if m == nil {
		return
	}
	m.reviewDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordHTTP(route, method, code string, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, code).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(took.Seconds())
}
