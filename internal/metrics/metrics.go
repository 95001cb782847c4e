// Package metrics exposes Prometheus counters for the server and the worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and binaries never clash on the
// global one. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ledgerWrites    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	rateLimited     prometheus.Counter
	events          *prometheus.CounterVec
	mirrorRuns      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kharch",
				Name:      "requests_total",
				Help:      "How many HTTP requests processed, partitioned by status code, method and route.",
			},
			[]string{"code", "method", "route"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kharch",
				Name:      "request_duration_seconds",
				Help:      "The HTTP request latencies in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ledgerWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kharch",
				Name:      "ledger_writes_total",
				Help:      "Committed ledger writes by entity and operation.",
			},
			[]string{"entity", "operation"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kharch",
				Name:      "summary_cache_lookups_total",
				Help:      "Dashboard summary cache lookups by result.",
			},
			[]string{"result"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kharch",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter.",
			},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kharch",
				Name:      "events_published_total",
				Help:      "Ledger events handed to the broker by result.",
			},
			[]string{"result"},
		),
		mirrorRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kharch",
				Name:      "mirror_runs_total",
				Help:      "Spreadsheet mirror runs by result.",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestCount,
		m.requestDuration,
		m.ledgerWrites,
		m.cacheLookups,
		m.rateLimited,
		m.events,
		m.mirrorRuns,
	)
	return m
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request. route should be the mux pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestCount.WithLabelValues(strconv.Itoa(status), method, route).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) LedgerWrite(entity, operation string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(entity, operation).Inc()
}

// Hit and Miss let Metrics act as a cache.StatsRecorder.
func (m *Metrics) Hit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) Miss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) EventPublished(err error) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) MirrorRun(err error) {
	if m == nil {
		return
	}
	m.mirrorRuns.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
