// Package metrics exposes Prometheus instrumentation for the server.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup outcomes.
const (
	LookupHit        = "hit"
	LookupMiss       = "miss"
	LookupRevalidate = "revalidate"
	LookupFallback   = "fallback"
)

// Metrics owns a private registry and the application's collectors.
type Metrics struct {
	registry *prometheus.Registry
	log      *slog.Logger

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	importedItems *prometheus.CounterVec
	importRuns    *prometheus.CounterVec
}

// New creates Metrics with Go runtime and process collectors registered.
func New(log *slog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		log:      log,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fresherjobs",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fresherjobs",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fresherjobs",
			Name:      "edge_cache_lookups_total",
			Help:      "Edge cache lookups by cache and outcome.",
		}, []string{"cache", "result"}),
		importedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fresherjobs",
			Name:      "imported_items_total",
			Help:      "Partner feed items stored as drafts, by source.",
		}, []string{"source"}),
		importRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fresherjobs",
			Name:      "feed_import_runs_total",
			Help:      "Partner feed import runs by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.cacheLookups,
		m.importedItems,
		m.importRuns,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      m,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Println implements promhttp.Logger.
func (m *Metrics) Println(v ...any) {
	m.log.Error("serve metrics", "error", fmt.Sprint(v...))
}

// CacheLookup counts one edge cache lookup.
func (m *Metrics) CacheLookup(cache, result string) {
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// ItemsImported counts drafts created from a partner feed.
func (m *Metrics) ItemsImported(source string, n int) {
	m.importedItems.WithLabelValues(source).Add(float64(n))
}

// ImportRun counts one import attempt; ok is false when it failed.
func (m *Metrics) ImportRun(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.importRuns.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware records request counts and latency. Requests are labelled
// by the matched ServeMux pattern so that IDs do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
