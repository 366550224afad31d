// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements output.MetricsCollector using Prometheus.
type Collector struct {
	registry *prometheus.Registry

	reindexTotal        *prometheus.CounterVec
	reindexDuration     *prometheus.HistogramVec
	documentsIndexed    *prometheus.CounterVec
	reindexRunning      prometheus.Gauge
	geometriesRepaired  *prometheus.CounterVec
	lookups             *prometheus.CounterVec
	lookupDuration      *prometheus.HistogramVec
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry, including the Go
// runtime and process collectors.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "hospigeo"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		reindexTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_total",
			Help:      "Finished reindex runs",
		}, []string{"entity_type", "status"}),

		reindexDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reindex_duration_seconds",
			Help:      "Reindex duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"entity_type"}),

		documentsIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_indexed_total",
			Help:      "Documents accepted by the search engine",
		}, []string{"entity_type"}),

		reindexRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reindex_running",
			Help:      "1 while a reindex is in flight",
		}),

		geometriesRepaired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometries_repaired_total",
			Help:      "Boundary geometries rewritten by repair passes",
		}, []string{"collection"}),

		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_lookups_total",
			Help:      "Point-in-polygon lookups",
		}, []string{"level", "outcome"}),

		lookupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "boundary_lookup_duration_seconds",
			Help:      "Point-in-polygon lookup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"level"}),

		storageOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Dataset storage operations",
		}, []string{"operation", "status"}),

		storageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_duration_seconds",
			Help:      "Dataset storage operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// IncReindex implements output.MetricsCollector.
func (c *Collector) IncReindex(entityType string, success bool) {
	c.reindexTotal.WithLabelValues(entityType, outcome(success)).Inc()
}

// ObserveReindexDuration implements output.MetricsCollector.
func (c *Collector) ObserveReindexDuration(entityType string, d time.Duration) {
	c.reindexDuration.WithLabelValues(entityType).Observe(d.Seconds())
}

// AddDocumentsIndexed implements output.MetricsCollector.
func (c *Collector) AddDocumentsIndexed(entityType string, n int) {
	c.documentsIndexed.WithLabelValues(entityType).Add(float64(n))
}

// SetReindexRunning implements output.MetricsCollector.
func (c *Collector) SetReindexRunning(running bool) {
	if running {
		c.reindexRunning.Set(1)
		return
	}
	c.reindexRunning.Set(0)
}

// AddGeometriesRepaired implements output.MetricsCollector.
func (c *Collector) AddGeometriesRepaired(collection string, n int) {
	c.geometriesRepaired.WithLabelValues(collection).Add(float64(n))
}

// IncLookup implements output.MetricsCollector.
func (c *Collector) IncLookup(level, result string) {
	c.lookups.WithLabelValues(level, result).Inc()
}

// ObserveLookupDuration implements output.MetricsCollector.
func (c *Collector) ObserveLookupDuration(level string, d time.Duration) {
	c.lookupDuration.WithLabelValues(level).Observe(d.Seconds())
}

// IncStorageOperations implements output.MetricsCollector.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	c.storageOperations.WithLabelValues(operation, outcome(success)).Inc()
}

// ObserveStorageDuration implements output.MetricsCollector.
func (c *Collector) ObserveStorageDuration(operation string, d time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records request counts and latency per route template, so path
// parameters do not create new series.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := routeTemplate(r)
		c.httpRequestsTotal.WithLabelValues(r.Method, route, statusClass(wrapped.statusCode)).Inc()
		c.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
