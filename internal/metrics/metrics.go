// Package metrics provides Prometheus metrics for the folder server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folderserve_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folderserve_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Content metrics
	contentBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "folderserve_content_bytes_served_total",
			Help: "Total file bytes written to clients",
		},
	)

	contentResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folderserve_content_responses_total",
			Help: "File responses by kind (full, partial, error)",
		},
		[]string{"kind"},
	)

	// Index metrics
	indexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "folderserve_index_entries",
			Help: "Number of entries in the file index",
		},
	)

	indexJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folderserve_index_job_duration_seconds",
			Help:    "Duration of index jobs (rebuild, reconcile, cleanup)",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	indexJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folderserve_index_jobs_total",
			Help: "Index jobs by outcome",
		},
		[]string{"job", "result"},
	)

	cleanupDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folderserve_cleanup_deletions_total",
			Help: "Filesystem deletions attempted by cleanup",
		},
		[]string{"result"},
	)

	// Index store metrics
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folderserve_store_operation_duration_seconds",
			Help:    "Index store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folderserve_store_operations_total",
			Help: "Total index store operations",
		},
		[]string{"backend", "op", "status"},
	)

	// Listing cache
	listingCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folderserve_listing_cache_total",
			Help: "Live directory listing cache lookups",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordContent records a file response. kind is "full", "partial" or "error".
func RecordContent(kind string, bytes int64) {
	contentResponsesTotal.WithLabelValues(kind).Inc()
	if bytes > 0 {
		contentBytesServed.Add(float64(bytes))
	}
}

// SetIndexEntries sets the current index size.
func SetIndexEntries(n int) {
	indexEntries.Set(float64(n))
}

// RecordIndexJob records the duration and outcome of an index job.
func RecordIndexJob(job string, duration time.Duration, err error) {
	indexJobDuration.WithLabelValues(job).Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	indexJobsTotal.WithLabelValues(job, result).Inc()
}

// RecordIndexBusy counts a job that was rejected by the writer guard.
func RecordIndexBusy(job string) {
	indexJobsTotal.WithLabelValues(job, "busy").Inc()
}

// RecordCleanupDeletion records one cleanup deletion. result is "deleted", "failed" or "missing".
func RecordCleanupDeletion(result string) {
	cleanupDeletionsTotal.WithLabelValues(result).Inc()
}

// RecordStoreOperation records an index store operation.
func RecordStoreOperation(backend, op string, duration time.Duration, success bool) {
	storeOperationDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	storeOperationsTotal.WithLabelValues(backend, op, status).Inc()
}

// RecordListingCache records a live listing cache hit or miss.
func RecordListingCache(hit bool) {
	if hit {
		listingCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	listingCacheTotal.WithLabelValues("miss").Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
// Paths are not used as labels; a file server would explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, rw.statusCode, time.Since(start))
	})
}
