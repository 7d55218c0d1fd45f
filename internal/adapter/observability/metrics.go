// Package observability provides logging, metrics, and tracing for the
// worker runtime and its thin HTTP surface.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// TasksEnqueuedTotal counts tasks enqueued by queue name.
	TasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsxconnect_tasks_enqueued_total",
			Help: "Total number of tasks enqueued, by queue",
		},
		[]string{"queue"},
	)
	// TasksCompletedTotal counts tasks that reached a terminal return value, by worker and outcome.
	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsxconnect_tasks_completed_total",
			Help: "Total number of tasks completed, by worker name and outcome",
		},
		[]string{"worker", "outcome"},
	)
	// TasksRetriedTotal counts reschedules consumed from the retry budget, by worker and error category.
	TasksRetriedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsxconnect_tasks_retried_total",
			Help: "Total number of retry reschedules, by worker name and error category",
		},
		[]string{"worker", "category"},
	)
	// TasksDLQTotal counts tasks written to a dead-letter queue, by worker and reason.
	TasksDLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsxconnect_tasks_dlq_total",
			Help: "Total number of tasks moved to DLQ, by worker name and reason",
		},
		[]string{"worker", "reason"},
	)
	// ScannerInflight mirrors the Redis-backed inflight gauge as a local observation.
	ScannerInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dsxconnect_scanner_inflight",
			Help: "Last observed number of in-flight scans against the configured max",
		},
	)
	// ScanDuration records the elapsed wall-clock time of a scan-request task, in milliseconds.
	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dsxconnect_scan_duration_ms",
			Help:    "dsxconnect_request_elapsed_ms for completed scan requests",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000, 15000, 60000},
		},
		[]string{"verdict"},
	)
	// VerdictsTotal counts verdicts dispatched by verdict type.
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsxconnect_verdicts_total",
			Help: "Total verdicts dispatched, by verdict",
		},
		[]string{"verdict"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(TasksEnqueuedTotal)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksRetriedTotal)
	prometheus.MustRegister(TasksDLQTotal)
	prometheus.MustRegister(ScannerInflight)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(VerdictsTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// EnqueueTask increments the enqueued-tasks counter for the given queue.
func EnqueueTask(queue string) {
	TasksEnqueuedTotal.WithLabelValues(queue).Inc()
}

// CompleteTask increments the completed-tasks counter for a worker/outcome pair.
func CompleteTask(worker, outcome string) {
	TasksCompletedTotal.WithLabelValues(worker, outcome).Inc()
}

// RetryTask increments the retried-tasks counter for a worker/category pair.
func RetryTask(worker, category string) {
	TasksRetriedTotal.WithLabelValues(worker, category).Inc()
}

// DLQTask increments the DLQ counter for a worker/reason pair.
func DLQTask(worker, reason string) {
	TasksDLQTotal.WithLabelValues(worker, reason).Inc()
}

// ObserveInflight records the last observed scanner inflight count.
func ObserveInflight(n int64) {
	ScannerInflight.Set(float64(n))
}

// ObserveScanDuration records the elapsed time and verdict of a completed scan.
func ObserveScanDuration(verdict string, elapsedMs float64) {
	ScanDuration.WithLabelValues(verdict).Observe(elapsedMs)
	VerdictsTotal.WithLabelValues(verdict).Inc()
}
