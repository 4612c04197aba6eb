// Package obs exposes Prometheus metrics for the ingestion service: upload
// attempt counters and latency, run lifecycle counters, and HTTP request
// instrumentation for the API surface.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technoetl/bulkmedia/internal/ingest"
)

var (
	uploadAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkmedia",
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Total media upload attempts by terminal status.",
		},
		[]string{"status"},
	)
	uploadAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bulkmedia",
			Subsystem: "upload",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of individual media upload attempts.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"status"},
	)
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkmedia",
			Subsystem: "upload",
			Name:      "runs_total",
			Help:      "Total upload runs by result.",
		},
		[]string{"result"},
	)
	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bulkmedia",
			Subsystem: "upload",
			Name:      "active_runs",
			Help:      "Upload runs currently in progress.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkmedia",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bulkmedia",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		uploadAttemptsTotal,
		uploadAttemptDuration,
		runsTotal,
		activeRuns,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// Metrics implements ingest.MetricsHook.
type Metrics struct{}

// New returns the metrics hook.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RunStarted() {
	activeRuns.Inc()
}

func (m *Metrics) RunFinished(cancelled bool) {
	activeRuns.Dec()
	result := "completed"
	if cancelled {
		result = "cancelled"
	}
	runsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) AttemptObserved(status ingest.UploadStatus, d time.Duration) {
	uploadAttemptsTotal.WithLabelValues(string(status)).Inc()
	uploadAttemptDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the response code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware instruments HTTP requests with count and latency metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.code)).Inc()
		httpRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
