// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchBytesTotal            prometheus.Counter
	fetchDurationSeconds       *prometheus.HistogramVec
	blockedTotal               *prometheus.CounterVec
	backoffSeconds             *prometheus.HistogramVec
	rateLimitDelaySeconds      prometheus.Histogram
	checkpointSavesTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; the Observe helpers call
// it lazily.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_fetch_attempts_total",
				Help: "Fetch attempts, labeled by outcome kind and status code.",
			},
			[]string{"outcome", "code"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "directory_fetch_bytes_total",
				Help: "Total response bytes received.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "directory_fetch_duration_seconds",
				Help:    "Duration of whole fetches including retries, labeled by final outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 180},
			},
			[]string{"outcome"},
		)

		blockedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_blocked_total",
				Help: "Blocked responses, labeled by reason.",
			},
			[]string{"reason"},
		)

		backoffSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "directory_backoff_seconds",
				Help:    "Retry waits taken, labeled by cause.",
				Buckets: []float64{1, 5, 10, 30, 60, 90, 120},
			},
			[]string{"cause"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "directory_rate_limit_delay_seconds",
				Help:    "Histogram of client-side rate limiter waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		checkpointSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_checkpoint_saves_total",
				Help: "Checkpoint writes, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAttempt counts one fetch attempt.
func ObserveAttempt(outcome string, status int, bytesFetched int) {
	Init()
	fetchAttemptsTotal.WithLabelValues(outcome, strconv.Itoa(status)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveFetch records the duration of a completed fetch.
func ObserveFetch(outcome string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveBlocked counts a blocked response.
func ObserveBlocked(reason string) {
	Init()
	blockedTotal.WithLabelValues(reason).Inc()
}

// ObserveBackoff records a retry wait.
func ObserveBackoff(cause string, d time.Duration) {
	Init()
	backoffSeconds.WithLabelValues(cause).Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveCheckpoint counts a checkpoint write.
func ObserveCheckpoint(ok bool) {
	Init()
	result := "ok"
	if !ok {
		result = "error"
	}
	checkpointSavesTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
