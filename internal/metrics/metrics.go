// Package metrics exposes Prometheus collectors for the lottery crawler.
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
	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_fetch_attempts_total",
			Help: "Upstream fetch attempts, labeled by lottery code and outcome.",
		},
		[]string{"code", "outcome"},
	)

	fetchFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_fetch_fallback_total",
			Help: "Times the embedded fallback dataset was served, labeled by lottery code.",
		},
		[]string{"code"},
	)

	crawlRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_crawl_runs_total",
			Help: "Per-type crawl runs, labeled by lottery code and status.",
		},
		[]string{"code", "status"},
	)

	drawsSavedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_draws_saved_total",
			Help: "Draw results upserted, labeled by lottery code.",
		},
		[]string{"code"},
	)

	drawsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_draws_failed_total",
			Help: "Draw items that could not be normalized or saved, labeled by lottery code.",
		},
		[]string{"code"},
	)

	crawlErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_crawl_errors_total",
			Help: "Crawl errors recorded in the ledger, labeled by kind.",
		},
		[]string{"kind"},
	)

	cleanupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_cleanup_runs_total",
			Help: "Retention cleanup runs, labeled by status.",
		},
		[]string{"status"},
	)

	cleanupDeletedRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_cleanup_deleted_rows_total",
			Help: "Draw results removed by retention cleanup.",
		},
	)

	jobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_scheduler_job_runs_total",
			Help: "Scheduled job executions, labeled by job name.",
		},
		[]string{"job"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_api_rate_limited_total",
			Help: "API requests rejected by the per-client rate limiter.",
		},
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
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt counts one upstream request attempt.
func ObserveFetchAttempt(code, outcome string) {
	fetchAttemptsTotal.WithLabelValues(code, outcome).Inc()
}

// ObserveFallback counts a fallback dataset being served.
func ObserveFallback(code string) {
	fetchFallbackTotal.WithLabelValues(code).Inc()
}

// ObserveCrawlRun counts a finished per-type run.
func ObserveCrawlRun(code, status string) {
	crawlRunsTotal.WithLabelValues(code, status).Inc()
}

// ObserveItems records saved and failed item counts of one run.
func ObserveItems(code string, saved, failed int) {
	if saved > 0 {
		drawsSavedTotal.WithLabelValues(code).Add(float64(saved))
	}
	if failed > 0 {
		drawsFailedTotal.WithLabelValues(code).Add(float64(failed))
	}
}

// ObserveCrawlError counts a ledger error entry.
func ObserveCrawlError(kind string) {
	crawlErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveCleanup records a retention run.
func ObserveCleanup(status string, deleted int64) {
	cleanupRunsTotal.WithLabelValues(status).Inc()
	if deleted > 0 {
		cleanupDeletedRowsTotal.Add(float64(deleted))
	}
}

// ObserveJob counts a scheduler job execution.
func ObserveJob(name string) {
	jobRunsTotal.WithLabelValues(name).Inc()
}

// ObserveRateLimited counts a throttled API request.
func ObserveRateLimited() {
	rateLimitedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
