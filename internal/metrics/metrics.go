// Package metrics exposes Prometheus collectors for the audit service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	auditPagesTotal             *prometheus.CounterVec
	auditLinkProbesTotal        *prometheus.CounterVec
	auditCheckResultsTotal      *prometheus.CounterVec
	auditCheckerFailuresTotal   *prometheus.CounterVec
	auditAIRequestsTotal        *prometheus.CounterVec
	auditRunsTotal              *prometheus.CounterVec
	auditRunDurationSeconds     prometheus.Histogram
	auditActiveWorkers          prometheus.Gauge
	auditRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		auditPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_pages_total",
				Help: "Total number of page fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		auditLinkProbesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_link_probes_total",
				Help: "Total number of link validations, labeled by scope and result.",
			},
			[]string{"scope", "result"},
		)

		auditCheckResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_check_results_total",
				Help: "Total number of check results, labeled by check and status.",
			},
			[]string{"check", "status"},
		)

		auditCheckerFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_checker_failures_total",
				Help: "Total number of checker executions that failed or panicked.",
			},
			[]string{"checker"},
		)

		auditAIRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_ai_requests_total",
				Help: "Total number of text analyzer calls, labeled by result.",
			},
			[]string{"result"},
		)

		auditRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_runs_total",
				Help: "Total number of runs processed, labeled by status.",
			},
			[]string{"status"},
		)

		auditRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "audit_run_duration_seconds",
				Help:    "Wall time per completed run.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		auditActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "audit_active_workers",
				Help: "Number of workers currently processing a run.",
			},
		)

		auditRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audit_rate_limit_delays_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one page fetch.
func ObserveFetch(site string, outcome string) {
	Init()
	auditPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveLinkProbe counts one link validation; result is valid, broken or cached.
func ObserveLinkProbe(scope string, result string) {
	Init()
	auditLinkProbesTotal.WithLabelValues(scope, result).Inc()
}

// ObserveCheckResult counts one emitted check result.
func ObserveCheckResult(check string, status string) {
	Init()
	auditCheckResultsTotal.WithLabelValues(check, status).Inc()
}

// ObserveCheckerFailure counts a checker that errored or panicked.
func ObserveCheckerFailure(checker string) {
	Init()
	auditCheckerFailuresTotal.WithLabelValues(checker).Inc()
}

// ObserveAIRequest counts one text analyzer call.
func ObserveAIRequest(result string) {
	Init()
	auditAIRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveRun counts a finished run and records its duration.
func ObserveRun(status string, duration time.Duration) {
	Init()
	auditRunsTotal.WithLabelValues(status).Inc()
	auditRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	auditActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	auditActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	auditRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
