// Package metrics provides Prometheus metrics for newsai.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts handled requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsai",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsai",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ReadMarksTotal counts successful mark-read operations.
	ReadMarksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsai",
			Name:      "read_marks_total",
			Help:      "Total number of articles marked as read",
		},
	)

	// AuthAttemptsTotal counts sign-in and registration attempts by outcome.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsai",
			Name:      "auth_attempts_total",
			Help:      "Total number of sign-in and registration attempts",
		},
		[]string{"action", "outcome"},
	)

	// IngestArticlesTotal counts ingestion outcomes per entry.
	IngestArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsai",
			Name:      "ingest_articles_total",
			Help:      "Feed entries processed by ingestion, by outcome",
		},
		[]string{"outcome"},
	)

	// LLMTokensTotal counts tokens spent on curation.
	LLMTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsai",
			Name:      "llm_tokens_total",
			Help:      "Total number of LLM tokens spent on curation",
		},
	)

	// IngestRunDuration measures full ingestion runs.
	IngestRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "newsai",
			Name:      "ingest_run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)
)

// RecordRequest records one handled HTTP request.
func RecordRequest(method, route string, status int, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordAuth records an auth attempt. outcome is "ok" or an error kind.
func RecordAuth(action, outcome string) {
	AuthAttemptsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordIngest adds n entries with the given outcome.
func RecordIngest(outcome string, n int) {
	if n > 0 {
		IngestArticlesTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordTokens adds n curation tokens.
func RecordTokens(n int64) {
	if n > 0 {
		LLMTokensTotal.Add(float64(n))
	}
}
