package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inboxowl_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// Emails categorized, by how the category was chosen
	CategorizationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxowl_categorization_total",
			Help: "Total number of emails categorized",
		},
		[]string{"source"}, // source: rule, keyword, default
	)

	// Analyses served, by origin
	AnalysisCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxowl_analysis_total",
			Help: "Total number of spam analyses served",
		},
		[]string{"source"}, // source: cache, ai, heuristic, empty
	)

	// Generative model call latency in milliseconds
	GeneratorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inboxowl_generator_latency_ms",
			Help:    "Generative model call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10),
		},
		[]string{"operation", "status"},
	)

	// Messages ingested from the mail provider
	EmailSyncedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxowl_email_synced_total",
			Help: "Total number of emails ingested from the mail provider",
		},
		[]string{"status"}, // status: success, failed
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementCategorization(source string) {
	CategorizationCount.WithLabelValues(source).Inc()
}

func IncrementAnalysis(source string) {
	AnalysisCount.WithLabelValues(source).Inc()
}

func RecordGeneratorLatency(operation, status string, duration time.Duration) {
	GeneratorLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

func IncrementEmailSynced(status string) {
	EmailSyncedCount.WithLabelValues(status).Inc()
}
