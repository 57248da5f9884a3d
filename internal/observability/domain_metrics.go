package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetlens_conversions_total",
			Help: "Question-to-query conversion attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	modelRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "budgetlens_model_request_duration_seconds",
			Help:    "Latency of text generation requests by provider and status.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"provider", "status"},
	)
	contextCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetlens_context_cache_total",
			Help: "Grounding context cache lookups by result.",
		},
		[]string{"result"},
	)
	parsedResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetlens_parsed_responses_total",
			Help: "Model responses by the parse path that recovered the query.",
		},
		[]string{"kind"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetlens_query_executions_total",
			Help: "Query executions by outcome.",
		},
		[]string{"outcome"},
	)
	objectStoreRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetlens_object_store_requests_total",
			Help: "Dataset object store requests by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	queryDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "budgetlens_query_duration_ms",
			Help:    "Query execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		conversionsTotal,
		modelRequestDurationSeconds,
		contextCacheTotal,
		parsedResponsesTotal,
		queryExecutionsTotal,
		queryDurationMs,
		objectStoreRequestsTotal,
	)
}

func ObserveConversion(strategy, outcome string) {
	conversionsTotal.WithLabelValues(strategy, outcome).Inc()
}

func ObserveModelRequest(provider, status string, elapsed time.Duration) {
	modelRequestDurationSeconds.WithLabelValues(provider, status).Observe(elapsed.Seconds())
}

func ObserveContextCache(hit bool) {
	if hit {
		contextCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	contextCacheTotal.WithLabelValues("miss").Inc()
}

func ObserveParsedResponse(kind string) {
	parsedResponsesTotal.WithLabelValues(kind).Inc()
}

func ObserveQueryExecution(outcome string, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(outcome).Inc()
	queryDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveObjectStore(operation, outcome string) {
	objectStoreRequestsTotal.WithLabelValues(operation, outcome).Inc()
}
