package observability

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UnmatchedRoute labels requests for paths the API does not serve, so
// scanners cannot grow the label space.
const UnmatchedRoute = "unmatched"

var apiRoutes = map[string]struct{}{
	"/v1/health":          {},
	"/v1/ready":           {},
	"/v1/metrics":         {},
	"/v1/schema":          {},
	"/v1/query":           {},
	"/v1/query/translate": {},
	"/v1/ask":             {},
	"/v1/history":         {},
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetlens_http_requests_total",
			Help: "HTTP requests by method, API route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	// Ask requests include a model round trip, hence the long tail.
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "budgetlens_http_request_duration_seconds",
			Help:    "HTTP request latency by API route.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"method", "route", "status"},
	)

	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "budgetlens_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpRequestsInFlight)
}

// RouteLabel maps a request path to the API route it is served by.
// History lookups collapse onto their pattern.
func RouteLabel(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if _, ok := apiRoutes[path]; ok {
		return path
	}
	if id, ok := strings.CutPrefix(path, "/v1/history/"); ok && id != "" && !strings.Contains(id, "/") {
		return "/v1/history/{id}"
	}
	return UnmatchedRoute
}

func ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	route := RouteLabel(path)
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}
