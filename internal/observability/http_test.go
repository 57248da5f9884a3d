package observability

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestTraceIDContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}

func TestMetricsMiddlewareCountsRequestsByRoute(t *testing.T) {
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := testutil.ToFloat64(httpRequestsInFlight); got < 1 {
			t.Fatalf("in-flight gauge = %v during request", got)
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	history := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/history/{id}", "418")
	unmatched := httpRequestsTotal.WithLabelValues(http.MethodGet, UnmatchedRoute, "418")
	beforeHistory := testutil.ToFloat64(history)
	beforeUnmatched := testutil.ToFloat64(unmatched)

	for _, path := range []string{"/v1/history/6f1c", "/v1/history/91ab/", "/wp-admin", "/v1/history/a/b"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(history) - beforeHistory; got != 2 {
		t.Fatalf("history route delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(unmatched) - beforeUnmatched; got != 2 {
		t.Fatalf("unmatched route delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(httpRequestsInFlight); got != 0 {
		t.Fatalf("in-flight gauge = %v after requests", got)
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/v1/ask":             "/v1/ask",
		"/v1/query/translate": "/v1/query/translate",
		"/v1/schema/":         "/v1/schema",
		"/v1/history":         "/v1/history",
		"/v1/history/":        "/v1/history",
		"/v1/history/abc":     "/v1/history/{id}",
		"/":                   UnmatchedRoute,
		"/v2/ask":             UnmatchedRoute,
	}
	for path, want := range tests {
		if got := RouteLabel(path); got != want {
			t.Fatalf("RouteLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestObserveContextCacheSplitsHitsAndMisses(t *testing.T) {
	hits := testutil.ToFloat64(contextCacheTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(contextCacheTotal.WithLabelValues("miss"))
	ObserveContextCache(true)
	ObserveContextCache(false)
	ObserveContextCache(false)
	if got := testutil.ToFloat64(contextCacheTotal.WithLabelValues("hit")) - hits; got != 1 {
		t.Fatalf("hit delta = %v", got)
	}
	if got := testutil.ToFloat64(contextCacheTotal.WithLabelValues("miss")) - misses; got != 2 {
		t.Fatalf("miss delta = %v", got)
	}
}

func TestLoggerOrDiscardHandlesNil(t *testing.T) {
	if LoggerOrDiscard(nil) == nil {
		t.Fatal("expected non-nil logger")
	}
}
