package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRunCountsFallbacks(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveRun("genqr", "completed", 4, 1, 2*time.Second)
	m.ObserveRun("genqr", "completed", 2, 0, time.Second)

	if got := testutil.ToFloat64(m.reformulationsTotal.WithLabelValues("api", "genqr", "completed")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.fallbacksTotal.WithLabelValues("api", "genqr")); got != 1 {
		t.Fatalf("expected 1 fallback, got %v", got)
	}
	if got := testutil.ToFloat64(m.queriesTotal.WithLabelValues("api", "genqr")); got != 6 {
		t.Fatalf("expected 6 queries, got %v", got)
	}
}

func TestObserveLLMCallDefaultsBackend(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.ObserveLLMCall("", "ok")
	if got := testutil.ToFloat64(m.llmCallsTotal.WithLabelValues("worker", "unknown", "ok")); got != 1 {
		t.Fatalf("expected 1 call, got %v", got)
	}
}

func TestMiddlewareNormalizesRunPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	h := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/runs/abc", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/runs/def", nil))

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/runs/{run_id}", "404")); got != 2 {
		t.Fatalf("expected 2 requests under the normalized path, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "qr_http_requests_total") {
		t.Fatalf("expected exported request metric")
	}
}

func TestWorkerFinishRunLabelsOutcome(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartRun()
	m.FinishRun("mugi", time.Second, errors.New("boom"))
	m.StartRun()
	m.FinishRun("mugi", time.Minute, fmt.Errorf("run: %w", context.DeadlineExceeded))
	m.StartRun()
	m.FinishRun("", time.Second, nil)
	m.ObserveQueueLag(-time.Second)
	m.ObserveRejected("malformed")

	checks := []struct {
		method, status string
	}{
		{"mugi", "failed"},
		{"mugi", "timeout"},
		{"unknown", "completed"},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(m.runsTotal.WithLabelValues(c.method, c.status)); got != 1 {
			t.Fatalf("expected 1 %s/%s run, got %v", c.method, c.status, got)
		}
	}
	if got := testutil.ToFloat64(m.runInFlight); got != 0 {
		t.Fatalf("expected no runs in flight, got %v", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("malformed")); got != 1 {
		t.Fatalf("expected 1 rejected message, got %v", got)
	}
}

func TestNormalizePathBoundsLabels(t *testing.T) {
	cases := map[string]string{
		"/v1/reformulate":   "/v1/reformulate",
		"/v1/runs":          "/v1/runs",
		"/v1/runs/run-42":   "/v1/runs/{run_id}",
		"/v1/runs/":         "other",
		"/wp-login.php":     "other",
		"/v1/methods/extra": "other",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
