package llmhttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := map[string]time.Duration{
		"":     0,
		"7":    7 * time.Second,
		"-3":   0,
		"soon": 0,
		now.Add(30 * time.Second).Format(http.TimeFormat): 30 * time.Second,
		now.Add(-time.Minute).Format(http.TimeFormat):     0,
	}
	for in, want := range cases {
		if got := ParseRetryAfter(in, now); got != want {
			t.Fatalf("ParseRetryAfter(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestPostJSONRateLimitedCarriesHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out map[string]any
	err := NewDoer("openai", srv.URL, srv.Client()).PostJSON(context.Background(), "/v1/chat/completions", map[string]string{}, &out, "chat")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status error, got %v", err)
	}
	class := Classify(err)
	if !class.Retryable || class.RetryAfter != 2*time.Second {
		t.Fatalf("expected retryable with 2s hint, got %+v", class)
	}
	if !domain.IsKind(DomainError("openai chat", err), domain.ErrRateLimited) {
		t.Fatalf("expected rate limited kind")
	}
}

func TestPostJSONUndecodableBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	var out map[string]any
	err := NewDoer("ollama", srv.URL, srv.Client()).PostJSON(context.Background(), "/api/chat", map[string]string{}, &out, "chat")
	if !domain.IsKind(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
	if Classify(err).Retryable {
		t.Fatalf("malformed responses must not be retried")
	}
}

func TestDomainErrorAndStatusLabel(t *testing.T) {
	cases := []struct {
		err   error
		kind  error
		label string
	}{
		{err: &StatusError{StatusCode: http.StatusServiceUnavailable}, kind: domain.ErrTemporary, label: "temporary"},
		{err: &StatusError{StatusCode: http.StatusGatewayTimeout}, kind: domain.ErrTimeout, label: "timeout"},
		{err: &StatusError{StatusCode: http.StatusUnauthorized}, kind: domain.ErrUnauthorized, label: "error"},
		{err: context.DeadlineExceeded, kind: domain.ErrTimeout, label: "timeout"},
		{err: &StatusError{StatusCode: 529, Status: "529 Overloaded"}, kind: domain.ErrTemporary, label: "temporary"},
		{err: &StatusError{StatusCode: 520}, kind: domain.ErrTemporary, label: "temporary"},
	}
	for _, tc := range cases {
		got := DomainError("chat", tc.err)
		if !domain.IsKind(got, tc.kind) {
			t.Fatalf("%v: expected kind %v, got %v", tc.err, tc.kind, got)
		}
		if label := StatusLabel(got); label != tc.label {
			t.Fatalf("%v: expected label %q, got %q", tc.err, tc.label, label)
		}
	}
	if StatusLabel(nil) != "ok" || DomainError("chat", nil) != nil {
		t.Fatalf("nil error must map to ok")
	}
}

func TestServerFaultsAreRecoverableButClientFaultsAreNot(t *testing.T) {
	overloaded := &StatusError{StatusCode: 529}
	if !Classify(overloaded).Retryable {
		t.Fatalf("529 must be retried")
	}
	if !domain.IsRecoverableGeneration(DomainError("chat", overloaded)) {
		t.Fatalf("529 must allow per-query fallback")
	}

	for _, code := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusNotImplemented} {
		err := &StatusError{StatusCode: code}
		if Classify(err).Retryable {
			t.Fatalf("%d must not be retried", code)
		}
		if domain.IsRecoverableGeneration(DomainError("chat", err)) {
			t.Fatalf("%d must surface instead of falling back", code)
		}
	}
}
