package resilience

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestExecuteHonoursPerCallAttemptBudget(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     1 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "chat", func(context.Context) error {
		attempts++
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}, WithMaxAttempts(2))
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteWaitsForRateLimiter(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:   1,
		BreakerEnabled:     false,
		RateLimitPerSecond: 20,
		RateLimitBurst:     1,
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := exec.Execute(context.Background(), "chat", func(context.Context) error { return nil }, nil); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	// Burst 1 at 20/s: the second and third calls each wait ~50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected limiter to pace calls, elapsed %s", elapsed)
	}
}

func TestExecuteRateLimiterRespectsCancellation(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:   1,
		BreakerEnabled:     false,
		RateLimitPerSecond: 0.001,
		RateLimitBurst:     1,
	})
	_ = exec.Execute(context.Background(), "chat", func(context.Context) error { return nil }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	called := false
	err := exec.Execute(ctx, "chat", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if err == nil || called {
		t.Fatalf("expected limiter wait to fail without calling the operation, err=%v called=%v", err, called)
	}
}

func TestNormalizeFillsDefaultsAndClamps(t *testing.T) {
	cfg := Config{
		RetryInitialBackoff: 2 * time.Second,
		RetryMaxBackoff:     time.Second,
		BreakerFailureRatio: 3,
		RateLimitPerSecond:  5,
	}.normalize()

	def := DefaultConfig()
	if cfg.RetryMaxAttempts != def.RetryMaxAttempts {
		t.Fatalf("expected default attempts, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryMaxBackoff != 2*time.Second {
		t.Fatalf("max backoff must not be below initial backoff, got %v", cfg.RetryMaxBackoff)
	}
	if cfg.BreakerFailureRatio != def.BreakerFailureRatio {
		t.Fatalf("expected ratio reset, got %v", cfg.BreakerFailureRatio)
	}
	if cfg.RateLimitBurst != 1 {
		t.Fatalf("expected burst 1 when rate limiting, got %d", cfg.RateLimitBurst)
	}

	if got := (Config{RateLimitPerSecond: -1}).normalize().RateLimitPerSecond; got != 0 {
		t.Fatalf("negative rate must disable limiter, got %v", got)
	}
}

func TestLLMConfigBacksOffLongerThanDefault(t *testing.T) {
	llm, def := LLMConfig(), DefaultConfig()
	if llm.RetryMaxAttempts != DefaultRetryAttempts {
		t.Fatalf("unexpected attempts %d", llm.RetryMaxAttempts)
	}
	if llm.RetryMaxBackoff <= def.RetryMaxBackoff || llm.BreakerOpenTimeout <= def.BreakerOpenTimeout {
		t.Fatalf("llm policy should wait longer: %+v", llm)
	}
}

func TestWaitBeforeGrowsAndHonoursServerHint(t *testing.T) {
	exec := NewExecutor(Config{
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     time.Second,
		RetryMultiplier:     2,
	})

	cases := []struct {
		attempt int
		hint    time.Duration
		want    time.Duration
	}{
		{attempt: 2, want: 100 * time.Millisecond},
		{attempt: 3, want: 200 * time.Millisecond},
		{attempt: 6, want: time.Second},
		{attempt: 2, hint: 300 * time.Millisecond, want: 300 * time.Millisecond},
		{attempt: 3, hint: 50 * time.Millisecond, want: 200 * time.Millisecond},
		{attempt: 2, hint: time.Minute, want: time.Second},
	}
	for _, tc := range cases {
		if got := exec.waitBefore(tc.attempt, tc.hint); got != tc.want {
			t.Fatalf("attempt %d hint %v: expected %v, got %v", tc.attempt, tc.hint, tc.want, got)
		}
	}
}

func TestExecuteLogsRetriesToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	}, WithLogger(logger))

	errBusy := errors.New("busy")
	err := exec.Execute(context.Background(), "openai.chat", func(context.Context) error {
		return errBusy
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true, RetryAfter: time.Millisecond}
	})
	if !errors.Is(err, errBusy) {
		t.Fatalf("expected last error after budget is spent, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"msg":"retry_attempt"`) || !strings.Contains(out, `"server_hint":true`) {
		t.Fatalf("expected retry_attempt record with server hint, got %s", out)
	}
}
