package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrorClassification is the verdict a collaborator gives on one failed
// attempt. RetryAfter carries a server hint such as an HTTP Retry-After
// header; it replaces the computed backoff when it is longer.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
	RetryAfter    time.Duration
}

type ErrorClassifier func(err error) ErrorClassification

// Executor wraps LLM and broker calls with bounded retries, one circuit
// breaker per operation name and an optional limiter shared by all
// operations.
type Executor struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

type ExecutorOption func(*Executor)

func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

type callOptions struct {
	maxAttempts int
}

type CallOption func(*callOptions)

// WithMaxAttempts overrides the attempt budget for one call, which is how a
// method config's retries reach the executor. Values below 1 are ignored.
func WithMaxAttempts(n int) CallOption {
	return func(o *callOptions) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

func NewExecutor(cfg Config, opts ...ExecutorOption) *Executor {
	cfg = cfg.normalize()
	e := &Executor{
		cfg:      cfg,
		logger:   slog.Default(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	if cfg.RateLimitPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn until it succeeds, the classifier refuses a retry or the
// attempt budget is spent. The whole retry loop counts as one breaker call.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
	opts ...CallOption,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = recordAll
	}
	call := callOptions{maxAttempts: e.cfg.RetryMaxAttempts}
	for _, opt := range opts {
		opt(&call)
	}

	run := func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, call.maxAttempts, fn, classifier)
	}
	if !e.cfg.BreakerEnabled {
		_, err := run()
		return err
	}
	_, err := e.breaker(op, classifier).Execute(run)
	return err
}

func (e *Executor) retry(
	ctx context.Context,
	op string,
	maxAttempts int,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter wait: %w", err)
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		class := classifier(lastErr)
		if !class.Retryable || attempt == maxAttempts {
			return lastErr
		}

		wait := e.waitBefore(attempt+1, class.RetryAfter)
		e.logger.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"server_hint", class.RetryAfter > 0,
			"error", lastErr,
		)
		if !sleep(ctx, wait) {
			return lastErr
		}
	}
	return lastErr
}

// waitBefore is the pause ahead of the given attempt (2 is the first retry):
// exponential in the attempt number, raised to the server hint, capped at
// RetryMaxBackoff.
func (e *Executor) waitBefore(attempt int, hint time.Duration) time.Duration {
	exp := float64(e.cfg.RetryInitialBackoff) * math.Pow(e.cfg.RetryMultiplier, float64(attempt-2))
	wait := time.Duration(math.Min(exp, float64(e.cfg.RetryMaxBackoff)))
	if hint > wait {
		wait = min(hint, e.cfg.RetryMaxBackoff)
	}
	return wait
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) breaker(op string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[op]; ok {
		return b
	}

	cfg := e.cfg
	b := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: cfg.BreakerHalfOpenMaxCalls,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= cfg.BreakerMinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[op] = b
	return b
}

// IsCircuitOpen reports a call rejected without reaching the collaborator.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func recordAll(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
