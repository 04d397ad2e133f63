// Package llmhttp holds the HTTP plumbing shared by the chat backends: JSON
// transport, status errors, resilience classification and the mapping onto
// domain generation error kinds.
package llmhttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/resilience"
)

type StatusError struct {
	Backend    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e == nil {
		return "llm status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Backend, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Backend, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// Classify tells the resilience executor which failures are worth another
// attempt and which count against the circuit breaker.
func Classify(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	if domain.IsKind(err, domain.ErrMalformedResponse) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
				RetryAfter:    statusErr.RetryAfter,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// DomainError maps a transport failure onto the generation error kinds
// methods understand. Errors that fit no kind are returned unchanged.
func DomainError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsRecoverableGeneration(err) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTimeout, operation, err)
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrRateLimited, operation, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return domain.WrapError(domain.ErrTimeout, operation, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.WrapError(domain.ErrUnauthorized, operation, err)
		}
		if isServerFault(statusErr.StatusCode) {
			return domain.WrapError(domain.ErrTemporary, operation, err)
		}
		// Remaining 4xx are request or configuration faults; retrying or
		// falling back per query would only hide them.
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.WrapError(domain.ErrTimeout, operation, err)
		}
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

// StatusLabel is the metrics label for a call outcome.
func StatusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsKind(err, domain.ErrRateLimited):
		return "rate_limited"
	case domain.IsKind(err, domain.ErrTimeout):
		return "timeout"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporary"
	case domain.IsKind(err, domain.ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return isServerFault(statusCode)
	}
}

// isServerFault covers 5xx responses, including vendor codes such as 529
// (overloaded), except the ones that will not change on retry.
func isServerFault(statusCode int) bool {
	if statusCode < 500 || statusCode > 599 {
		return false
	}
	switch statusCode {
	case http.StatusNotImplemented, http.StatusHTTPVersionNotSupported:
		return false
	default:
		return true
	}
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as
// an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}
