package domain

import (
	"context"
	"errors"
	"fmt"
)

// Configuration errors. Never retried, never recovered locally.
var (
	ErrUnknownMethod    = errors.New("unknown method")
	ErrDuplicateMethod  = errors.New("method already registered")
	ErrUnknownPrompt    = errors.New("unknown prompt")
	ErrMissingVariable  = errors.New("missing template variable")
	ErrInvalidTemplate  = errors.New("invalid template")
	ErrMissingExamples  = errors.New("few-shot example source not configured")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRunNotFound      = errors.New("run not found")
	ErrSearchNotEnabled = errors.New("search backend not configured")
	ErrQueueNotEnabled  = errors.New("run queue not configured")
	ErrStoreNotEnabled  = errors.New("result store not configured")
)

// Generation errors raised by the chat collaborator.
var (
	ErrTemporary         = errors.New("temporary failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrTimeout           = errors.New("generation timeout")
	ErrMalformedResponse = errors.New("malformed model response")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsRecoverableGeneration reports whether err is one of the well-defined
// generation failure kinds a method may fall back on. A deadline hit counts as
// a timeout; cancellation does not.
func IsRecoverableGeneration(err error) bool {
	return IsKind(err, ErrTemporary) ||
		IsKind(err, context.DeadlineExceeded) ||
		IsKind(err, ErrRateLimited) ||
		IsKind(err, ErrTimeout) ||
		IsKind(err, ErrMalformedResponse)
}
