package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/resilience"
)

// transientNATSErrors clear up once the connection recovers.
var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrSlowConsumer,
}

func isTransientNATSError(err error) bool {
	for _, target := range transientNATSErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrBadSubject):
		// The payload or subject will not change between attempts.
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isTransientNATSError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// publishError maps a failed publish onto the domain kinds the HTTP layer
// understands. op names the message being sent.
func publishError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case errors.Is(err, nats.ErrMaxPayload):
		return domain.WrapError(domain.ErrInvalidInput, op, err)
	case classifyNATSError(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, op, err)
	default:
		return err
	}
}
