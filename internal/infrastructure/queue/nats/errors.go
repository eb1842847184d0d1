package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/resilience"
)

const publishOperation = "nats.publish"

// Broker-side conditions worth retrying: the connection is reconnecting or
// the server did not answer in time.
var transientPublishErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

// Errors caused by the message itself. Retrying cannot help and they say
// nothing about broker health, so they stay out of the breaker.
var messagePublishErrors = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
	nats.ErrInvalidMsg,
}

func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isAny(err, transientPublishErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isAny(err, messagePublishErrors):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func publishError(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyPublishError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, publishOperation, err)
	}
	return err
}
