package nats

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/infrastructure/resilience"
)

// classifyPublishError decides retry and breaker accounting for one publish.
// Only connection-level failures count against the breaker; a rejected
// message or a draining connection says nothing about server health.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.Is(err, nats.ErrMaxPayload),
		errors.Is(err, nats.ErrBadSubject),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrConnectionDraining):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrReconnectBufExceeded):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// markTemporary tags publish failures that may clear on reconnect.
func markTemporary(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyPublishError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "publish retrieval event", err)
	}
	return err
}

// asyncErrorHandler logs errors the client reports outside a call, such as
// a subscription falling behind and dropping events.
func asyncErrorHandler(logger *slog.Logger) nats.ErrHandler {
	return func(_ *nats.Conn, sub *nats.Subscription, err error) {
		attrs := []any{"error", err}
		if sub != nil {
			attrs = append(attrs, "subject", sub.Subject)
			if dropped, derr := sub.Dropped(); derr == nil {
				attrs = append(attrs, "dropped", dropped)
			}
		}
		if errors.Is(err, nats.ErrSlowConsumer) {
			logger.Warn("nats_slow_consumer", attrs...)
			return
		}
		logger.Error("nats_async_error", attrs...)
	}
}
