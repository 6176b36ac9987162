package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/core/ports"
	"github.com/kirillkom/library-rag/internal/infrastructure/resilience"
)

// EventBus publishes and consumes retrieval events on one subject.
type EventBus struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*EventBus, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*EventBus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	group := options.QueueGroup
	if group == "" {
		group = "retrieval-analytics"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("library-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(asyncErrorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &EventBus{
		conn:     conn,
		subject:  subject,
		group:    group,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (b *EventBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *EventBus) PublishRetrieval(ctx context.Context, event domain.RetrievalEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := b.conn.Publish(b.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return markTemporary(err)
	}
	return nil
}

// SubscribeRetrievals blocks until ctx is done, handing each decoded event to
// handler. Undecodable messages are logged and skipped.
func (b *EventBus) SubscribeRetrievals(ctx context.Context, handler func(context.Context, domain.RetrievalEvent) error) error {
	sub, err := b.conn.QueueSubscribe(b.subject, b.group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		event, err := decodeEvent(msg.Data)
		if err != nil {
			b.logger.Warn("retrieval_event_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			b.logger.Error("retrieval_event_handler_failed", "event_id", event.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeEvent(event domain.RetrievalEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal retrieval event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.RetrievalEvent, error) {
	var event domain.RetrievalEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.RetrievalEvent{}, fmt.Errorf("unmarshal retrieval event: %w", err)
	}
	if event.ID == "" {
		return domain.RetrievalEvent{}, fmt.Errorf("retrieval event without id")
	}
	return event, nil
}

var _ ports.RetrievalEventPublisher = (*EventBus)(nil)
