package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/library-rag/internal/bootstrap"
	"github.com/kirillkom/library-rag/internal/config"
	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/observability/logging"
	"github.com/kirillkom/library-rag/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("library-rag-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus, err := bootstrap.NewEventConsumer(cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = bus.SubscribeRetrievals(ctx, func(_ context.Context, event domain.RetrievalEvent) error {
		workerMetrics.StartEvent()
		defer workerMetrics.FinishEvent()

		workerMetrics.ObserveEvent(service, observation(event), time.Now())
		logger.Debug("retrieval_event_observed",
			"event_id", event.ID,
			"query_type", string(event.QueryType),
			"documents_found", event.DocumentsFound,
		)
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func observation(event domain.RetrievalEvent) metrics.EventObservation {
	failed := make([]string, 0, len(event.FailedStrategies))
	for _, s := range event.FailedStrategies {
		failed = append(failed, string(s))
	}
	return metrics.EventObservation{
		QueryType:        string(event.QueryType),
		Filter:           event.Filter,
		Strategies:       len(event.Strategies),
		FailedStrategies: failed,
		DocumentsFound:   event.DocumentsFound,
		Duration:         time.Duration(event.DurationMS * float64(time.Millisecond)),
		CreatedAt:        event.CreatedAt,
	}
}
