package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/library-rag/internal/config"
	"github.com/kirillkom/library-rag/internal/core/ports"
	"github.com/kirillkom/library-rag/internal/core/usecase"
	"github.com/kirillkom/library-rag/internal/infrastructure/cache"
	"github.com/kirillkom/library-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/library-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/library-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/library-rag/internal/infrastructure/resilience"
)

type Options struct {
	Logger *slog.Logger
	// BreakerObserver receives circuit breaker state changes.
	BreakerObserver resilience.StateObserver
}

// App holds the process-wide clients. They are built once and shared by
// every request.
type App struct {
	Config config.Config

	Store  *postgres.ChunkRepository
	Events *nats.EventBus
	ChatUC ports.ChatService

	closeFn func()
}

// New builds the API dependency graph. The event bus is optional and is
// skipped when NATS is disabled.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	executor := newExecutor(cfg, opts.BreakerObserver)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewChunkRepository(db, postgres.Options{
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ResilienceExecutor:  executor,
	})
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:            time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		ResilienceExecutor: executor,
	})
	embedder := cache.NewCachedEmbedder(
		ollama.NewEmbedder(ollamaClient),
		time.Duration(cfg.EmbeddingCacheTTLSeconds)*time.Second,
	)
	completer := ollama.NewCompleter(ollamaClient)

	var analyzer ports.QueryAnalyzer
	if cfg.QueryAnalysisEnabled {
		analyzer = ollama.NewQueryAnalyzer(ollamaClient)
	}

	var (
		bus    *nats.EventBus
		events ports.RetrievalEventPublisher
	)
	if cfg.NATSEnabled {
		bus, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		events = bus
	}

	retrievalUC := usecase.NewRetrievalUseCase(store, embedder, analyzer, RetrievalOptions(cfg.Retrieval), logger)
	chatUC := usecase.NewChatUseCase(retrievalUC, completer, events, usecase.ChatOptions{
		HistoryTurns: cfg.ChatHistoryTurns,
		MaxTokens:    cfg.ChatMaxTokens,
		Model:        cfg.OllamaGenModel,
	}, logger)

	logger.Info("bootstrap_completed",
		"query_analysis", analyzer != nil,
		"events", bus != nil,
		"embedding_dimensions", cfg.EmbeddingDimensions,
	)

	return &App{
		Config: cfg,
		Store:  store,
		Events: bus,
		ChatUC: chatUC,
		closeFn: func() {
			if bus != nil {
				bus.Close()
			}
			_ = closeDB(db)
		},
	}, nil
}

// NewEventConsumer connects only the event bus, for processes that do not
// serve retrieval.
func NewEventConsumer(cfg config.Config, logger *slog.Logger) (*nats.EventBus, error) {
	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup: cfg.NATSQueueGroup,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init event bus: %w", err)
	}
	return bus, nil
}

// RetrievalOptions maps tuning config onto the pipeline options.
func RetrievalOptions(t config.RetrievalTuning) usecase.RetrievalOptions {
	return usecase.RetrievalOptions{
		Timeout: time.Duration(t.TimeoutSeconds) * time.Second,
		Classifier: usecase.ClassifierOptions{
			AnalysisTimeout: time.Duration(t.AnalysisTimeoutMS) * time.Millisecond,
		},
		Retriever: usecase.RetrieverOptions{
			SemanticThreshold:   t.SemanticThreshold,
			MaxSemanticLimit:    t.MaxSemanticLimit,
			MetadataConcurrency: t.MetadataConcurrency,
			MetadataFieldLimit:  t.MetadataFieldLimit,
		},
		Ranking: usecase.RankingOptions{
			CatalogPageSize: t.CatalogPageSize,
			TopN:            t.TopN,
			Locale:          t.Locale,
		},
		Formatter: usecase.FormatterOptions{
			MaxChars:     t.ContextMaxChars,
			PreviewChars: t.PreviewChars,
		},
	}
}

func newExecutor(cfg config.Config, observer resilience.StateObserver) *resilience.Executor {
	rc := resiliencePolicy(cfg)
	if observer == nil {
		return resilience.NewExecutor(rc)
	}
	return resilience.NewExecutor(rc, resilience.WithStateObserver(observer))
}

// resiliencePolicy keeps retry backoff inside the retrieval deadline.
func resiliencePolicy(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceRetryMaxAttempts > 0 {
		rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	}
	return rc.WithinBudget(time.Duration(cfg.Retrieval.TimeoutSeconds) * time.Second)
}

func closeDB(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
