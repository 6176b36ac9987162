package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/core/ports"
)

type RetrievalOptions struct {
	Timeout    time.Duration
	Classifier ClassifierOptions
	Retriever  RetrieverOptions
	Ranking    RankingOptions
	Formatter  FormatterOptions
}

func (o RetrievalOptions) normalize() RetrievalOptions {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	o.Classifier = o.Classifier.normalize()
	o.Retriever = o.Retriever.normalize()
	o.Ranking = o.Ranking.normalize()
	o.Formatter = o.Formatter.normalize()
	return o
}

// RetrievalUseCase wires classification, retrieval, aggregation, ranking and
// context formatting into one request-scoped pipeline.
type RetrievalUseCase struct {
	classifier *QueryClassifier
	retriever  *MultiStrategyRetriever
	opts       RetrievalOptions
	logger     *slog.Logger
}

func NewRetrievalUseCase(
	store ports.ChunkStore,
	embedder ports.Embedder,
	analyzer ports.QueryAnalyzer,
	opts RetrievalOptions,
	logger *slog.Logger,
) *RetrievalUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.normalize()
	return &RetrievalUseCase{
		classifier: NewQueryClassifier(analyzer, opts.Classifier, logger),
		retriever:  NewMultiStrategyRetriever(store, embedder, opts.Retriever, logger),
		opts:       opts,
		logger:     logger,
	}
}

func (uc *RetrievalUseCase) Retrieve(ctx context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, domain.WrapError(domain.ErrMalformedQuery, "retrieve", fmt.Errorf("query text is required"))
	}

	retrieveCtx, cancel := context.WithTimeout(ctx, uc.opts.Timeout)
	defer cancel()

	cls := uc.classifier.Classify(retrieveCtx, text, query.History, query.Page)
	result := &domain.RetrievalResult{
		Documents:      []domain.LogicalDocument{},
		Strategy:       cls.Type,
		Classification: cls,
		Page:           cls.Page,
	}

	if !cls.NeedsRetrieval {
		result.Context = formatContext(domain.Page{Number: 1}, cls.Type, uc.opts.Formatter)
		return result, nil
	}

	run, err := uc.retriever.Retrieve(retrieveCtx, cls, text)
	result.Strategies = run.Executed
	result.FailedStrategies = run.Failed
	if err != nil {
		return result, err
	}

	docs := aggregateCandidates(run.Candidates, cls.Filter)
	rankDocuments(docs, cls.Type, uc.opts.Ranking)
	page := paginate(docs, cls, uc.opts.Ranking)

	result.Documents = page.Documents
	result.TotalAvailable = page.Total
	result.Page = page.Number
	result.HasMore = page.HasMore
	result.Remaining = page.Remaining
	result.Warning = page.Warning
	result.Context = formatContext(page, cls.Type, uc.opts.Formatter)

	uc.logger.Debug("retrieval_completed",
		"query_type", string(cls.Type),
		"confidence", cls.Confidence,
		"filter", string(cls.Filter),
		"candidates", len(run.Candidates),
		"documents", len(page.Documents),
		"total", page.Total,
		"failed_strategies", len(run.Failed),
	)
	return result, nil
}
