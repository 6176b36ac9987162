package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/core/ports"
)

// Provisional scores for metadata hits, by field.
var fieldWeights = []struct {
	field     domain.ChunkField
	matchType domain.MatchType
	weight    float64
}{
	{domain.FieldTitle, domain.MatchTitle, 0.95},
	{domain.FieldAuthor, domain.MatchAuthor, 0.90},
	{domain.FieldTopic, domain.MatchTopic, 0.85},
	{domain.FieldGenre, domain.MatchGenre, 0.85},
	{domain.FieldTags, domain.MatchTags, 0.80},
	{domain.FieldDocType, domain.MatchDocType, 0.75},
}

const authorFullNameScore = 0.95

// errNothingToSearch marks a strategy that had no input for this query. It is
// neither executed nor failed.
var errNothingToSearch = errors.New("nothing to search")

// Semantic result caps per intent; catalog-adjacent intents favour recall.
var semanticLimits = map[domain.QueryType]int{
	domain.QueryDirectQuestion: 10,
	domain.QueryHybrid:         30,
	domain.QuerySpecificSearch: 50,
	domain.QueryRecommendation: 200,
	domain.QueryCatalogBrowse:  200,
}

type RetrieverOptions struct {
	SemanticThreshold   float64
	MaxSemanticLimit    int
	MetadataConcurrency int
	MetadataFieldLimit  int
}

func (o RetrieverOptions) normalize() RetrieverOptions {
	if o.SemanticThreshold < 0 || o.SemanticThreshold >= 1 {
		o.SemanticThreshold = 0.1
	}
	if o.MaxSemanticLimit <= 0 {
		o.MaxSemanticLimit = 200
	}
	if o.MetadataConcurrency <= 0 {
		o.MetadataConcurrency = 6
	}
	if o.MetadataFieldLimit <= 0 {
		o.MetadataFieldLimit = 25
	}
	return o
}

// StrategyPlan lists the strategies to run for one classification.
type StrategyPlan struct {
	Strategies    []domain.Strategy
	SemanticLimit int
}

func planStrategies(cls domain.Classification, opts RetrieverOptions) StrategyPlan {
	if !cls.NeedsRetrieval {
		return StrategyPlan{}
	}

	limit := semanticLimits[cls.Type]
	if limit <= 0 || limit > opts.MaxSemanticLimit {
		limit = opts.MaxSemanticLimit
	}

	switch cls.Type {
	case domain.QueryCatalogBrowse:
		return StrategyPlan{Strategies: []domain.Strategy{domain.StrategyCatalogScan}}
	case domain.QueryDirectQuestion:
		return StrategyPlan{Strategies: []domain.Strategy{domain.StrategySemantic}, SemanticLimit: limit}
	case domain.QueryRecommendation:
		return StrategyPlan{
			Strategies:    []domain.Strategy{domain.StrategySemantic, domain.StrategyMetadata},
			SemanticLimit: limit,
		}
	default:
		return StrategyPlan{
			Strategies:    []domain.Strategy{domain.StrategySemantic, domain.StrategyMetadata, domain.StrategyEntityName},
			SemanticLimit: limit,
		}
	}
}

// RetrievalRun is the raw outcome of executing a strategy plan.
type RetrievalRun struct {
	Candidates []domain.Candidate
	Executed   []domain.Strategy
	Failed     []domain.Strategy
}

// MultiStrategyRetriever runs retrieval strategies against the chunk store.
type MultiStrategyRetriever struct {
	store    ports.ChunkStore
	embedder ports.Embedder
	opts     RetrieverOptions
	logger   *slog.Logger
}

func NewMultiStrategyRetriever(
	store ports.ChunkStore,
	embedder ports.Embedder,
	opts RetrieverOptions,
	logger *slog.Logger,
) *MultiStrategyRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiStrategyRetriever{
		store:    store,
		embedder: embedder,
		opts:     opts.normalize(),
		logger:   logger,
	}
}

// Retrieve runs every planned strategy concurrently. A failing strategy
// contributes nothing; the call only fails when every strategy that actually
// searched failed. Strategies without input are skipped.
func (r *MultiStrategyRetriever) Retrieve(ctx context.Context, cls domain.Classification, query string) (RetrievalRun, error) {
	plan := planStrategies(cls, r.opts)
	if len(plan.Strategies) == 0 {
		return RetrievalRun{}, nil
	}

	results := make([][]domain.Candidate, len(plan.Strategies))
	errs := make([]error, len(plan.Strategies))

	var g errgroup.Group
	for i, strategy := range plan.Strategies {
		g.Go(func() error {
			results[i], errs[i] = r.runStrategy(ctx, strategy, cls, query, plan)
			return nil
		})
	}
	_ = g.Wait()

	var run RetrievalRun
	failedErrs := make([]error, 0, len(plan.Strategies))
	for i, strategy := range plan.Strategies {
		if errors.Is(errs[i], errNothingToSearch) {
			r.logger.Debug("strategy_skipped", "strategy", string(strategy), "query_type", string(cls.Type))
			continue
		}
		run.Executed = append(run.Executed, strategy)
		if errs[i] != nil {
			run.Failed = append(run.Failed, strategy)
			failedErrs = append(failedErrs, errs[i])
			r.logger.Warn("strategy_failed",
				"strategy", string(strategy),
				"query_type", string(cls.Type),
				"error", domain.WrapError(domain.ErrStrategyUnavailable, string(strategy), errs[i]),
			)
		}
		run.Candidates = append(run.Candidates, results[i]...)
	}

	if len(run.Executed) > 0 && len(run.Failed) == len(run.Executed) {
		return run, domain.WrapError(domain.ErrAllStrategiesFailed, "retrieve", errors.Join(failedErrs...))
	}
	return run, nil
}

func (r *MultiStrategyRetriever) runStrategy(
	ctx context.Context,
	strategy domain.Strategy,
	cls domain.Classification,
	query string,
	plan StrategyPlan,
) ([]domain.Candidate, error) {
	switch strategy {
	case domain.StrategySemantic:
		return r.semanticSearch(ctx, cls.SemanticQuery, plan.SemanticLimit)
	case domain.StrategyMetadata:
		terms := mergeUnique(searchTerms(query), topicTerms(cls.Topics))
		return r.metadataSearch(ctx, terms)
	case domain.StrategyEntityName:
		names := mergeUnique(candidateNames(query), multiWordEntities(cls.Entities))
		return r.entityNameSearch(ctx, names)
	case domain.StrategyCatalogScan:
		return r.catalogScan(ctx)
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

func (r *MultiStrategyRetriever) semanticSearch(ctx context.Context, text string, limit int) ([]domain.Candidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errNothingToSearch
	}
	vector, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.VectorSearch(ctx, vector, r.opts.SemanticThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.Candidate{
			Chunk:     hit.Chunk,
			MatchType: domain.MatchVector,
			Score:     hit.Similarity,
			Strategy:  domain.StrategySemantic,
		})
	}
	return out, nil
}

type fieldLookup struct {
	pattern   domain.FieldPattern
	matchType domain.MatchType
	score     float64
}

func (r *MultiStrategyRetriever) metadataSearch(ctx context.Context, terms []string) ([]domain.Candidate, error) {
	lookups := make([]fieldLookup, 0, len(terms)*len(fieldWeights))
	for _, term := range terms {
		for _, fw := range fieldWeights {
			lookups = append(lookups, fieldLookup{
				pattern:   domain.FieldPattern{Field: fw.field, Pattern: term},
				matchType: fw.matchType,
				score:     fw.weight,
			})
		}
	}
	return r.runLookups(ctx, lookups, domain.StrategyMetadata)
}

func (r *MultiStrategyRetriever) entityNameSearch(ctx context.Context, names []string) ([]domain.Candidate, error) {
	lookups := make([]fieldLookup, 0, len(names))
	for _, name := range names {
		lookups = append(lookups, fieldLookup{
			pattern:   domain.FieldPattern{Field: domain.FieldAuthor, Pattern: name},
			matchType: domain.MatchAuthorFullName,
			score:     authorFullNameScore,
		})
	}
	return r.runLookups(ctx, lookups, domain.StrategyEntityName)
}

// runLookups fans out independent field lookups under the concurrency cap.
// It reports an error only when every lookup failed.
func (r *MultiStrategyRetriever) runLookups(ctx context.Context, lookups []fieldLookup, strategy domain.Strategy) ([]domain.Candidate, error) {
	if len(lookups) == 0 {
		return nil, errNothingToSearch
	}

	results := make([][]domain.Chunk, len(lookups))
	errs := make([]error, len(lookups))

	var g errgroup.Group
	g.SetLimit(r.opts.MetadataConcurrency)
	for i, lookup := range lookups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = r.store.FilterSearch(ctx, []domain.FieldPattern{lookup.pattern}, r.opts.MetadataFieldLimit)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	out := make([]domain.Candidate, 0)
	for i, lookup := range lookups {
		if errs[i] != nil {
			failed++
			r.logger.Debug("field_lookup_failed",
				"strategy", string(strategy),
				"field", string(lookup.pattern.Field),
				"error", errs[i],
			)
			continue
		}
		for _, chunk := range results[i] {
			out = append(out, domain.Candidate{
				Chunk:     chunk,
				MatchType: lookup.matchType,
				Score:     lookup.score,
				Strategy:  strategy,
			})
		}
	}

	if failed == len(lookups) {
		return nil, fmt.Errorf("all %d field lookups failed: %w", failed, errors.Join(errs...))
	}
	return out, nil
}

func (r *MultiStrategyRetriever) catalogScan(ctx context.Context) ([]domain.Candidate, error) {
	chunks, err := r.store.ScanAll(ctx, domain.FieldTitle)
	if err != nil {
		return nil, fmt.Errorf("scan catalog: %w", err)
	}
	out := make([]domain.Candidate, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, domain.Candidate{
			Chunk:     chunk,
			MatchType: domain.MatchCatalogScan,
			Strategy:  domain.StrategyCatalogScan,
		})
	}
	return out, nil
}

func topicTerms(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		out = append(out, searchTerms(topic)...)
	}
	return out
}

func multiWordEntities(entities []string) []string {
	out := make([]string, 0, len(entities))
	for _, entity := range entities {
		if len(strings.Fields(entity)) >= 2 {
			out = append(out, strings.ToLower(strings.TrimSpace(entity)))
		}
	}
	return out
}
