package usecase

import (
	"github.com/kirillkom/library-rag/internal/core/domain"
)

type aggregatedDocument struct {
	doc        domain.LogicalDocument
	chunkIDs   map[string]struct{}
	strategies map[domain.Strategy]struct{}
}

// documentAggregator folds chunk-level candidates into logical documents
// keyed by normalized (title, author). Arrival order does not change the
// set of keys or their scores.
type documentAggregator struct {
	filter domain.ContentFilter
	byKey  map[string]*aggregatedDocument
	order  []string
}

func newDocumentAggregator(filter domain.ContentFilter) *documentAggregator {
	if filter == "" {
		filter = domain.ContentAll
	}
	return &documentAggregator{
		filter: filter,
		byKey:  make(map[string]*aggregatedDocument),
	}
}

func (a *documentAggregator) Add(c domain.Candidate) {
	if !c.Chunk.HasTitle() {
		return
	}
	if !a.filter.Allows(c.Chunk.DocType) {
		return
	}

	key := domain.DocumentKey(c.Chunk.Title, c.Chunk.Author)
	entry, ok := a.byKey[key]
	if !ok {
		entry = &aggregatedDocument{
			doc:        seedDocument(key, c),
			chunkIDs:   map[string]struct{}{chunkIdentity(c.Chunk): {}},
			strategies: map[domain.Strategy]struct{}{c.Strategy: {}},
		}
		a.byKey[key] = entry
		a.order = append(a.order, key)
		return
	}

	id := chunkIdentity(c.Chunk)
	if _, seen := entry.chunkIDs[id]; !seen {
		entry.chunkIDs[id] = struct{}{}
		entry.doc.ChunksAvailable++
	}
	entry.strategies[c.Strategy] = struct{}{}

	// Highest score wins the representative snippet.
	if c.Score > entry.doc.RelevanceScore {
		entry.doc.Content = c.Chunk.Content
		entry.doc.RelevanceScore = c.Score
		entry.doc.MatchType = c.MatchType
	}
	entry.doc = fillMissingMetadata(entry.doc, c.Chunk)
}

func (a *documentAggregator) AddAll(candidates []domain.Candidate) {
	for _, c := range candidates {
		a.Add(c)
	}
}

// Documents returns the aggregates in first-seen order.
func (a *documentAggregator) Documents() []domain.LogicalDocument {
	out := make([]domain.LogicalDocument, 0, len(a.order))
	for _, key := range a.order {
		entry := a.byKey[key]
		doc := entry.doc
		doc.Strategies = sortedStrategies(entry.strategies)
		doc.Provenance = provenanceFor(doc.Strategies)
		out = append(out, doc)
	}
	return out
}

func (a *documentAggregator) Len() int {
	return len(a.order)
}

func aggregateCandidates(candidates []domain.Candidate, filter domain.ContentFilter) []domain.LogicalDocument {
	agg := newDocumentAggregator(filter)
	agg.AddAll(candidates)
	return agg.Documents()
}

func seedDocument(key string, c domain.Candidate) domain.LogicalDocument {
	return domain.LogicalDocument{
		Key:             key,
		Title:           c.Chunk.Title,
		Author:          c.Chunk.Author,
		Topic:           c.Chunk.Topic,
		Genre:           c.Chunk.Genre,
		Tags:            c.Chunk.Tags,
		Difficulty:      c.Chunk.Difficulty,
		DocType:         c.Chunk.DocType,
		Content:         c.Chunk.Content,
		ChunksAvailable: 1,
		TotalChunks:     c.Chunk.TotalChunks,
		RelevanceScore:  c.Score,
		MatchType:       c.MatchType,
	}
}

func fillMissingMetadata(doc domain.LogicalDocument, chunk domain.Chunk) domain.LogicalDocument {
	if doc.Author == "" && chunk.Author != "" {
		doc.Author = chunk.Author
	}
	if doc.Topic == "" && chunk.Topic != "" {
		doc.Topic = chunk.Topic
	}
	if doc.Genre == "" && chunk.Genre != "" {
		doc.Genre = chunk.Genre
	}
	if doc.Tags == "" && chunk.Tags != "" {
		doc.Tags = chunk.Tags
	}
	if doc.Difficulty == "" && chunk.Difficulty != "" {
		doc.Difficulty = chunk.Difficulty
	}
	if doc.DocType == "" && chunk.DocType != "" {
		doc.DocType = chunk.DocType
	}
	if chunk.TotalChunks > doc.TotalChunks {
		doc.TotalChunks = chunk.TotalChunks
	}
	if doc.Content == "" && chunk.Content != "" {
		doc.Content = chunk.Content
	}
	return doc
}

func chunkIdentity(chunk domain.Chunk) string {
	if chunk.ID != "" {
		return chunk.ID
	}
	return chunk.Title + "|" + chunk.Author + "|" + chunk.Content
}

var strategyOrder = []domain.Strategy{
	domain.StrategySemantic,
	domain.StrategyMetadata,
	domain.StrategyEntityName,
	domain.StrategyCatalogScan,
}

func sortedStrategies(set map[domain.Strategy]struct{}) []domain.Strategy {
	out := make([]domain.Strategy, 0, len(set))
	for _, s := range strategyOrder {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func provenanceFor(strategies []domain.Strategy) domain.Provenance {
	switch len(strategies) {
	case 0:
		return domain.ProvenanceCatalogScan
	case 1:
		return domain.ProvenanceOf(strategies[0])
	default:
		return domain.ProvenanceHybrid
	}
}
