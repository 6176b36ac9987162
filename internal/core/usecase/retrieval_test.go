package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/library-rag/internal/core/domain"
)

func newTestRetrieval(store *chunkStoreFake, embedder *embedderFake) *RetrievalUseCase {
	return NewRetrievalUseCase(store, embedder, nil, RetrievalOptions{}, nil)
}

func TestRetrieveNextWithoutPageExplainsPaging(t *testing.T) {
	chunks := make([]domain.Chunk, 0, 25)
	for i := 1; i <= 25; i++ {
		chunks = append(chunks, bookChunk(fmt.Sprintf("c%d", i), fmt.Sprintf("Title %02d", i), "Author"))
	}
	uc := newTestRetrieval(&chunkStoreFake{chunks: chunks}, &embedderFake{})

	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "next 20 books"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Page != 1 || !result.Classification.Continuation {
		t.Fatalf("expected page 1 continuation, got page=%d cls=%#v", result.Page, result.Classification)
	}
	if !strings.Contains(result.Context, "request page 2 to see the next 5") {
		t.Fatalf("expected page hint in context:\n%s", result.Context)
	}
}

func TestRetrieveGreetingTouchesNoStore(t *testing.T) {
	store := &chunkStoreFake{chunks: []domain.Chunk{bookChunk("c1", "Dune", "Frank Herbert")}}
	embedder := &embedderFake{}
	uc := newTestRetrieval(store, embedder)

	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "hello"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Classification.NeedsRetrieval {
		t.Fatalf("greeting must not need retrieval")
	}
	if store.totalCalls() != 0 || embedder.calls != 0 {
		t.Fatalf("expected no store or embedder calls, got store=%d embed=%d", store.totalCalls(), embedder.calls)
	}
	if len(result.Documents) != 0 || result.TotalAvailable != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
	if !strings.Contains(result.Context, "No documents matched") {
		t.Fatalf("expected empty context block, got %q", result.Context)
	}
}

func TestRetrieveMergesSemanticAndMetadataHits(t *testing.T) {
	c1 := bookChunk("c1", "Refactoring", "Martin Fowler")
	c1.Content = "Refactoring is a disciplined technique"
	c2 := bookChunk("c2", "Refactoring", "Martin Fowler")
	c2.Content = "Extract Method"
	store := &chunkStoreFake{
		chunks: []domain.Chunk{c1, c2},
		vectorHits: []domain.ScoredChunk{
			{Chunk: c1, Similarity: 0.82},
			{Chunk: c2, Similarity: 0.78},
		},
	}
	uc := newTestRetrieval(store, &embedderFake{})

	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "books about refactoring"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Strategy != domain.QuerySpecificSearch {
		t.Fatalf("expected specific search, got %s", result.Strategy)
	}
	if len(result.Documents) != 1 {
		t.Fatalf("expected one logical document, got %d", len(result.Documents))
	}
	doc := result.Documents[0]
	if doc.ChunksAvailable != 2 {
		t.Fatalf("expected 2 chunks available, got %d", doc.ChunksAvailable)
	}
	if doc.Provenance != domain.ProvenanceHybrid || doc.MatchType != domain.MatchTitle {
		t.Fatalf("unexpected provenance/match: %s/%s", doc.Provenance, doc.MatchType)
	}
	if strings.Count(result.Context, "Title: Refactoring") != 1 {
		t.Fatalf("expected the document once in context:\n%s", result.Context)
	}
}

func TestRetrieveCatalogPagination(t *testing.T) {
	chunks := make([]domain.Chunk, 0, 25)
	for i := 25; i >= 1; i-- {
		chunks = append(chunks, bookChunk(fmt.Sprintf("c%d", i), fmt.Sprintf("Title %02d", i), "Author"))
	}
	store := &chunkStoreFake{chunks: chunks}
	uc := newTestRetrieval(store, &embedderFake{})

	first, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "list all books"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if first.Strategy != domain.QueryCatalogBrowse {
		t.Fatalf("expected catalog browse, got %s", first.Strategy)
	}
	if len(first.Documents) != 20 || !first.HasMore || first.Remaining != 5 || first.TotalAvailable != 25 {
		t.Fatalf("unexpected first page: len=%d more=%v remaining=%d total=%d",
			len(first.Documents), first.HasMore, first.Remaining, first.TotalAvailable)
	}
	if first.Documents[0].Title != "Title 01" {
		t.Fatalf("expected alphabetical order, got %s first", first.Documents[0].Title)
	}
	if !strings.Contains(first.Context, "NOTE: Showing documents 1-20 of 25") {
		t.Fatalf("expected continuation note in context:\n%s", first.Context)
	}

	second, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "list all books", Page: 2})
	if err != nil {
		t.Fatalf("Retrieve() page 2 error = %v", err)
	}
	if len(second.Documents) != 5 || second.HasMore || second.Page != 2 {
		t.Fatalf("unexpected second page: len=%d more=%v page=%d", len(second.Documents), second.HasMore, second.Page)
	}

	seen := map[string]bool{}
	for _, doc := range append(first.Documents, second.Documents...) {
		if seen[doc.Key] {
			t.Fatalf("document %s appears on more than one page", doc.Key)
		}
		seen[doc.Key] = true
	}
	if len(seen) != 25 {
		t.Fatalf("expected pages to cover all 25 documents, got %d", len(seen))
	}
}

func TestRetrieveSemanticCoversMissingAuthorField(t *testing.T) {
	chunk := bookChunk("c1", "Gardening Basics", "")
	chunk.Content = "Jane Doe explains soil preparation"
	store := &chunkStoreFake{
		chunks:     []domain.Chunk{chunk},
		vectorHits: []domain.ScoredChunk{{Chunk: chunk, Similarity: 0.64}},
	}
	uc := newTestRetrieval(store, &embedderFake{})

	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "books by Jane Doe"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Documents) != 1 {
		t.Fatalf("expected semantic search to surface the document, got %d", len(result.Documents))
	}
	doc := result.Documents[0]
	if doc.MatchType != domain.MatchVector || doc.Provenance != domain.ProvenanceVector {
		t.Fatalf("unexpected match/provenance: %s/%s", doc.MatchType, doc.Provenance)
	}
	if !strings.Contains(result.Context, "Author: Unknown") {
		t.Fatalf("expected unknown author in context:\n%s", result.Context)
	}
}

func TestRetrieveIsDeterministic(t *testing.T) {
	chunks := []domain.Chunk{
		bookChunk("c1", "Go in Action", "William Kennedy"),
		bookChunk("c2", "The Go Programming Language", "Alan Donovan"),
		bookChunk("c3", "Concurrency in Go", "Katherine Cox-Buday"),
	}
	store := &chunkStoreFake{
		chunks: chunks,
		vectorHits: []domain.ScoredChunk{
			{Chunk: chunks[2], Similarity: 0.7},
			{Chunk: chunks[0], Similarity: 0.7},
		},
	}
	uc := newTestRetrieval(store, &embedderFake{})
	query := domain.RetrievalQuery{Text: "recommend books for learning go concurrency"}

	first, err := uc.Retrieve(context.Background(), query)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	second, err := uc.Retrieve(context.Background(), query)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !reflect.DeepEqual(first.Documents, second.Documents) || first.Context != second.Context {
		t.Fatalf("repeated retrieval differs")
	}
}

func TestRetrieveExcludesUntitledChunks(t *testing.T) {
	untitled := domain.Chunk{ID: "x", Content: "orphan text"}
	titled := bookChunk("c1", "Dune", "Frank Herbert")
	store := &chunkStoreFake{vectorHits: []domain.ScoredChunk{
		{Chunk: untitled, Similarity: 0.99},
		{Chunk: titled, Similarity: 0.5},
	}}
	uc := newTestRetrieval(store, &embedderFake{})

	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "what is spice"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Documents) != 1 || result.Documents[0].Title != "Dune" {
		t.Fatalf("expected only titled document, got %#v", result.Documents)
	}
	if strings.Contains(result.Context, "orphan text") {
		t.Fatalf("untitled chunk leaked into context")
	}
}

func TestRetrieveAllStrategiesFailed(t *testing.T) {
	store := &chunkStoreFake{vectorErr: errors.New("connection refused")}
	uc := newTestRetrieval(store, &embedderFake{})

	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "what is spice"})
	if !domain.IsKind(err, domain.ErrAllStrategiesFailed) {
		t.Fatalf("expected ErrAllStrategiesFailed, got %v", err)
	}
	if result == nil || len(result.FailedStrategies) != 1 {
		t.Fatalf("expected failed strategies on result, got %#v", result)
	}
}

func TestRetrieveMalformedQuery(t *testing.T) {
	uc := newTestRetrieval(&chunkStoreFake{}, &embedderFake{})
	_, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "   "})
	if !domain.IsKind(err, domain.ErrMalformedQuery) || !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected malformed query error, got %v", err)
	}
}

func TestRetrieveAppliesVideoFilter(t *testing.T) {
	book := bookChunk("b1", "Simple Design", "Kent Beck")
	talk := bookChunk("v1", "Simple Made Easy", "Rich Hickey")
	talk.DocType = "video"
	store := &chunkStoreFake{vectorHits: []domain.ScoredChunk{
		{Chunk: book, Similarity: 0.9},
		{Chunk: talk, Similarity: 0.6},
	}}
	uc := newTestRetrieval(store, &embedderFake{})

	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "recommend videos on simplicity"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Classification.Filter != domain.ContentVideos {
		t.Fatalf("expected video filter, got %s", result.Classification.Filter)
	}
	if len(result.Documents) != 1 || result.Documents[0].Title != "Simple Made Easy" {
		t.Fatalf("expected only the video, got %v", titles(result.Documents))
	}
}

func TestRetrieveAllStrategiesFailedIgnoresSkippedStrategy(t *testing.T) {
	store := &chunkStoreFake{
		vectorErr: errors.New("connection refused"),
		filterErr: errors.New("connection refused"),
	}
	uc := newTestRetrieval(store, &embedderFake{err: errors.New("ollama down")})

	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "books about leadership"})
	if !domain.IsKind(err, domain.ErrAllStrategiesFailed) {
		t.Fatalf("expected ErrAllStrategiesFailed, got %v", err)
	}
	want := []domain.Strategy{domain.StrategySemantic, domain.StrategyMetadata}
	if !reflect.DeepEqual(result.Strategies, want) || !reflect.DeepEqual(result.FailedStrategies, want) {
		t.Fatalf("expected entity_name to be skipped, got executed=%v failed=%v", result.Strategies, result.FailedStrategies)
	}
}

func TestRetrieveFallsBackWhenAnalyzerHangs(t *testing.T) {
	chunk := bookChunk("c1", "Dune", "Frank Herbert")
	store := &chunkStoreFake{vectorHits: []domain.ScoredChunk{{Chunk: chunk, Similarity: 0.8}}}
	analyzer := &analyzerFake{block: true}
	uc := NewRetrievalUseCase(store, &embedderFake{}, analyzer, RetrievalOptions{
		Timeout:    400 * time.Millisecond,
		Classifier: ClassifierOptions{AnalysisTimeout: 2 * time.Second},
	}, nil)

	start := time.Now()
	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "what is spice"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 400*time.Millisecond {
		t.Fatalf("analyzer consumed the whole retrieval deadline: %v", elapsed)
	}
	if !analyzer.hadDeadline || result.Classification.Analyzed {
		t.Fatalf("expected bounded, failed analysis: deadline=%v analyzed=%v", analyzer.hadDeadline, result.Classification.Analyzed)
	}
	if len(result.Documents) != 1 || result.Documents[0].Title != "Dune" {
		t.Fatalf("expected the vector hit after fallback, got %v", titles(result.Documents))
	}
}

func TestRetrieveKeepsPartialResultsAfterTimeout(t *testing.T) {
	chunk := bookChunk("c1", "Refactoring", "Martin Fowler")
	store := &chunkStoreFake{chunks: []domain.Chunk{chunk}, blockVector: true}
	uc := NewRetrievalUseCase(store, &embedderFake{}, nil, RetrievalOptions{Timeout: 100 * time.Millisecond}, nil)

	result, err := uc.Retrieve(context.Background(), domain.RetrievalQuery{Text: "books about refactoring"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !reflect.DeepEqual(result.FailedStrategies, []domain.Strategy{domain.StrategySemantic}) {
		t.Fatalf("expected semantic to time out, got %v", result.FailedStrategies)
	}
	if len(result.Documents) != 1 || result.Documents[0].MatchType != domain.MatchTitle {
		t.Fatalf("expected the metadata hit to survive, got %#v", result.Documents)
	}
}
