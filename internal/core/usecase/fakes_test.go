package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/library-rag/internal/core/domain"
)

type chunkStoreFake struct {
	chunks     []domain.Chunk
	vectorHits []domain.ScoredChunk

	vectorErr error
	filterErr error
	scanErr   error
	delay     time.Duration

	// blockVector makes VectorSearch wait for ctx to end.
	blockVector bool

	mu          sync.Mutex
	vectorCalls int
	filterCalls int
	scanCalls   int
	vectorLimit int
	scanOrder   domain.ChunkField

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *chunkStoreFake) VectorSearch(ctx context.Context, _ []float32, _ float64, limit int) ([]domain.ScoredChunk, error) {
	f.mu.Lock()
	f.vectorCalls++
	f.vectorLimit = limit
	f.mu.Unlock()
	if f.blockVector {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return append([]domain.ScoredChunk(nil), f.vectorHits...), nil
}

func (f *chunkStoreFake) FilterSearch(ctx context.Context, patterns []domain.FieldPattern, limit int) ([]domain.Chunk, error) {
	f.mu.Lock()
	f.filterCalls++
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		current := f.maxInFlight.Load()
		if n <= current || f.maxInFlight.CompareAndSwap(current, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	out := make([]domain.Chunk, 0)
	for _, chunk := range f.chunks {
		if matchesAllPatterns(chunk, patterns) {
			out = append(out, chunk)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *chunkStoreFake) ScanAll(ctx context.Context, orderBy domain.ChunkField) ([]domain.Chunk, error) {
	f.mu.Lock()
	f.scanCalls++
	f.scanOrder = orderBy
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return append([]domain.Chunk(nil), f.chunks...), nil
}

func (f *chunkStoreFake) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vectorCalls + f.filterCalls + f.scanCalls
}

func matchesAllPatterns(chunk domain.Chunk, patterns []domain.FieldPattern) bool {
	for _, p := range patterns {
		if !strings.Contains(strings.ToLower(chunkField(chunk, p.Field)), strings.ToLower(p.Pattern)) {
			return false
		}
	}
	return true
}

func chunkField(chunk domain.Chunk, field domain.ChunkField) string {
	switch field {
	case domain.FieldTitle:
		return chunk.Title
	case domain.FieldAuthor:
		return chunk.Author
	case domain.FieldTopic:
		return chunk.Topic
	case domain.FieldGenre:
		return chunk.Genre
	case domain.FieldTags:
		return chunk.Tags
	case domain.FieldDifficulty:
		return chunk.Difficulty
	case domain.FieldDocType:
		return chunk.DocType
	case domain.FieldContent:
		return chunk.Content
	default:
		return ""
	}
}

type embedderFake struct {
	err error

	mu    sync.Mutex
	query string
	calls int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.query = text
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type analyzerFake struct {
	analysis domain.QueryAnalysis
	err      error
	calls    int

	// block makes AnalyzeQuery hang until ctx ends.
	block       bool
	hadDeadline bool
}

func (f *analyzerFake) AnalyzeQuery(ctx context.Context, _ string, _ []domain.ChatMessage) (domain.QueryAnalysis, error) {
	f.calls++
	_, f.hadDeadline = ctx.Deadline()
	if f.block {
		<-ctx.Done()
		return domain.QueryAnalysis{}, ctx.Err()
	}
	if f.err != nil {
		return domain.QueryAnalysis{}, f.err
	}
	return f.analysis, nil
}

type completerFake struct {
	answer   string
	err      error
	messages []domain.ChatMessage
	opts     domain.CompletionOptions
}

func (f *completerFake) Complete(_ context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (string, error) {
	f.messages = messages
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type publisherFake struct {
	events []domain.RetrievalEvent
	err    error
}

func (f *publisherFake) PublishRetrieval(_ context.Context, event domain.RetrievalEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func bookChunk(id, title, author string) domain.Chunk {
	return domain.Chunk{
		ID:          id,
		Title:       title,
		Author:      author,
		DocType:     "book",
		Content:     "content of " + title,
		TotalChunks: 10,
	}
}
