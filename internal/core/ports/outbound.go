package ports

import (
	"context"

	"github.com/kirillkom/library-rag/internal/core/domain"
)

// ChunkStore is the read side of the document chunk table.
type ChunkStore interface {
	VectorSearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.ScoredChunk, error)
	FilterSearch(ctx context.Context, patterns []domain.FieldPattern, limit int) ([]domain.Chunk, error)
	ScanAll(ctx context.Context, orderBy domain.ChunkField) ([]domain.Chunk, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Completer generates text from role-tagged messages.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (string, error)
}

// QueryAnalyzer extracts entities and topics from a query.
type QueryAnalyzer interface {
	AnalyzeQuery(ctx context.Context, query string, history []domain.ChatMessage) (domain.QueryAnalysis, error)
}

// RetrievalEventPublisher emits retrieval analytics events.
type RetrievalEventPublisher interface {
	PublishRetrieval(ctx context.Context, event domain.RetrievalEvent) error
}
