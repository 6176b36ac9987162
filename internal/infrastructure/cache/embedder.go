package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kirillkom/library-rag/internal/core/ports"
)

// CachedEmbedder reuses query embeddings for texts that differ only in
// whitespace within a TTL. Case is kept: embedding models are case sensitive.
// Batch embedding is passed through uncached.
type CachedEmbedder struct {
	next  ports.Embedder
	store *gocache.Cache
}

func NewCachedEmbedder(next ports.Embedder, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedEmbedder{
		next:  next,
		store: gocache.New(ttl, 2*ttl),
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.Embed(ctx, texts)
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := strings.Join(strings.Fields(text), " ")
	if cached, ok := e.store.Get(key); ok {
		return cached.([]float32), nil
	}

	vector, err := e.next.EmbedQuery(ctx, key)
	if err != nil {
		return nil, err
	}
	e.store.SetDefault(key, vector)
	return vector, nil
}

func (e *CachedEmbedder) Len() int {
	return e.store.ItemCount()
}

var _ ports.Embedder = (*CachedEmbedder)(nil)
