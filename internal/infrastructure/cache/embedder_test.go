package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type embedderFake struct {
	calls int
	err   error
	texts []string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	return make([][]float32, len(texts)), nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls++
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(f.calls)}, nil
}

func TestCachedEmbedderReusesWhitespaceVariants(t *testing.T) {
	next := &embedderFake{}
	cached := NewCachedEmbedder(next, time.Minute)

	first, err := cached.EmbedQuery(context.Background(), "  Books about\tGo ")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	second, err := cached.EmbedQuery(context.Background(), "Books about Go")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
	if first[0] != second[0] {
		t.Fatalf("expected cached vector, got %v and %v", first, second)
	}
	if next.texts[0] != "Books about Go" {
		t.Fatalf("expected collapsed whitespace upstream, got %q", next.texts[0])
	}
}

func TestCachedEmbedderKeepsCaseDistinct(t *testing.T) {
	next := &embedderFake{}
	cached := NewCachedEmbedder(next, time.Minute)

	if _, err := cached.EmbedQuery(context.Background(), "Go"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if _, err := cached.EmbedQuery(context.Background(), "go"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if next.calls != 2 || cached.Len() != 2 {
		t.Fatalf("expected separate entries per case: calls=%d len=%d", next.calls, cached.Len())
	}
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	next := &embedderFake{err: errors.New("offline")}
	cached := NewCachedEmbedder(next, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cached.EmbedQuery(context.Background(), "dune"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if next.calls != 2 || cached.Len() != 0 {
		t.Fatalf("errors must not be cached: calls=%d len=%d", next.calls, cached.Len())
	}
}

func TestCachedEmbedderPassesBatchesThrough(t *testing.T) {
	next := &embedderFake{}
	cached := NewCachedEmbedder(next, 0)

	vectors, err := cached.Embed(context.Background(), []string{"a", "b"})
	if err != nil || len(vectors) != 2 || next.calls != 1 {
		t.Fatalf("unexpected batch result: %v %v calls=%d", vectors, err, next.calls)
	}
}
