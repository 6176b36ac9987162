package bootstrap

import (
	"testing"
	"time"

	"github.com/kirillkom/library-rag/internal/config"
)

func TestRetrievalOptionsMapsTuning(t *testing.T) {
	opts := RetrievalOptions(config.RetrievalTuning{
		TimeoutSeconds:      5,
		AnalysisTimeoutMS:   750,
		SemanticThreshold:   0.25,
		MetadataConcurrency: 3,
		CatalogPageSize:     15,
		TopN:                4,
		Locale:              "de",
		ContextMaxChars:     9000,
		PreviewChars:        120,
	})

	if opts.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", opts.Timeout)
	}
	if opts.Classifier.AnalysisTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected analysis timeout %v", opts.Classifier.AnalysisTimeout)
	}
	if opts.Retriever.SemanticThreshold != 0.25 || opts.Retriever.MetadataConcurrency != 3 {
		t.Fatalf("unexpected retriever options: %#v", opts.Retriever)
	}
	if opts.Ranking.CatalogPageSize != 15 || opts.Ranking.TopN != 4 || opts.Ranking.Locale != "de" {
		t.Fatalf("unexpected ranking options: %#v", opts.Ranking)
	}
	if opts.Formatter.MaxChars != 9000 || opts.Formatter.PreviewChars != 120 {
		t.Fatalf("unexpected formatter options: %#v", opts.Formatter)
	}
}

func TestNewExecutorHonorsRetryAttempts(t *testing.T) {
	if newExecutor(config.Config{ResilienceRetryMaxAttempts: 3}, nil) == nil {
		t.Fatalf("expected executor")
	}
}

func TestResiliencePolicyFitsRetrievalTimeout(t *testing.T) {
	rc := resiliencePolicy(config.Config{
		ResilienceBreakerEnabled:   true,
		ResilienceRetryMaxAttempts: 50,
		Retrieval:                  config.RetrievalTuning{TimeoutSeconds: 1},
	})
	if rc.RetryMaxAttempts >= 50 || rc.RetryMaxAttempts < 1 {
		t.Fatalf("expected retries trimmed to the retrieval timeout, got %d", rc.RetryMaxAttempts)
	}
	if !rc.BreakerEnabled {
		t.Fatalf("expected breaker setting to carry over")
	}

	rc = resiliencePolicy(config.Config{ResilienceRetryMaxAttempts: 3, Retrieval: config.RetrievalTuning{TimeoutSeconds: 20}})
	if rc.RetryMaxAttempts != 3 {
		t.Fatalf("expected configured attempts to fit a 20s timeout, got %d", rc.RetryMaxAttempts)
	}
}
