package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("RETRIEVAL_CATALOG_PAGE_SIZE", "")
	t.Setenv("RETRIEVAL_TOP_N", "")
	t.Setenv("RETRIEVAL_SEMANTIC_THRESHOLD", "")
	t.Setenv("RETRIEVAL_METADATA_CONCURRENCY", "")
	t.Setenv("RETRIEVAL_CONTEXT_MAX_CHARS", "")
	t.Setenv("RETRIEVAL_ANALYSIS_TIMEOUT_MS", "")
	t.Setenv("RETRIEVAL_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retrieval.CatalogPageSize != 20 {
		t.Fatalf("expected default catalog page size 20, got %d", cfg.Retrieval.CatalogPageSize)
	}
	if cfg.Retrieval.TopN != 10 {
		t.Fatalf("expected default top n 10, got %d", cfg.Retrieval.TopN)
	}
	if cfg.Retrieval.SemanticThreshold != 0.1 {
		t.Fatalf("expected default semantic threshold 0.1, got %v", cfg.Retrieval.SemanticThreshold)
	}
	if cfg.Retrieval.MetadataConcurrency != 6 {
		t.Fatalf("expected default metadata concurrency 6, got %d", cfg.Retrieval.MetadataConcurrency)
	}
	if cfg.Retrieval.AnalysisTimeoutMS != 2000 {
		t.Fatalf("expected default analysis timeout 2000ms, got %d", cfg.Retrieval.AnalysisTimeoutMS)
	}
	if cfg.Retrieval.ContextMaxChars != 12000 {
		t.Fatalf("expected default context budget 12000, got %d", cfg.Retrieval.ContextMaxChars)
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_CONFIG_FILE", "")
	t.Setenv("RETRIEVAL_TOP_N", "7")
	t.Setenv("RETRIEVAL_SEMANTIC_THRESHOLD", "0.35")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("NATS_ENABLED", "false")
	t.Setenv("CHAT_HISTORY_TURNS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retrieval.TopN != 7 {
		t.Fatalf("expected top n 7, got %d", cfg.Retrieval.TopN)
	}
	if cfg.Retrieval.SemanticThreshold != 0.35 {
		t.Fatalf("expected threshold 0.35, got %v", cfg.Retrieval.SemanticThreshold)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.NATSEnabled {
		t.Fatalf("expected nats disabled")
	}
	if cfg.ChatHistoryTurns != 6 {
		t.Fatalf("expected fallback history turns 6 on bad value, got %d", cfg.ChatHistoryTurns)
	}
}

func TestLoadOverlaysRetrievalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrieval.yaml")
	content := "catalog_page_size: 15\ncontext_max_chars: 8000\nlocale: \" de \"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("RETRIEVAL_CONFIG_FILE", path)
	t.Setenv("RETRIEVAL_TOP_N", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retrieval.CatalogPageSize != 15 || cfg.Retrieval.ContextMaxChars != 8000 {
		t.Fatalf("file values not applied: %#v", cfg.Retrieval)
	}
	if cfg.Retrieval.TopN != 12 {
		t.Fatalf("expected env value to survive for keys absent from file, got %d", cfg.Retrieval.TopN)
	}
	if cfg.Retrieval.Locale != "de" {
		t.Fatalf("expected trimmed locale, got %q", cfg.Retrieval.Locale)
	}
}

func TestLoadFailsOnBrokenRetrievalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrieval.yaml")
	if err := os.WriteFile(path, []byte("top_n: [1, 2"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("RETRIEVAL_CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("RETRIEVAL_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected read error for missing file")
	}
}
