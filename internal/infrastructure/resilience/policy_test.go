package resilience

import (
	"testing"
	"time"
)

func TestWithinBudgetTrimsRetries(t *testing.T) {
	cfg := Config{
		RetryMaxAttempts:    10,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2,
	}

	got := cfg.WithinBudget(time.Second)
	if got.RetryMaxAttempts != 3 {
		t.Fatalf("expected 3 attempts within a 1s budget, got %d", got.RetryMaxAttempts)
	}
	if backoff := got.worstCaseBackoff(); backoff > 500*time.Millisecond {
		t.Fatalf("worst-case backoff %v exceeds half the budget", backoff)
	}

	if got := cfg.WithinBudget(0); got.RetryMaxAttempts != 10 {
		t.Fatalf("expected no trimming without a budget, got %d", got.RetryMaxAttempts)
	}
	if got := cfg.WithinBudget(time.Millisecond); got.RetryMaxAttempts != 1 {
		t.Fatalf("expected a single attempt for a tiny budget, got %d", got.RetryMaxAttempts)
	}
}

func TestWithinBudgetKeepsDefaults(t *testing.T) {
	got := DefaultConfig().WithinBudget(20 * time.Second)
	if got != DefaultConfig() {
		t.Fatalf("expected defaults to fit a 20s budget, got %#v", got)
	}
}
