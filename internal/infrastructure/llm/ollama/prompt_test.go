package ollama

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/library-rag/internal/core/domain"
)

func TestBuildQueryAnalysisPromptKeepsRunesIntact(t *testing.T) {
	long := "x" + strings.Repeat("ё", 600)
	prompt := buildQueryAnalysisPrompt("кто автор?", []domain.ChatMessage{
		{Role: domain.RoleAssistant, Content: long},
	})

	if !utf8.ValidString(prompt) {
		t.Fatalf("prompt contains a split rune: %q", prompt)
	}
	want := "assistant: x" + strings.Repeat("ё", 499) + "\n"
	if !strings.Contains(prompt, want) {
		t.Fatalf("expected snippet cut to 500 runes, got:\n%s", prompt)
	}
	if !strings.HasSuffix(prompt, "Query:\nкто автор?") {
		t.Fatalf("unexpected prompt tail:\n%s", prompt)
	}
}

func TestBuildQueryAnalysisPromptKeepsRecentTurns(t *testing.T) {
	history := make([]domain.ChatMessage, 0, 6)
	for _, text := range []string{"one", "two", "three", "four", "five", "six"} {
		history = append(history, domain.ChatMessage{Role: domain.RoleUser, Content: text})
	}
	prompt := buildQueryAnalysisPrompt("and it?", history)

	if strings.Contains(prompt, "user: two\n") {
		t.Fatalf("expected only the last 4 turns, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "user: three\n") || !strings.Contains(prompt, "user: six\n") {
		t.Fatalf("expected recent turns, got:\n%s", prompt)
	}
}

func TestFirstRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"héllo", 2, "hé"},
		{"héllo", 10, "héllo"},
		{"héllo", 0, ""},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := firstRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("firstRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
