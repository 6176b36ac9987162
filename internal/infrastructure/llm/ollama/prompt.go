package ollama

import (
	"strings"

	"github.com/kirillkom/library-rag/internal/core/domain"
)

const queryAnalysisInstructions = `You analyze search queries for a library of books and talks.
Return strict JSON object with keys:
entities (array of strings: person names and work titles mentioned or referred to),
topics (array of strings: subjects the user is interested in),
resolved_query (string: the query rewritten so pronouns are replaced by what they refer to in the conversation).
No markdown, no extra keys.`

func buildQueryAnalysisPrompt(query string, history []domain.ChatMessage) string {
	const (
		maxTurns   = 4
		maxSnippet = 500
	)

	var b strings.Builder
	if len(history) > 0 {
		start := max(len(history)-maxTurns, 0)
		b.WriteString("Conversation:\n")
		for _, msg := range history[start:] {
			b.WriteString(msg.Role + ": " + strings.TrimSpace(firstRunes(msg.Content, maxSnippet)) + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Query:\n")
	b.WriteString(strings.TrimSpace(query))
	return b.String()
}

// firstRunes cuts s to at most n runes without splitting a multibyte rune.
func firstRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
