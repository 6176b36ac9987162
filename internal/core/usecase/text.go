package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = toSet(
	"a", "an", "and", "are", "any", "about", "all", "also", "book", "books", "by", "can", "could",
	"did", "do", "does", "document", "documents", "for", "from", "get", "give", "has", "have",
	"how", "i", "in", "is", "it", "its", "just", "like", "list", "me", "more", "my", "need", "of",
	"on", "or", "please", "read", "regarding", "show", "some", "tell", "than", "that", "the",
	"their", "them", "there", "these", "they", "this", "those", "to", "video", "videos", "want",
	"was", "were", "what", "when", "where", "which", "who", "whom", "why", "will", "with",
	"would", "you", "your", "find", "search", "looking", "look", "know", "explain", "describe",
	"written", "wrote", "author", "authors", "title", "titles", "talk", "talks", "recommend",
	"suggest", "best", "other", "another", "next", "any", "every", "many", "much",
)

var nameStopWords = toSet(
	"the", "book", "books", "by", "about", "written", "author", "video", "videos", "talk",
	"talks", "document", "documents", "recommend", "recommended", "best", "find", "search",
	"show", "list", "please", "some", "other", "more", "what", "which", "who", "does", "did",
)

var pronouns = toSet(
	"it", "its", "this", "that", "these", "those", "he", "she", "they", "him", "her", "them",
	"his", "hers", "their", "theirs",
)

func toSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func splitWords(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, strings.Trim(b.String(), "'"))
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, strings.Trim(b.String(), "'"))
	}
	return tokens
}

// searchTerms returns unique content tokens longer than two characters.
func searchTerms(query string) []string {
	tokens := splitWords(query)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if utf8.RuneCountInString(token) <= 2 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// candidateNames pairs adjacent content tokens as possible "first last" names.
func candidateNames(query string) []string {
	tokens := splitWords(query)
	seen := make(map[string]struct{})
	out := make([]string, 0, 2)
	for i := 0; i+1 < len(tokens); i++ {
		first, last := tokens[i], tokens[i+1]
		if !isNameToken(first) || !isNameToken(last) {
			continue
		}
		name := first + " " + last
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func isNameToken(token string) bool {
	if utf8.RuneCountInString(token) <= 2 {
		return false
	}
	if _, stop := nameStopWords[token]; stop {
		return false
	}
	for _, r := range token {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

var properNounSpanRe = regexp.MustCompile(`\b\p{Lu}[\p{L}'’.-]+(?:\s+\p{Lu}[\p{L}'’.-]+)+`)

var leadingWords = toSet(
	"what", "who", "how", "why", "when", "where", "which", "is", "are", "tell", "explain",
	"describe", "define", "do", "does", "can", "could", "show", "find", "i", "the", "a", "an",
)

// properNounSpans finds runs of two or more capitalized words, dropping
// sentence-leading function words such as "What" or "Tell".
func properNounSpans(s string) []string {
	matches := properNounSpanRe.FindAllString(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		words := strings.Fields(m)
		for len(words) > 0 {
			if _, lead := leadingWords[strings.ToLower(words[0])]; !lead {
				break
			}
			words = words[1:]
		}
		if len(words) >= 2 {
			out = append(out, strings.Join(words, " "))
		}
	}
	return out
}

var quotedTitleRe = regexp.MustCompile(`["“]([^"”]{3,})["”]`)

func quotedTitles(s string) []string {
	matches := quotedTitleRe.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func containsPronoun(tokens []string) bool {
	for _, token := range tokens {
		if _, ok := pronouns[token]; ok {
			return true
		}
	}
	return false
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
