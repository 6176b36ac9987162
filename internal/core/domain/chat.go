package domain

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionOptions struct {
	Model     string
	MaxTokens int
	JSON      bool
}

type ChatRequest struct {
	Message string
	History []ChatMessage
	Page    int
}

type Source struct {
	Title           string     `json:"title"`
	Author          string     `json:"author,omitempty"`
	DocType         string     `json:"docType,omitempty"`
	Topic           string     `json:"topic,omitempty"`
	Genre           string     `json:"genre,omitempty"`
	Tags            string     `json:"tags,omitempty"`
	Difficulty      string     `json:"difficulty,omitempty"`
	ChunksAvailable int        `json:"chunksAvailable"`
	TotalChunks     int        `json:"totalChunks"`
	RelevanceScore  float64    `json:"relevanceScore"`
	MatchType       MatchType  `json:"matchType"`
	Provenance      Provenance `json:"provenance"`
}

type ChatResponse struct {
	Response                string   `json:"response"`
	Sources                 []Source `json:"sources"`
	DocumentsFound          int      `json:"documentsFound"`
	TotalDocumentsAvailable int      `json:"totalDocumentsAvailable"`
	RetrievalMethod         string   `json:"retrievalMethod"`
	HasMore                 bool     `json:"hasMore"`
	Remaining               int      `json:"remaining"`
	Warning                 string   `json:"warning,omitempty"`

	// Retrieval is the pipeline result the answer was grounded in.
	Retrieval *RetrievalResult `json:"-"`
}

// RetrievalEvent is published after each answered chat for offline analytics.
type RetrievalEvent struct {
	ID               string     `json:"id"`
	QueryType        QueryType  `json:"query_type"`
	Confidence       float64    `json:"confidence"`
	Filter           string     `json:"filter"`
	Strategies       []Strategy `json:"strategies"`
	FailedStrategies []Strategy `json:"failed_strategies,omitempty"`
	DocumentsFound   int        `json:"documents_found"`
	TotalAvailable   int        `json:"total_available"`
	DurationMS       float64    `json:"duration_ms"`
	CreatedAt        time.Time  `json:"created_at"`
}
