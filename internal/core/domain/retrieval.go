package domain

import "strings"

// QueryType is the retrieval strategy chosen for a query.
type QueryType string

const (
	QueryCatalogBrowse  QueryType = "catalog_browse"
	QuerySpecificSearch QueryType = "specific_search"
	QueryDirectQuestion QueryType = "direct_question"
	QueryRecommendation QueryType = "recommendation"
	QueryHybrid         QueryType = "hybrid"
)

// ContentFilter restricts results to a content family.
type ContentFilter string

const (
	ContentAll    ContentFilter = "all"
	ContentBooks  ContentFilter = "books"
	ContentVideos ContentFilter = "videos"
)

var videoDocTypes = []string{"video", "talk", "transcript", "lecture", "podcast"}

// IsVideoDocType reports whether a doc_type value denotes audiovisual content.
func IsVideoDocType(docType string) bool {
	dt := strings.ToLower(strings.TrimSpace(docType))
	if dt == "" {
		return false
	}
	for _, v := range videoDocTypes {
		if strings.Contains(dt, v) {
			return true
		}
	}
	return false
}

// Allows reports whether a chunk with docType passes the filter.
// Chunks without a doc_type count as books.
func (f ContentFilter) Allows(docType string) bool {
	switch f {
	case ContentBooks:
		return !IsVideoDocType(docType)
	case ContentVideos:
		return IsVideoDocType(docType)
	default:
		return true
	}
}

// QueryAnalysis is the optional completion-assisted view of a query.
type QueryAnalysis struct {
	Entities      []string `json:"entities"`
	Topics        []string `json:"topics"`
	ResolvedQuery string   `json:"resolved_query"`
}

// Classification is the query classifier's decision.
type Classification struct {
	Type           QueryType     `json:"type"`
	Confidence     float64       `json:"confidence"`
	Filter         ContentFilter `json:"filter"`
	Page           int           `json:"page"`
	RequestedCount int           `json:"requested_count,omitempty"`
	Continuation   bool          `json:"continuation,omitempty"`
	NeedsRetrieval bool          `json:"needs_retrieval"`
	Entities       []string      `json:"entities,omitempty"`
	Topics         []string      `json:"topics,omitempty"`
	SemanticQuery  string        `json:"semantic_query"`
	Analyzed       bool          `json:"analyzed"`
}

// RetrievalQuery is the request-scoped input of the pipeline.
type RetrievalQuery struct {
	Text    string
	History []ChatMessage
	Page    int
}

// Page is one slice of the ranked document set.
type Page struct {
	Documents []LogicalDocument
	Total     int
	Number    int
	Size      int
	HasMore   bool
	Remaining int
	Warning   string
}

// RetrievalResult is the pipeline output.
type RetrievalResult struct {
	Documents        []LogicalDocument `json:"documents"`
	Context          string            `json:"context"`
	TotalAvailable   int               `json:"total_available"`
	Strategy         QueryType         `json:"strategy"`
	Classification   Classification    `json:"classification"`
	Strategies       []Strategy        `json:"strategies,omitempty"`
	FailedStrategies []Strategy        `json:"failed_strategies,omitempty"`
	Page             int               `json:"page"`
	HasMore          bool              `json:"has_more"`
	Remaining        int               `json:"remaining"`
	Warning          string            `json:"warning,omitempty"`
}
