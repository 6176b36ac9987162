package domain

import (
	"strings"
	"time"
)

// ChunkField names a chunk column that can be filtered or ordered on.
type ChunkField string

const (
	FieldTitle      ChunkField = "title"
	FieldAuthor     ChunkField = "author"
	FieldTopic      ChunkField = "topic"
	FieldGenre      ChunkField = "genre"
	FieldTags       ChunkField = "tags"
	FieldDifficulty ChunkField = "difficulty"
	FieldDocType    ChunkField = "doc_type"
	FieldContent    ChunkField = "content"
	FieldCreatedAt  ChunkField = "created_at"
)

// Chunk is one stored unit of document text plus its metadata.
type Chunk struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"-"`
	Title       string    `json:"title,omitempty"`
	Author      string    `json:"author,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	Tags        string    `json:"tags,omitempty"`
	Difficulty  string    `json:"difficulty,omitempty"`
	DocType     string    `json:"doc_type,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasTitle reports whether the chunk can contribute to a logical document.
func (c Chunk) HasTitle() bool {
	return strings.TrimSpace(c.Title) != ""
}

// ScoredChunk is a vector search hit.
type ScoredChunk struct {
	Chunk      Chunk
	Similarity float64
}

// FieldPattern is a case-insensitive substring match against one chunk field.
type FieldPattern struct {
	Field   ChunkField
	Pattern string
}

// MatchType records which lookup surfaced a candidate chunk.
type MatchType string

const (
	MatchVector         MatchType = "vector"
	MatchTitle          MatchType = "title"
	MatchAuthor         MatchType = "author"
	MatchTopic          MatchType = "topic"
	MatchGenre          MatchType = "genre"
	MatchTags           MatchType = "tags"
	MatchDocType        MatchType = "doc_type"
	MatchAuthorFullName MatchType = "author_full_name"
	MatchCatalogScan    MatchType = "catalog_scan"
)

// Strategy is one retrieval method.
type Strategy string

const (
	StrategySemantic    Strategy = "semantic"
	StrategyMetadata    Strategy = "metadata"
	StrategyEntityName  Strategy = "entity_name"
	StrategyCatalogScan Strategy = "catalog_scan"
)

// Candidate is a chunk-level hit tagged with how it was found.
type Candidate struct {
	Chunk     Chunk     `json:"chunk"`
	MatchType MatchType `json:"match_type"`
	Score     float64   `json:"score"`
	Strategy  Strategy  `json:"strategy"`
}

// Provenance summarizes which strategies produced a logical document.
type Provenance string

const (
	ProvenanceHybrid      Provenance = "hybrid"
	ProvenanceVector      Provenance = "vector"
	ProvenanceMetadata    Provenance = "metadata"
	ProvenanceCatalogScan Provenance = "catalog_scan"
)

// Priority orders provenance for tie-breaks; higher wins.
func (p Provenance) Priority() int {
	switch p {
	case ProvenanceHybrid:
		return 3
	case ProvenanceVector:
		return 2
	case ProvenanceMetadata:
		return 1
	default:
		return 0
	}
}

// ProvenanceOf maps a single strategy to its provenance kind.
func ProvenanceOf(s Strategy) Provenance {
	switch s {
	case StrategySemantic:
		return ProvenanceVector
	case StrategyMetadata, StrategyEntityName:
		return ProvenanceMetadata
	default:
		return ProvenanceCatalogScan
	}
}

// UnknownAuthor is the identity-key sentinel for chunks without an author.
const UnknownAuthor = "unknown"

// DocumentKey builds the case-insensitive (title, author) identity key.
func DocumentKey(title, author string) string {
	a := strings.ToLower(strings.TrimSpace(author))
	if a == "" {
		a = UnknownAuthor
	}
	return strings.ToLower(strings.TrimSpace(title)) + "-" + a
}

// LogicalDocument is one unique work aggregated from its retrieved chunks.
// It is built per request and never persisted.
type LogicalDocument struct {
	Key             string     `json:"key"`
	Title           string     `json:"title"`
	Author          string     `json:"author,omitempty"`
	Topic           string     `json:"topic,omitempty"`
	Genre           string     `json:"genre,omitempty"`
	Tags            string     `json:"tags,omitempty"`
	Difficulty      string     `json:"difficulty,omitempty"`
	DocType         string     `json:"doc_type,omitempty"`
	Content         string     `json:"content"`
	ChunksAvailable int        `json:"chunks_available"`
	TotalChunks     int        `json:"total_chunks"`
	RelevanceScore  float64    `json:"relevance_score"`
	MatchType       MatchType  `json:"match_type"`
	Provenance      Provenance `json:"provenance"`
	Strategies      []Strategy `json:"strategies,omitempty"`
}
