package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/core/ports"
	"github.com/kirillkom/library-rag/internal/infrastructure/resilience"
)

// Filterable and sortable columns. Field names never reach SQL unless listed here.
var chunkColumns = map[domain.ChunkField]string{
	domain.FieldTitle:      "title",
	domain.FieldAuthor:     "author",
	domain.FieldTopic:      "topic",
	domain.FieldGenre:      "genre",
	domain.FieldTags:       "tags",
	domain.FieldDifficulty: "difficulty",
	domain.FieldDocType:    "doc_type",
	domain.FieldContent:    "content",
	domain.FieldCreatedAt:  "created_at",
}

const chunkSelectColumns = `id, content, title, author, topic, genre, tags, difficulty, doc_type, chunk_index, total_chunks, created_at`

type Options struct {
	EmbeddingDimensions int
	ResilienceExecutor  *resilience.Executor
}

type ChunkRepository struct {
	db       *sql.DB
	dims     int
	executor *resilience.Executor
}

func NewChunkRepository(db *sql.DB, opts Options) *ChunkRepository {
	dims := opts.EmbeddingDimensions
	if dims <= 0 {
		dims = 768
	}
	return &ChunkRepository{db: db, dims: dims, executor: opts.ResilienceExecutor}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS document_chunks (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	embedding vector(%d),
	title TEXT,
	author TEXT,
	topic TEXT,
	genre TEXT,
	tags TEXT,
	difficulty TEXT,
	doc_type TEXT,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	total_chunks INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_title ON document_chunks(lower(title));
CREATE INDEX IF NOT EXISTS idx_document_chunks_author ON document_chunks(lower(author));
CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops);
`, r.dims)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// VectorSearch returns chunks whose cosine similarity to embedding is at
// least threshold, most similar first. Chunks without an embedding never match.
func (r *ChunkRepository) VectorSearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.ScoredChunk, error) {
	if len(embedding) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "vector search", errors.New("empty embedding"))
	}
	if limit <= 0 {
		limit = 10
	}
	vector := pgvector.NewVector(embedding)

	return execute(ctx, r.executor, "postgres.vector_search", func(ctx context.Context) ([]domain.ScoredChunk, error) {
		rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkSelectColumns+`, 1 - (embedding <=> $1) AS similarity
FROM document_chunks
WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
ORDER BY embedding <=> $1, id
LIMIT $3
`, vector, threshold, limit)
		if err != nil {
			return nil, wrapTemporaryIfNeeded("vector search", err)
		}
		defer rows.Close()

		out := make([]domain.ScoredChunk, 0, limit)
		for rows.Next() {
			var hit domain.ScoredChunk
			if err := scanChunk(rows, &hit.Chunk, &hit.Similarity); err != nil {
				return nil, err
			}
			out = append(out, hit)
		}
		if err := rows.Err(); err != nil {
			return nil, wrapTemporaryIfNeeded("vector search", err)
		}
		return out, nil
	})
}

// FilterSearch matches every pattern as a case-insensitive substring of its field.
func (r *ChunkRepository) FilterSearch(ctx context.Context, patterns []domain.FieldPattern, limit int) ([]domain.Chunk, error) {
	if len(patterns) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "filter search", errors.New("no field patterns"))
	}

	conditions := make([]string, 0, len(patterns))
	args := make([]any, 0, len(patterns)+1)
	for _, p := range patterns {
		column, ok := chunkColumns[p.Field]
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "filter search", fmt.Errorf("unknown field %q", p.Field))
		}
		args = append(args, "%"+escapeLike(strings.TrimSpace(p.Pattern))+"%")
		conditions = append(conditions, fmt.Sprintf(`%s ILIKE $%d ESCAPE '\'`, column, len(args)))
	}

	query := `SELECT ` + chunkSelectColumns + ` FROM document_chunks WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY lower(title), chunk_index, id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return execute(ctx, r.executor, "postgres.filter_search", func(ctx context.Context) ([]domain.Chunk, error) {
		return r.queryChunks(ctx, "filter search", query, args...)
	})
}

// ScanAll reads the whole table ordered by orderBy.
func (r *ChunkRepository) ScanAll(ctx context.Context, orderBy domain.ChunkField) ([]domain.Chunk, error) {
	column, ok := chunkColumns[orderBy]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "scan all", fmt.Errorf("unknown order field %q", orderBy))
	}
	order := column
	if orderBy != domain.FieldCreatedAt {
		order = "lower(" + column + ")"
	}
	query := `SELECT ` + chunkSelectColumns + ` FROM document_chunks ORDER BY ` + order + ` NULLS LAST, chunk_index, id`

	return execute(ctx, r.executor, "postgres.scan_all", func(ctx context.Context) ([]domain.Chunk, error) {
		return r.queryChunks(ctx, "scan all", query)
	})
}

func (r *ChunkRepository) queryChunks(ctx context.Context, operation, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	defer rows.Close()

	out := make([]domain.Chunk, 0)
	for rows.Next() {
		var chunk domain.Chunk
		if err := scanChunk(rows, &chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	return out, nil
}

func scanChunk(rows *sql.Rows, chunk *domain.Chunk, extra ...any) error {
	var (
		title, author, topic, genre sql.NullString
		tags, difficulty, docType   sql.NullString
	)
	dest := []any{
		&chunk.ID, &chunk.Content, &title, &author, &topic, &genre, &tags, &difficulty, &docType,
		&chunk.ChunkIndex, &chunk.TotalChunks, &chunk.CreatedAt,
	}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan chunk: %w", err)
	}
	chunk.Title = title.String
	chunk.Author = author.String
	chunk.Topic = topic.String
	chunk.Genre = genre.String
	chunk.Tags = tags.String
	chunk.Difficulty = difficulty.String
	chunk.DocType = docType.String
	return nil
}

func execute[T any](ctx context.Context, executor *resilience.Executor, operation string, fn func(context.Context) (T, error)) (T, error) {
	out, err := resilience.Call(ctx, executor, operation, fn, classifyPostgresError)
	if err != nil && resilience.IsCircuitOpen(err) {
		return out, domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return out, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func classifyPostgresError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if domain.IsKind(err, domain.ErrTemporary) || isConnectionError(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func isConnectionError(err error) bool {
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

var _ ports.ChunkStore = (*ChunkRepository)(nil)
