package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rulehelper/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SearchFilters restricts vector search to chunks with matching metadata.
// Zero values mean no filtering.
type SearchFilters struct {
	DocType    types.DocType
	Complexity types.Complexity
}

type CollectionStats struct {
	DocumentCount  int       `json:"document_count"`
	ChunkCount     int       `json:"chunk_count"`
	EmbeddingModel string    `json:"embedding_model"`
	RebuiltAt      time.Time `json:"rebuilt_at"`
}

type DBStorer interface {
	SaveDocument(context.Context, types.Document) error
	GetDocumentByID(context.Context, uuid.UUID) (*types.Document, error)
	GetDocumentByPath(context.Context, string) (*types.Document, error)
	ReplaceChunks(context.Context, uuid.UUID, []types.Chunk) error
	Search(context.Context, []float32, SearchFilters, int) ([]types.Chunk, error)
	BeginRebuild(context.Context) error
	CommitRebuild(context.Context) error
	AbortRebuild(context.Context) error
	EmbeddingStamp(context.Context) (string, error)
	SetEmbeddingStamp(context.Context, string) error
	Stats(context.Context) (*CollectionStats, error)
	Ping(context.Context) error
}

type PostgresStore struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	staging bool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		logger: slog.Default(),
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		source TEXT,
		source_path TEXT,
		content_hash TEXT,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE,
		version INTEGER DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(source_path);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL,
		position INT NOT NULL,
		content TEXT NOT NULL,
		doc_type TEXT NOT NULL DEFAULT 'general',
		complexity TEXT NOT NULL DEFAULT 'medium',
		entity_hint TEXT NOT NULL DEFAULT '',
		embedding vector(768)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc_type ON chunks(doc_type);
	CREATE INDEX IF NOT EXISTS idx_chunks_complexity ON chunks(complexity);

	CREATE TABLE IF NOT EXISTS collection_meta (
		id INT PRIMARY KEY DEFAULT 1,
		embedding_model TEXT NOT NULL DEFAULT '',
		rebuilt_at TIMESTAMP WITH TIME ZONE
	);

	INSERT INTO collection_meta (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) documentsTable() string {
	if p.staging {
		return "documents_staging"
	}
	return "documents"
}

func (p *PostgresStore) chunksTable() string {
	if p.staging {
		return "chunks_staging"
	}
	return "chunks"
}

func (p *PostgresStore) SaveDocument(ctx context.Context, doc types.Document) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, title, source, source_path, content_hash, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			source_path = EXCLUDED.source_path,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at,
			version = %s.version + 1
		`, p.documentsTable(), p.documentsTable())
	_, err := p.pool.Exec(
		ctx,
		query,
		doc.ID,
		doc.Title,
		doc.Source,
		doc.SourcePath,
		doc.ContentHash,
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.Version,
	)
	return err
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	return p.getDocument(ctx, "id = $1", docID)
}

func (p *PostgresStore) GetDocumentByPath(ctx context.Context, path string) (*types.Document, error) {
	return p.getDocument(ctx, "source_path = $1", path)
}

func (p *PostgresStore) getDocument(ctx context.Context, where string, arg any) (*types.Document, error) {
	query := fmt.Sprintf(
		"SELECT id, title, source, source_path, content_hash, created_at, updated_at, version FROM %s WHERE %s",
		p.documentsTable(), where,
	)
	rows, err := p.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}

	doc := &types.Document{}
	if err := rows.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Source,
		&doc.SourcePath,
		&doc.ContentHash,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.Version,
	); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReplaceChunks deletes a document's chunks and writes the new set in one
// transaction, so readers never see a half-indexed document.
func (p *PostgresStore) ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []types.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", p.chunksTable()), docID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	insert := fmt.Sprintf(`
	INSERT INTO %s (id, doc_id, position, content, doc_type, complexity, entity_hint, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.chunksTable())

	for _, c := range chunks {
		_, err := tx.Exec(ctx, insert,
			c.ID, docID, c.Position, c.Content, string(c.DocType), string(c.Complexity), c.EntityHint,
			pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Position, err)
		}
	}

	return tx.Commit(ctx)
}

// Search returns the top chunks by cosine similarity, optionally pre-filtered
// by metadata. Similarity is 1-(embedding <=> query), higher is closer.
func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, filters SearchFilters, limit int) ([]types.Chunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		limit = 10
	}

	vector := pgvector.NewVector(queryVec)
	where, args := buildFilterClause(filters, vector, limit)

	query := fmt.Sprintf(`
		SELECT id, doc_id, position, content, doc_type, complexity, entity_hint,
		       1-(embedding <=> $1) AS similarity
		FROM chunks
		WHERE embedding IS NOT NULL%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, where, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var chunk types.Chunk
		var docType, complexity string
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocID,
			&chunk.Position,
			&chunk.Content,
			&docType,
			&complexity,
			&chunk.EntityHint,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, err
		}
		chunk.DocType = types.DocType(docType)
		chunk.Complexity = types.Complexity(complexity)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// buildFilterClause appends metadata predicates after the mandatory vector
// argument. Returns the WHERE tail and the full positional argument list,
// ending with the limit.
func buildFilterClause(filters SearchFilters, vector any, limit int) (string, []any) {
	args := []any{vector}
	var sb strings.Builder

	if filters.DocType != "" {
		args = append(args, string(filters.DocType))
		fmt.Fprintf(&sb, " AND doc_type = $%d", len(args))
	}
	if filters.Complexity != "" {
		args = append(args, string(filters.Complexity))
		fmt.Fprintf(&sb, " AND complexity = $%d", len(args))
	}

	args = append(args, limit)
	return sb.String(), args
}

// BeginRebuild creates empty staging tables; subsequent saves land there until
// CommitRebuild swaps them in. Readers keep seeing the old collection.
func (p *PostgresStore) BeginRebuild(ctx context.Context) error {
	query := `
	DROP TABLE IF EXISTS documents_staging;
	DROP TABLE IF EXISTS chunks_staging;
	CREATE TABLE documents_staging (LIKE documents INCLUDING ALL);
	CREATE TABLE chunks_staging (LIKE chunks INCLUDING ALL);
	`
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return err
	}
	p.staging = true
	return nil
}

func (p *PostgresStore) CommitRebuild(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	swap := `
	DROP TABLE documents;
	DROP TABLE chunks;
	ALTER TABLE documents_staging RENAME TO documents;
	ALTER TABLE chunks_staging RENAME TO chunks;
	UPDATE collection_meta SET rebuilt_at = NOW() WHERE id = 1;
	`
	if _, err := tx.Exec(ctx, swap); err != nil {
		return fmt.Errorf("swap staging tables: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	p.staging = false
	p.logger.Info("collection rebuild committed")
	return nil
}

// AbortRebuild drops the staging tables, leaving the prior collection intact.
func (p *PostgresStore) AbortRebuild(ctx context.Context) error {
	p.staging = false
	_, err := p.pool.Exec(ctx, `
	DROP TABLE IF EXISTS documents_staging;
	DROP TABLE IF EXISTS chunks_staging;
	`)
	return err
}

func (p *PostgresStore) EmbeddingStamp(ctx context.Context) (string, error) {
	var stamp string
	err := p.pool.QueryRow(ctx, "SELECT embedding_model FROM collection_meta WHERE id = 1").Scan(&stamp)
	if err != nil {
		return "", err
	}
	return stamp, nil
}

func (p *PostgresStore) SetEmbeddingStamp(ctx context.Context, stamp string) error {
	_, err := p.pool.Exec(ctx, "UPDATE collection_meta SET embedding_model = $1 WHERE id = 1", stamp)
	return err
}

func (p *PostgresStore) Stats(ctx context.Context) (*CollectionStats, error) {
	stats := &CollectionStats{}
	var rebuiltAt sql.NullTime

	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM chunks),
			embedding_model,
			rebuilt_at
		FROM collection_meta WHERE id = 1
	`).Scan(&stats.DocumentCount, &stats.ChunkCount, &stats.EmbeddingModel, &rebuiltAt)
	if err != nil {
		return nil, err
	}
	if rebuiltAt.Valid {
		stats.RebuiltAt = rebuiltAt.Time
	}
	return stats, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool closed")
	}
	return nil
}
