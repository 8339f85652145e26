package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"pdf-rag/internal/domain"
)

// DefaultCollection is the table used when no collection name is configured.
const DefaultCollection = "rag_chunks"

// PgvectorChunkStore keeps chunks and their embeddings in a pgvector table.
type PgvectorChunkStore struct {
	pool     PgxPool
	embedder domain.Embedder
	table    string
	index    string
	logger   *slog.Logger
}

// NewPgvectorChunkStore creates a store over the named collection table.
func NewPgvectorChunkStore(pool PgxPool, embedder domain.Embedder, collection string, logger *slog.Logger) *PgvectorChunkStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &PgvectorChunkStore{
		pool:     pool,
		embedder: embedder,
		table:    pgx.Identifier{collection}.Sanitize(),
		index:    pgx.Identifier{collection + "_source_idx"}.Sanitize(),
		logger:   logger,
	}
}

// EnsureCollection creates the extension, table and source index if missing.
func (s *PgvectorChunkStore) EnsureCollection(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id         TEXT PRIMARY KEY,
				source     TEXT NOT NULL,
				location   INTEGER NOT NULL,
				content    TEXT NOT NULL,
				embedding  vector NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (source)`, s.index, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: failed to ensure collection: %w", domain.ErrStoreUnavailable, err)
		}
	}
	return nil
}

func (s *PgvectorChunkStore) AddDocuments(ctx context.Context, chunks []domain.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, source, location, content, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			location = EXCLUDED.location,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`, s.table)

	start := time.Now()
	err = runInTx(ctx, s.pool, func(ctx context.Context) error {
		exec := getExecutor(ctx, s.pool)
		now := time.Now()
		for i, c := range chunks {
			if _, err := exec.Exec(ctx, query,
				c.ID(),
				c.DocumentName,
				c.ChunkLocation,
				c.Content,
				pgvector.NewVector(vectors[i]),
				now,
			); err != nil {
				return fmt.Errorf("failed to upsert chunk %s: %w", c.ID(), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	s.logger.Info("pgvector_chunks_upserted",
		slog.Int("chunk_count", len(chunks)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *PgvectorChunkStore) DeleteDocument(ctx context.Context, documentName string) error {
	err := runInTx(ctx, s.pool, func(ctx context.Context) error {
		exec := getExecutor(ctx, s.pool)

		rows, err := exec.Query(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE source = $1`, s.table), documentName)
		if err != nil {
			return fmt.Errorf("failed to query chunk ids: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to scan chunk ids: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := exec.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table), ids); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		s.logger.Info("pgvector_document_deleted",
			slog.String("document", documentName),
			slog.Int("chunk_count", len(ids)),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PgvectorChunkStore) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT DISTINCT source FROM %s ORDER BY source`, s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list documents: %w", domain.ErrStoreUnavailable, err)
	}
	sources, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan documents: %w", domain.ErrStoreUnavailable, err)
	}
	if sources == nil {
		sources = []string{}
	}
	return sources, nil
}

func (s *PgvectorChunkStore) GetAllChunks(ctx context.Context) ([]domain.TextChunk, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT source, location, content
		FROM %s
		ORDER BY source ASC, location ASC
	`, s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query chunks: %w", domain.ErrStoreUnavailable, err)
	}
	return scanChunks(rows)
}

func (s *PgvectorChunkStore) GetAllContents(ctx context.Context) ([]string, error) {
	chunks, err := s.GetAllChunks(ctx)
	if err != nil {
		return nil, err
	}
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	return contents, nil
}

func (s *PgvectorChunkStore) GetAllMetadata(ctx context.Context) ([]domain.ChunkMetadata, error) {
	chunks, err := s.GetAllChunks(ctx)
	if err != nil {
		return nil, err
	}
	metas := make([]domain.ChunkMetadata, len(chunks))
	for i, c := range chunks {
		metas[i] = c.Metadata()
	}
	return metas, nil
}

func (s *PgvectorChunkStore) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s LIMIT 1)`, s.table)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check for chunks: %w", domain.ErrStoreUnavailable, err)
	}
	return !exists, nil
}

// AsSemanticRetriever ranks chunks by cosine distance to the query embedding.
func (s *PgvectorChunkStore) AsSemanticRetriever(k int) domain.Retriever {
	return domain.RetrieverFunc(func(ctx context.Context, query string) ([]domain.RetrievedDocument, error) {
		return s.search(ctx, query, k)
	})
}

func (s *PgvectorChunkStore) search(ctx context.Context, query string, k int) ([]domain.RetrievedDocument, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT source, location, content
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, s.table), pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search chunks: %w", domain.ErrStoreUnavailable, err)
	}
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	docs := make([]domain.RetrievedDocument, len(chunks))
	for i, c := range chunks {
		docs[i] = domain.NewRetrievedDocument(c.Content, c.Metadata())
	}
	return docs, nil
}

func (s *PgvectorChunkStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func scanChunks(rows pgx.Rows) ([]domain.TextChunk, error) {
	defer rows.Close()

	chunks := []domain.TextChunk{}
	for rows.Next() {
		var c domain.TextChunk
		if err := rows.Scan(&c.DocumentName, &c.ChunkLocation, &c.Content); err != nil {
			return nil, fmt.Errorf("%w: failed to scan chunk: %w", domain.ErrStoreUnavailable, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows error: %w", domain.ErrStoreUnavailable, err)
	}
	return chunks, nil
}

var _ domain.ChunkStore = (*PgvectorChunkStore)(nil)
