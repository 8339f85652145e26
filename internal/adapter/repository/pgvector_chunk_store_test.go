package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/domain"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0}, nil
}

func (s *stubEmbedder) Version() string { return "stub" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PgvectorChunkStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgvectorChunkStore(mock, &stubEmbedder{}, "", testLogger())
}

func TestPgvectorChunkStore_AddDocuments(t *testing.T) {
	t.Run("Upserts every chunk in one transaction", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "rag_chunks"`).
			WithArgs("doc1_0", "doc1", 0, "Revenue grew 10%", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO "rag_chunks"`).
			WithArgs("doc1_1", "doc1", 1, "Emissions fell 5%", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := store.AddDocuments(context.Background(), []domain.TextChunk{
			{Content: "Revenue grew 10%", DocumentName: "doc1", ChunkLocation: 0},
			{Content: "Emissions fell 5%", DocumentName: "doc1", ChunkLocation: 1},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty input does not touch the database", func(t *testing.T) {
		mock, store := newMockStore(t)

		require.NoError(t, store.AddDocuments(context.Background(), nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rolls back and reports store unavailable", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "rag_chunks"`).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := store.AddDocuments(context.Background(), []domain.TextChunk{
			{Content: "x", DocumentName: "doc1", ChunkLocation: 0},
		})
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Embedding failure is not a store failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := NewPgvectorChunkStore(mock, &stubEmbedder{err: errors.New("quota")}, "", testLogger())

		err = store.AddDocuments(context.Background(), []domain.TextChunk{{Content: "x", DocumentName: "d"}})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgvectorChunkStore_DeleteDocument(t *testing.T) {
	t.Run("Deletes the looked up ids", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM "rag_chunks" WHERE source`).
			WithArgs("doc1").
			WillReturnRows(mock.NewRows([]string{"id"}).AddRow("doc1_0").AddRow("doc1_1"))
		mock.ExpectExec(`DELETE FROM "rag_chunks"`).
			WithArgs([]string{"doc1_0", "doc1_1"}).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mock.ExpectCommit()

		require.NoError(t, store.DeleteDocument(context.Background(), "doc1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown document is a no-op", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM "rag_chunks" WHERE source`).
			WithArgs("missing").
			WillReturnRows(mock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		require.NoError(t, store.DeleteDocument(context.Background(), "missing"))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgvectorChunkStore_IsEmpty(t *testing.T) {
	t.Run("Checks for a single row", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM "rag_chunks" LIMIT 1\)`).
			WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))

		empty, err := store.IsEmpty(context.Background())
		require.NoError(t, err)
		assert.False(t, empty)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No rows reads as empty", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))

		empty, err := store.IsEmpty(context.Background())
		require.NoError(t, err)
		assert.True(t, empty)
	})

	t.Run("Query failure is store unavailable", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(errors.New("connection refused"))

		_, err := store.IsEmpty(context.Background())
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestPgvectorChunkStore_Reads(t *testing.T) {
	t.Run("ListDocuments returns distinct sources", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectQuery(`SELECT DISTINCT source`).
			WillReturnRows(mock.NewRows([]string{"source"}).AddRow("a.md").AddRow("b.md"))

		docs, err := store.ListDocuments(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"a.md", "b.md"}, docs)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ListDocuments on empty store is empty not nil", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectQuery(`SELECT DISTINCT source`).WillReturnRows(mock.NewRows([]string{"source"}))

		docs, err := store.ListDocuments(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})

	t.Run("Contents and metadata share order", func(t *testing.T) {
		mock, store := newMockStore(t)

		rows := func() *pgxmock.Rows {
			return mock.NewRows([]string{"source", "location", "content"}).
				AddRow("doc1", 0, "Revenue grew 10%").
				AddRow("doc1", 1, "Emissions fell 5%")
		}
		mock.ExpectQuery(`SELECT source, location, content`).WillReturnRows(rows())
		mock.ExpectQuery(`SELECT source, location, content`).WillReturnRows(rows())

		contents, err := store.GetAllContents(context.Background())
		require.NoError(t, err)
		metas, err := store.GetAllMetadata(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"Revenue grew 10%", "Emissions fell 5%"}, contents)
		assert.Equal(t, []domain.ChunkMetadata{{Source: "doc1", Location: 0}, {Source: "doc1", Location: 1}}, metas)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Semantic retriever orders by distance with limit k", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectQuery(`ORDER BY embedding <=> \$1`).
			WithArgs(pgxmock.AnyArg(), 1).
			WillReturnRows(mock.NewRows([]string{"source", "location", "content"}).AddRow("doc1", 1, "Emissions fell 5%"))

		docs, err := store.AsSemanticRetriever(1).Retrieve(context.Background(), "emissions")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "doc1 (Chunk: 1)", docs[0].Provenance())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Query failure maps to store unavailable", func(t *testing.T) {
		mock, store := newMockStore(t)

		mock.ExpectQuery(`SELECT DISTINCT source`).WillReturnError(errors.New("dial tcp: refused"))

		_, err := store.ListDocuments(context.Background())
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestPgvectorChunkStore_EnsureCollection(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPgvectorChunkStore(mock, &stubEmbedder{}, "esg_chunks", testLogger())

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "esg_chunks"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "esg_chunks_source_idx"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureCollection(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
