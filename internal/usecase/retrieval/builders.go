// Package retrieval builds the keyword and semantic retrievers over a chunk store.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"pdf-rag/internal/domain"
)

// DefaultK is the number of documents each retriever returns unless configured.
const DefaultK = 1

// placeholderRetriever stands in for a retriever built over an empty store.
var placeholderRetriever = domain.RetrieverFunc(func(ctx context.Context, query string) ([]domain.RetrievedDocument, error) {
	return []domain.RetrievedDocument{domain.PlaceholderDocument()}, nil
})

// PlaceholderRetriever returns the retriever used when the store was empty at build time.
func PlaceholderRetriever() domain.Retriever {
	return placeholderRetriever
}

// LexicalBuilder snapshots the store into a BM25 index. The index does not
// see writes that happen after Build.
type LexicalBuilder struct {
	store  domain.ChunkStore
	k      int
	logger *slog.Logger
}

func NewLexicalBuilder(store domain.ChunkStore, k int, logger *slog.Logger) *LexicalBuilder {
	if k <= 0 {
		k = DefaultK
	}
	return &LexicalBuilder{store: store, k: k, logger: logger}
}

func (b *LexicalBuilder) Build(ctx context.Context) (domain.Retriever, error) {
	chunks, err := b.store.GetAllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot chunks for keyword index: %w", err)
	}
	if len(chunks) == 0 {
		b.logger.Info("keyword_retriever_placeholder")
		return PlaceholderRetriever(), nil
	}

	idx := NewBM25Index(chunks, b.k)
	b.logger.Info("keyword_retriever_built",
		slog.Int("chunk_count", idx.Len()),
		slog.Int("k", b.k),
	)
	return idx, nil
}

// SemanticBuilder wraps the store's live similarity search. Emptiness is
// checked once, when Build runs.
type SemanticBuilder struct {
	store  domain.ChunkStore
	k      int
	logger *slog.Logger
}

func NewSemanticBuilder(store domain.ChunkStore, k int, logger *slog.Logger) *SemanticBuilder {
	if k <= 0 {
		k = DefaultK
	}
	return &SemanticBuilder{store: store, k: k, logger: logger}
}

func (b *SemanticBuilder) Build(ctx context.Context) (domain.Retriever, error) {
	empty, err := b.store.IsEmpty(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect store for semantic retriever: %w", err)
	}
	if empty {
		b.logger.Info("semantic_retriever_placeholder")
		return PlaceholderRetriever(), nil
	}

	b.logger.Info("semantic_retriever_built", slog.Int("k", b.k))
	return b.store.AsSemanticRetriever(b.k), nil
}

var (
	_ domain.RetrieverBuilder = (*LexicalBuilder)(nil)
	_ domain.RetrieverBuilder = (*SemanticBuilder)(nil)
)
