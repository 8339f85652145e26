package domain

import "context"

// ChunkStore persists text chunks and indexes them for similarity search.
type ChunkStore interface {
	// AddDocuments embeds and upserts chunks by their "{source}_{location}" id.
	AddDocuments(ctx context.Context, chunks []TextChunk) error

	// DeleteDocument removes every chunk whose source equals documentName.
	// Deleting an unknown document is a no-op.
	DeleteDocument(ctx context.Context, documentName string) error

	// ListDocuments returns the distinct sources across stored chunks.
	ListDocuments(ctx context.Context) ([]string, error)

	// GetAllChunks dumps the whole store in a stable order.
	GetAllChunks(ctx context.Context) ([]TextChunk, error)

	// GetAllContents and GetAllMetadata dump contents and metadata in the same order.
	GetAllContents(ctx context.Context) ([]string, error)
	GetAllMetadata(ctx context.Context) ([]ChunkMetadata, error)

	// IsEmpty reports whether the store holds no chunks at all.
	IsEmpty(ctx context.Context) (bool, error)

	// AsSemanticRetriever returns a live top-k similarity retriever over the store.
	AsSemanticRetriever(k int) Retriever

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Retriever returns the documents most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]RetrievedDocument, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string) ([]RetrievedDocument, error)

// Retrieve calls f.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string) ([]RetrievedDocument, error) {
	return f(ctx, query)
}

// RetrieverBuilder constructs a retriever from the current state of a chunk store.
type RetrieverBuilder interface {
	Build(ctx context.Context) (Retriever, error)
}
