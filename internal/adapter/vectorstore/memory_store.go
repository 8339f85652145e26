// Package vectorstore holds chunk store backends that live outside Postgres.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"pdf-rag/internal/domain"
)

type memoryEntry struct {
	chunk  domain.TextChunk
	vector []float32
}

// MemoryStore is an in-process chunk store with brute-force cosine search.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]memoryEntry
	embedder domain.Embedder
}

// NewMemoryStore creates an empty store that embeds with embedder.
func NewMemoryStore(embedder domain.Embedder) *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]memoryEntry),
		embedder: embedder,
	}
}

func (s *MemoryStore) AddDocuments(ctx context.Context, chunks []domain.TextChunk) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range chunks {
		s.entries[c.ID()] = memoryEntry{chunk: c, vector: vectors[i]}
	}
	return nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, documentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.chunk.DocumentName == documentName {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	docs := []string{}
	for _, e := range s.entries {
		if _, ok := seen[e.chunk.DocumentName]; ok {
			continue
		}
		seen[e.chunk.DocumentName] = struct{}{}
		docs = append(docs, e.chunk.DocumentName)
	}
	sort.Strings(docs)
	return docs, nil
}

func (s *MemoryStore) GetAllChunks(ctx context.Context) ([]domain.TextChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]domain.TextChunk, 0, len(s.entries))
	for _, e := range s.entries {
		chunks = append(chunks, e.chunk)
	}
	sortChunks(chunks)
	return chunks, nil
}

func (s *MemoryStore) GetAllContents(ctx context.Context) ([]string, error) {
	chunks, _ := s.GetAllChunks(ctx)
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	return contents, nil
}

func (s *MemoryStore) GetAllMetadata(ctx context.Context) ([]domain.ChunkMetadata, error) {
	chunks, _ := s.GetAllChunks(ctx)
	metas := make([]domain.ChunkMetadata, len(chunks))
	for i, c := range chunks {
		metas[i] = c.Metadata()
	}
	return metas, nil
}

func (s *MemoryStore) IsEmpty(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) == 0, nil
}

func (s *MemoryStore) AsSemanticRetriever(k int) domain.Retriever {
	return domain.RetrieverFunc(func(ctx context.Context, query string) ([]domain.RetrievedDocument, error) {
		return s.search(ctx, query, k)
	})
}

func (s *MemoryStore) search(ctx context.Context, query string, k int) ([]domain.RetrievedDocument, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	type scored struct {
		chunk domain.TextChunk
		score float64
	}

	s.mu.RLock()
	candidates := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		candidates = append(candidates, scored{chunk: e.chunk, score: cosineSimilarity(vector, e.vector)})
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return chunkLess(candidates[i].chunk, candidates[j].chunk)
	})
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}

	docs := make([]domain.RetrievedDocument, len(candidates))
	for i, c := range candidates {
		docs[i] = domain.NewRetrievedDocument(c.chunk.Content, c.chunk.Metadata())
	}
	return docs, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func chunkLess(a, b domain.TextChunk) bool {
	if a.DocumentName != b.DocumentName {
		return a.DocumentName < b.DocumentName
	}
	return a.ChunkLocation < b.ChunkLocation
}

func sortChunks(chunks []domain.TextChunk) {
	sort.Slice(chunks, func(i, j int) bool { return chunkLess(chunks[i], chunks[j]) })
}

var _ domain.ChunkStore = (*MemoryStore)(nil)
