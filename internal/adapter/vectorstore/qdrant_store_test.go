package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/domain"
)

// fakeQdrant serves the handful of REST endpoints the store uses.
type fakeQdrant struct {
	mu         sync.Mutex
	collection bool
	dimension  int
	points     map[string]qdrantPoint
	apiKeys    []string
	pageSize   int
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{points: make(map[string]qdrantPoint), pageSize: 1}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/collections":
		writeJSON(w, map[string]any{"result": map[string]any{"collections": []any{}}})
	case r.Method == http.MethodGet && path == "/collections/test":
		if !f.collection {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{}})
	case r.Method == http.MethodPut && path == "/collections/test":
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.collection = true
		f.dimension = body.Vectors.Size
		writeJSON(w, map[string]any{"result": true})
	case !f.collection && strings.HasPrefix(path, "/collections/test/"):
		http.NotFound(w, r)
	case r.Method == http.MethodPut && path == "/collections/test/points":
		var body struct {
			Points []qdrantPoint `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.points[p.ID] = p
		}
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})
	case r.Method == http.MethodPost && path == "/collections/test/points/scroll":
		f.scroll(w, r)
	case r.Method == http.MethodPost && path == "/collections/test/points/delete":
		var body struct {
			Points []string `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, id := range body.Points {
			delete(f.points, id)
		}
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})
	case r.Method == http.MethodPost && path == "/collections/test/points/search":
		f.search(w, r)
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusBadRequest)
	}
}

func (f *fakeQdrant) sortedIDs(source string) []string {
	ids := make([]string, 0, len(f.points))
	for id, p := range f.points {
		if source != "" && p.Payload.Source != source {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeQdrant) scroll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Offset *string       `json:"offset"`
		Filter *qdrantFilter `json:"filter"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	source := ""
	if body.Filter != nil && len(body.Filter.Must) > 0 {
		source = body.Filter.Must[0].Match.Value
	}
	ids := f.sortedIDs(source)

	start := 0
	if body.Offset != nil {
		for i, id := range ids {
			if id == *body.Offset {
				start = i
				break
			}
		}
	}
	end := start + f.pageSize
	if end > len(ids) {
		end = len(ids)
	}

	page := make([]qdrantPoint, 0, end-start)
	for _, id := range ids[start:end] {
		p := f.points[id]
		p.Vector = nil
		page = append(page, p)
	}
	var next any
	if end < len(ids) {
		next = ids[end]
	}
	writeJSON(w, map[string]any{"result": map[string]any{"points": page, "next_page_offset": next}})
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Vector []float32 `json:"vector"`
		Limit  int       `json:"limit"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	type hit struct {
		Score   float64       `json:"score"`
		Payload qdrantPayload `json:"payload"`
	}
	hits := []hit{}
	for _, id := range f.sortedIDs("") {
		p := f.points[id]
		hits = append(hits, hit{Score: cosineSimilarity(body.Vector, p.Vector), Payload: p.Payload})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > body.Limit {
		hits = hits[:body.Limit]
	}
	writeJSON(w, map[string]any{"result": hits})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestQdrant(t *testing.T) (*fakeQdrant, *QdrantStore) {
	t.Helper()
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store := NewQdrantStore(QdrantConfig{URL: srv.URL + "/", APIKey: "secret", Collection: "test"},
		srv.Client(), &keywordEmbedder{}, testLogger())
	return fake, store
}

func TestQdrantStore_EmptyCollectionReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	_, store := newTestQdrant(t)

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	results, err := store.AsSemanticRetriever(1).Retrieve(ctx, "revenue")
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, store.DeleteDocument(ctx, "doc1"))

	empty, err := store.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestQdrantStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	fake, store := newTestQdrant(t)

	require.NoError(t, store.AddDocuments(ctx, seedChunks()))
	require.NoError(t, store.AddDocuments(ctx, []domain.TextChunk{
		{Content: "Water use flat", DocumentName: "a.md", ChunkLocation: 0},
	}))

	assert.True(t, fake.collection)
	assert.Equal(t, 2, fake.dimension)
	assert.Len(t, fake.points, 3)
	for _, key := range fake.apiKeys {
		assert.Equal(t, "secret", key)
	}

	t.Run("IsEmpty sees stored points", func(t *testing.T) {
		empty, err := store.IsEmpty(ctx)
		require.NoError(t, err)
		assert.False(t, empty)
	})

	t.Run("Scroll pages are merged and sorted", func(t *testing.T) {
		contents, err := store.GetAllContents(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Water use flat", "Revenue grew 10%", "Emissions fell 5%"}, contents)

		metas, err := store.GetAllMetadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.ChunkMetadata{Source: "doc1", Location: 1}, metas[2])

		docs, err := store.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.md", "doc1"}, docs)
	})

	t.Run("Same chunk id upserts the same point", func(t *testing.T) {
		require.NoError(t, store.AddDocuments(ctx, []domain.TextChunk{
			{Content: "Revenue grew 12%", DocumentName: "doc1", ChunkLocation: 0},
		}))
		assert.Len(t, fake.points, 3)
		assert.Equal(t, "Revenue grew 12%", fake.points[pointID("doc1_0")].Payload.Content)
	})

	t.Run("Search returns k nearest", func(t *testing.T) {
		docs, err := store.AsSemanticRetriever(1).Retrieve(ctx, "emissions")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "doc1 (Chunk: 1)", docs[0].Provenance())
	})

	t.Run("Delete removes only the named document", func(t *testing.T) {
		require.NoError(t, store.DeleteDocument(ctx, "doc1"))
		docs, err := store.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.md"}, docs)
	})
}

func TestQdrantStore_ServerErrorIsStoreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: srv.URL}, srv.Client(), &keywordEmbedder{}, testLogger())

	_, err := store.ListDocuments(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, store.Ping(context.Background()), domain.ErrStoreUnavailable)
}

func TestPointIDIsStable(t *testing.T) {
	assert.Equal(t, pointID("doc1_0"), pointID("doc1_0"))
	assert.NotEqual(t, pointID("doc1_0"), pointID("doc1_1"))
}
