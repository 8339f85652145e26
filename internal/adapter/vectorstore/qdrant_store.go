package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf-rag/internal/domain"
)

const (
	// DefaultCollection is the Qdrant collection used when none is configured.
	DefaultCollection = "rag_chunks"
	scrollPageSize    = 256
)

// QdrantConfig configures the Qdrant REST backend.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
}

// QdrantStore is a chunk store backed by the Qdrant REST API.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
	embedder   domain.Embedder
	logger     *slog.Logger

	mu      sync.Mutex
	created bool
}

// NewQdrantStore creates a store. The collection is created lazily on the
// first write because its vector size comes from the embedder.
func NewQdrantStore(cfg QdrantConfig, client *http.Client, embedder domain.Embedder, logger *slog.Logger) *QdrantStore {
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     client,
		embedder:   embedder,
		logger:     logger,
	}
}

// pointID maps a chunk id onto the UUID space Qdrant requires.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

type qdrantPayload struct {
	ChunkID  string `json:"chunk_id"`
	Source   string `json:"source"`
	Location int    `json:"location"`
	Content  string `json:"content"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector,omitempty"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

func sourceFilter(source string) *qdrantFilter {
	cond := qdrantCondition{Key: "source"}
	cond.Match.Value = source
	return &qdrantFilter{Must: []qdrantCondition{cond}}
}

func (s *QdrantStore) AddDocuments(ctx context.Context, chunks []domain.TextChunk) error {
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

	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]qdrantPoint, len(chunks))
	for i, c := range chunks {
		points[i] = qdrantPoint{
			ID:     pointID(c.ID()),
			Vector: vectors[i],
			Payload: qdrantPayload{
				ChunkID:  c.ID(),
				Source:   c.DocumentName,
				Location: c.ChunkLocation,
				Content:  c.Content,
			},
		}
	}

	start := time.Now()
	body := map[string]any{"points": points}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return err
	}
	s.logger.Info("qdrant_points_upserted",
		slog.Int("point_count", len(points)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, documentName string) error {
	points, err := s.scroll(ctx, sourceFilter(documentName))
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	body := map[string]any{"points": ids}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return err
	}
	s.logger.Info("qdrant_document_deleted",
		slog.String("document", documentName),
		slog.Int("point_count", len(ids)),
	)
	return nil
}

func (s *QdrantStore) ListDocuments(ctx context.Context) ([]string, error) {
	chunks, err := s.GetAllChunks(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	docs := []string{}
	for _, c := range chunks {
		if _, ok := seen[c.DocumentName]; ok {
			continue
		}
		seen[c.DocumentName] = struct{}{}
		docs = append(docs, c.DocumentName)
	}
	return docs, nil
}

func (s *QdrantStore) GetAllChunks(ctx context.Context) ([]domain.TextChunk, error) {
	points, err := s.scroll(ctx, nil)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.TextChunk, len(points))
	for i, p := range points {
		chunks[i] = domain.TextChunk{
			Content:       p.Payload.Content,
			DocumentName:  p.Payload.Source,
			ChunkLocation: p.Payload.Location,
		}
	}
	sortChunks(chunks)
	return chunks, nil
}

func (s *QdrantStore) GetAllContents(ctx context.Context) ([]string, error) {
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

func (s *QdrantStore) GetAllMetadata(ctx context.Context) ([]domain.ChunkMetadata, error) {
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

// IsEmpty reads a single point. A missing collection counts as empty.
func (s *QdrantStore) IsEmpty(ctx context.Context) (bool, error) {
	req := map[string]any{
		"limit":        1,
		"with_payload": false,
		"with_vector":  false,
	}
	var resp struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
	}
	found, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp)
	if err != nil {
		return false, err
	}
	return !found || len(resp.Result.Points) == 0, nil
}

func (s *QdrantStore) AsSemanticRetriever(k int) domain.Retriever {
	return domain.RetrieverFunc(func(ctx context.Context, query string) ([]domain.RetrievedDocument, error) {
		return s.search(ctx, query, k)
	})
}

func (s *QdrantStore) search(ctx context.Context, query string, k int) ([]domain.RetrievedDocument, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	found, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.RetrievedDocument{}, nil
	}

	docs := make([]domain.RetrievedDocument, 0, len(resp.Result))
	for _, r := range resp.Result {
		docs = append(docs, domain.NewRetrievedDocument(r.Payload.Content, domain.ChunkMetadata{
			Source:   r.Payload.Source,
			Location: r.Payload.Location,
		}))
	}
	return docs, nil
}

func (s *QdrantStore) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, s.baseURL+"/collections", nil, nil)
	return err
}

// scroll pages through every point matching filter. A missing collection reads as empty.
func (s *QdrantStore) scroll(ctx context.Context, filter *qdrantFilter) ([]qdrantPoint, error) {
	var (
		points []qdrantPoint
		offset any
	)
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if filter != nil {
			req["filter"] = filter
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []qdrantPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		found, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		points = append(points, resp.Result.Points...)
		if resp.Result.NextPageOffset == nil {
			return points, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}

	found, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err != nil {
		return err
	}
	if !found {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return err
		}
		s.logger.Info("qdrant_collection_created",
			slog.String("collection", s.collection),
			slog.Int("dimension", dimension),
		)
	}
	s.created = true
	return nil
}

func (s *QdrantStore) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.baseURL, s.collection, suffix)
}

// do sends a JSON request. It returns found=false on 404 and decodes the
// response into out when out is non-nil.
func (s *QdrantStore) do(ctx context.Context, method, url string, body any, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("failed to marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return false, fmt.Errorf("failed to create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: qdrant %s %s: %w", domain.ErrStoreUnavailable, method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: qdrant %s %s returned %d: %s", domain.ErrStoreUnavailable, method, url, resp.StatusCode, string(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return true, nil
}

var _ domain.ChunkStore = (*QdrantStore)(nil)
