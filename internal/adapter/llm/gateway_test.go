package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestGateway(env map[string]string) *Gateway {
	g := NewGateway(http.DefaultClient, 0, testLogger())
	g.getenv = func(k string) string { return env[k] }
	return g
}

// recordingServer captures the last request and replies with a fixed body.
type recordingServer struct {
	mu      sync.Mutex
	path    string
	headers http.Header
	body    map[string]any
	reply   any
	status  int
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = r.URL.Path
	s.headers = r.Header.Clone()
	s.body = map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&s.body)
	if s.status != 0 {
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.reply)
}

func startServer(t *testing.T, reply any) (*recordingServer, string) {
	t.Helper()
	rec := &recordingServer{reply: reply}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return rec, srv.URL
}

func TestGateway_MissingCredential(t *testing.T) {
	g := newTestGateway(map[string]string{})

	tests := []struct {
		provider string
	}{
		{domain.ProviderOpenAI},
		{domain.ProviderGemini},
		{domain.ProviderOllama},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			_, err := g.NewChatModel(domain.ProviderConfig{Provider: tt.provider})
			assert.ErrorIs(t, err, domain.ErrMissingCredential)

			_, err = g.NewEmbedder(domain.ProviderConfig{Provider: tt.provider})
			assert.ErrorIs(t, err, domain.ErrMissingCredential)
		})
	}
}

func TestGateway_UnknownProvider(t *testing.T) {
	g := newTestGateway(map[string]string{})
	_, err := g.NewChatModel(domain.ProviderConfig{Provider: "anthropic"})
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestGateway_Defaults(t *testing.T) {
	g := newTestGateway(map[string]string{
		EnvOpenAIKey: "sk-test",
		EnvGoogleKey: "g-test",
		EnvOllamaURL: "http://ollama:11434/",
	})

	chat, err := g.NewChatModel(domain.ProviderConfig{Provider: domain.ProviderOpenAI})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", chat.Version())

	chat, err = g.NewChatModel(domain.ProviderConfig{Provider: domain.ProviderGemini})
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-flash", chat.Version())

	chat, err = g.NewChatModel(domain.ProviderConfig{Provider: domain.ProviderOllama})
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", chat.Version())
	assert.Equal(t, "http://ollama:11434", chat.(*OllamaChat).baseURL)

	emb, err := g.NewEmbedder(domain.ProviderConfig{Provider: domain.ProviderOpenAI})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", emb.Version())
}

func TestGateway_NewChatModels(t *testing.T) {
	g := newTestGateway(map[string]string{EnvOpenAIKey: "sk-test"})

	models, err := g.NewChatModels(map[string]domain.ProviderConfig{
		"openai": {Provider: domain.ProviderOpenAI},
	})
	require.NoError(t, err)
	assert.Contains(t, models, "openai")

	_, err = g.NewChatModels(map[string]domain.ProviderConfig{
		"gemini": {Provider: domain.ProviderGemini},
	})
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
}

func TestOpenAI(t *testing.T) {
	ctx := context.Background()

	t.Run("Chat sends bearer token and trims the reply", func(t *testing.T) {
		rec, url := startServer(t, map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": "  Revenue grew.\n"}}},
		})
		g := newTestGateway(map[string]string{EnvOpenAIKey: "sk-test"})
		chat, err := g.NewChatModel(domain.ProviderConfig{Provider: domain.ProviderOpenAI, BaseURL: url})
		require.NoError(t, err)

		answer, err := chat.Generate(ctx, "How did revenue change?")
		require.NoError(t, err)
		assert.Equal(t, "Revenue grew.", answer)
		assert.Equal(t, "/v1/chat/completions", rec.path)
		assert.Equal(t, "Bearer sk-test", rec.headers.Get("Authorization"))
		assert.Equal(t, "gpt-4o-mini", rec.body["model"])
	})

	t.Run("Embeddings are reordered by index", func(t *testing.T) {
		rec, url := startServer(t, map[string]any{
			"data": []any{
				map[string]any{"index": 1, "embedding": []float32{0, 1}},
				map[string]any{"index": 0, "embedding": []float32{1, 0}},
			},
		})
		g := newTestGateway(map[string]string{EnvOpenAIKey: "sk-test"})
		emb, err := g.NewEmbedder(domain.ProviderConfig{Provider: domain.ProviderOpenAI, BaseURL: url})
		require.NoError(t, err)

		vectors, err := emb.EmbedDocuments(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
		assert.Equal(t, "/v1/embeddings", rec.path)
	})

	t.Run("Error status surfaces", func(t *testing.T) {
		rec, url := startServer(t, nil)
		rec.status = http.StatusTooManyRequests
		g := newTestGateway(map[string]string{EnvOpenAIKey: "sk-test"})
		chat, err := g.NewChatModel(domain.ProviderConfig{Provider: domain.ProviderOpenAI, BaseURL: url})
		require.NoError(t, err)

		_, err = chat.Generate(ctx, "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})
}

func TestGemini(t *testing.T) {
	ctx := context.Background()

	t.Run("Generate uses the api key header", func(t *testing.T) {
		rec, url := startServer(t, map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{
				map[string]any{"text": "Emissions "},
				map[string]any{"text": "fell."},
			}}}},
		})
		g := newTestGateway(map[string]string{EnvGoogleKey: "g-test"})
		chat, err := g.NewChatModel(domain.ProviderConfig{Provider: domain.ProviderGemini, BaseURL: url})
		require.NoError(t, err)

		answer, err := chat.Generate(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, "Emissions fell.", answer)
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", rec.path)
		assert.Equal(t, "g-test", rec.headers.Get("x-goog-api-key"))
	})

	t.Run("Query embedding uses embedContent", func(t *testing.T) {
		rec, url := startServer(t, map[string]any{"embedding": map[string]any{"values": []float32{0.5, 0.5}}})
		g := newTestGateway(map[string]string{EnvGoogleKey: "g-test"})
		emb, err := g.NewEmbedder(domain.ProviderConfig{Provider: domain.ProviderGemini, BaseURL: url})
		require.NoError(t, err)

		v, err := emb.EmbedQuery(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.5, 0.5}, v)
		assert.Equal(t, "/models/embedding-001:embedContent", rec.path)
		assert.Equal(t, "RETRIEVAL_QUERY", rec.body["taskType"])
	})

	t.Run("Document embedding uses batchEmbedContents", func(t *testing.T) {
		rec, url := startServer(t, map[string]any{"embeddings": []any{
			map[string]any{"values": []float32{1}},
			map[string]any{"values": []float32{2}},
		}})
		g := newTestGateway(map[string]string{EnvGoogleKey: "g-test"})
		emb, err := g.NewEmbedder(domain.ProviderConfig{Provider: domain.ProviderGemini, BaseURL: url})
		require.NoError(t, err)

		vectors, err := emb.EmbedDocuments(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1}, {2}}, vectors)
		assert.Equal(t, "/models/embedding-001:batchEmbedContents", rec.path)
	})
}

func TestOllama(t *testing.T) {
	ctx := context.Background()

	t.Run("Base URL comes from the credential variable", func(t *testing.T) {
		rec, url := startServer(t, map[string]any{
			"message": map[string]any{"role": "assistant", "content": "ok\n"},
			"done":    true,
		})
		g := newTestGateway(map[string]string{EnvOllamaURL: url})
		chat, err := g.NewChatModel(domain.ProviderConfig{Provider: domain.ProviderOllama})
		require.NoError(t, err)

		answer, err := chat.Generate(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, "ok", answer)
		assert.Equal(t, "/api/chat", rec.path)
		assert.Equal(t, false, rec.body["stream"])
	})

	t.Run("Embed posts every input", func(t *testing.T) {
		rec, url := startServer(t, map[string]any{"embeddings": [][]float32{{1, 2}}})
		g := newTestGateway(map[string]string{})
		emb, err := g.NewEmbedder(domain.ProviderConfig{Provider: domain.ProviderOllama, BaseURL: url})
		require.NoError(t, err)

		v, err := emb.EmbedQuery(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, v)
		assert.Equal(t, "/api/embed", rec.path)
		assert.Equal(t, []any{"q"}, rec.body["input"])
	})
}

func TestGateway_RateLimiterHonoursContext(t *testing.T) {
	_, url := startServer(t, map[string]any{"embeddings": [][]float32{{1}}})
	g := NewGateway(http.DefaultClient, 0.001, testLogger())
	g.getenv = func(string) string { return "" }
	emb, err := g.NewEmbedder(domain.ProviderConfig{Provider: domain.ProviderOllama, BaseURL: url})
	require.NoError(t, err)

	// The first call consumes the only token.
	_, err = emb.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = emb.EmbedQuery(ctx, "q")
	assert.Error(t, err)
}

type countingEmbedder struct {
	mu      sync.Mutex
	queries int
	err     error
}

func (c *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) Version() string { return "counting" }

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("Repeated queries hit the cache", func(t *testing.T) {
		inner := &countingEmbedder{}
		cached := NewCachedEmbedder(inner, 8, time.Minute)

		for i := 0; i < 3; i++ {
			v, err := cached.EmbedQuery(ctx, "revenue")
			require.NoError(t, err)
			assert.Equal(t, []float32{7}, v)
		}
		assert.Equal(t, 1, inner.queries)
		assert.Equal(t, "counting", cached.Version())
	})

	t.Run("Errors are not cached", func(t *testing.T) {
		inner := &countingEmbedder{err: errors.New("quota")}
		cached := NewCachedEmbedder(inner, 8, time.Minute)

		_, err := cached.EmbedQuery(ctx, "revenue")
		assert.Error(t, err)
		_, err = cached.EmbedQuery(ctx, "revenue")
		assert.Error(t, err)
		assert.Equal(t, 2, inner.queries)
	})
}
