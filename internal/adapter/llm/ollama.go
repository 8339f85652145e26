package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pdf-rag/internal/domain"
)

const (
	ollamaChatModel      = "llama3.2"
	ollamaEmbeddingModel = "nomic-embed-text"
	ollamaKeepAlive      = "10m"
)

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model     string                 `json:"model"`
	Messages  []ollamaMessage        `json:"messages"`
	Stream    bool                   `json:"stream"`
	KeepAlive string                 `json:"keep_alive,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaChat sends prompts to Ollama's chat endpoint.
type OllamaChat struct {
	transport
	baseURL string
	model   string
}

// Generate sends the prompt as a single user message and returns the reply.
func (g *OllamaChat) Generate(ctx context.Context, prompt string) (string, error) {
	req := ollamaChatRequest{
		Model:     g.model,
		Messages:  []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:    false,
		KeepAlive: ollamaKeepAlive,
		Options: map[string]interface{}{
			"temperature": 0.0,
		},
	}

	start := time.Now()
	var resp ollamaChatResponse
	if err := g.postJSON(ctx, g.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	g.logger.Info("ollama_generate_completed",
		slog.String("model", g.model),
		slog.Bool("done", resp.Done),
		slog.Duration("elapsed", time.Since(start)),
	)
	return strings.TrimSpace(resp.Message.Content), nil
}

func (g *OllamaChat) Version() string {
	return g.model
}

// OllamaEmbedder calls /api/embed.
type OllamaEmbedder struct {
	transport
	baseURL string
	model   string
}

func (e *OllamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Info("ollama_embed_started",
		slog.Int("text_count", len(texts)),
		slog.String("model", e.model),
	)
	start := time.Now()

	var resp ollamaEmbedResponse
	if err := e.postJSON(ctx, e.baseURL+"/api/embed", nil, ollamaEmbedRequest{Model: e.model, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}

	e.logger.Info("ollama_embed_completed",
		slog.Int("embedding_count", len(resp.Embeddings)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp.Embeddings, nil
}

func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OllamaEmbedder) Version() string {
	return e.model
}

var (
	_ domain.ChatModel = (*OllamaChat)(nil)
	_ domain.Embedder  = (*OllamaEmbedder)(nil)
)
