package llm

import (
	"context"
	"fmt"
	"strings"

	"pdf-rag/internal/domain"
)

const (
	openAIBaseURL        = "https://api.openai.com"
	openAIChatModel      = "gpt-4o-mini"
	openAIEmbeddingModel = "text-embedding-3-small"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// OpenAIChat generates answers with the chat completions endpoint.
type OpenAIChat struct {
	transport
	baseURL string
	apiKey  string
	model   string
}

func (c *OpenAIChat) Generate(ctx context.Context, prompt string) (string, error) {
	req := openAIChatRequest{
		Model:    c.model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	}
	var resp openAIChatResponse
	if err := c.postJSON(ctx, c.baseURL+"/v1/chat/completions", bearer(c.apiKey), req, &resp); err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIChat) Version() string {
	return c.model
}

// OpenAIEmbedder embeds text with the embeddings endpoint.
type OpenAIEmbedder struct {
	transport
	baseURL string
	apiKey  string
	model   string
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	req := openAIEmbeddingRequest{Model: e.model, Input: texts}
	var resp openAIEmbeddingResponse
	if err := e.postJSON(ctx, e.baseURL+"/v1/embeddings", bearer(e.apiKey), req, &resp); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) Version() string {
	return e.model
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

var (
	_ domain.ChatModel = (*OpenAIChat)(nil)
	_ domain.Embedder  = (*OpenAIEmbedder)(nil)
)
