package llm

import (
	"context"
	"fmt"
	"strings"

	"pdf-rag/internal/domain"
)

const (
	geminiBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	geminiChatModel      = "gemini-1.5-flash"
	geminiEmbeddingModel = "models/embedding-001"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiEmbedRequest struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType,omitempty"`
}

type geminiBatchEmbedRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiEmbedding struct {
	Values []float32 `json:"values"`
}

type geminiEmbedResponse struct {
	Embedding geminiEmbedding `json:"embedding"`
}

type geminiBatchEmbedResponse struct {
	Embeddings []geminiEmbedding `json:"embeddings"`
}

// geminiModelPath accepts both "embedding-001" and "models/embedding-001".
func geminiModelPath(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// GeminiChat generates answers with generateContent.
type GeminiChat struct {
	transport
	baseURL string
	apiKey  string
	model   string
}

func (c *GeminiChat) Generate(ctx context.Context, prompt string) (string, error) {
	req := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	url := fmt.Sprintf("%s/%s:generateContent", c.baseURL, geminiModelPath(c.model))

	var resp geminiGenerateResponse
	if err := c.postJSON(ctx, url, googleKey(c.apiKey), req, &resp); err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini generate: no candidates")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *GeminiChat) Version() string {
	return c.model
}

// GeminiEmbedder embeds documents with batchEmbedContents and queries with embedContent.
type GeminiEmbedder struct {
	transport
	baseURL string
	apiKey  string
	model   string
}

func (e *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	model := geminiModelPath(e.model)
	requests := make([]geminiEmbedRequest, len(texts))
	for i, text := range texts {
		requests[i] = geminiEmbedRequest{
			Model:    model,
			Content:  geminiContent{Parts: []geminiPart{{Text: text}}},
			TaskType: "RETRIEVAL_DOCUMENT",
		}
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents", e.baseURL, model)
	var resp geminiBatchEmbedResponse
	if err := e.postJSON(ctx, url, googleKey(e.apiKey), geminiBatchEmbedRequest{Requests: requests}, &resp); err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini batch embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	model := geminiModelPath(e.model)
	req := geminiEmbedRequest{
		Model:    model,
		Content:  geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType: "RETRIEVAL_QUERY",
	}
	url := fmt.Sprintf("%s/%s:embedContent", e.baseURL, model)

	var resp geminiEmbedResponse
	if err := e.postJSON(ctx, url, googleKey(e.apiKey), req, &resp); err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	return resp.Embedding.Values, nil
}

func (e *GeminiEmbedder) Version() string {
	return e.model
}

func googleKey(key string) map[string]string {
	return map[string]string{"x-goog-api-key": key}
}

var (
	_ domain.ChatModel = (*GeminiChat)(nil)
	_ domain.Embedder  = (*GeminiEmbedder)(nil)
)
