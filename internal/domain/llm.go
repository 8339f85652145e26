package domain

import "context"

// Provider names understood by the LLM gateway.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// ProviderConfig selects a provider and model for chat or embedding.
type ProviderConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// BaseURL overrides the provider endpoint. Empty means the provider default.
	BaseURL string `yaml:"base_url"`
}

// ChatModel turns a rendered prompt into completion text.
type ChatModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Version() string
}

// Embedder turns texts into embedding vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Version() string
}
