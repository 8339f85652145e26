package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/time/rate"

	"pdf-rag/internal/domain"
)

// Credential environment variables per provider.
const (
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvGoogleKey = "GOOGLE_API_KEY"
	// EnvOllamaURL carries the Ollama server base URL rather than a secret.
	EnvOllamaURL = "OLLAMA_API_KEY"
)

// Gateway builds chat models and embedders by provider name. Credentials are
// read from the environment when a model is constructed.
type Gateway struct {
	transport
	getenv func(string) string
}

// NewGateway creates a gateway sharing one HTTP client and one request
// limiter across every model it builds. A zero rps disables throttling.
func NewGateway(client *http.Client, rps float64, logger *slog.Logger) *Gateway {
	var limiter *rate.Limiter
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Gateway{
		transport: transport{client: client, limiter: limiter, logger: logger},
		getenv:    os.Getenv,
	}
}

func (g *Gateway) credential(name string) (string, error) {
	v := strings.TrimSpace(g.getenv(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s is not set", domain.ErrMissingCredential, name)
	}
	return v, nil
}

func (g *Gateway) ollamaURL(cfg domain.ProviderConfig) (string, error) {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/"), nil
	}
	url, err := g.credential(EnvOllamaURL)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(url, "/"), nil
}

func baseURLOr(cfg domain.ProviderConfig, fallback string) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return fallback
}

func modelOr(cfg domain.ProviderConfig, fallback string) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return fallback
}

// NewChatModel returns a chat model for cfg.Provider.
func (g *Gateway) NewChatModel(cfg domain.ProviderConfig) (domain.ChatModel, error) {
	switch cfg.Provider {
	case domain.ProviderOpenAI:
		key, err := g.credential(EnvOpenAIKey)
		if err != nil {
			return nil, err
		}
		return &OpenAIChat{
			transport: g.transport,
			baseURL:   baseURLOr(cfg, openAIBaseURL),
			apiKey:    key,
			model:     modelOr(cfg, openAIChatModel),
		}, nil
	case domain.ProviderGemini:
		key, err := g.credential(EnvGoogleKey)
		if err != nil {
			return nil, err
		}
		return &GeminiChat{
			transport: g.transport,
			baseURL:   baseURLOr(cfg, geminiBaseURL),
			apiKey:    key,
			model:     modelOr(cfg, geminiChatModel),
		}, nil
	case domain.ProviderOllama:
		url, err := g.ollamaURL(cfg)
		if err != nil {
			return nil, err
		}
		return &OllamaChat{
			transport: g.transport,
			baseURL:   url,
			model:     modelOr(cfg, ollamaChatModel),
		}, nil
	default:
		return nil, fmt.Errorf("%w: provider %q", domain.ErrUnknownStrategy, cfg.Provider)
	}
}

// NewEmbedder returns an embedder for cfg.Provider.
func (g *Gateway) NewEmbedder(cfg domain.ProviderConfig) (domain.Embedder, error) {
	switch cfg.Provider {
	case domain.ProviderOpenAI:
		key, err := g.credential(EnvOpenAIKey)
		if err != nil {
			return nil, err
		}
		return &OpenAIEmbedder{
			transport: g.transport,
			baseURL:   baseURLOr(cfg, openAIBaseURL),
			apiKey:    key,
			model:     modelOr(cfg, openAIEmbeddingModel),
		}, nil
	case domain.ProviderGemini:
		key, err := g.credential(EnvGoogleKey)
		if err != nil {
			return nil, err
		}
		return &GeminiEmbedder{
			transport: g.transport,
			baseURL:   baseURLOr(cfg, geminiBaseURL),
			apiKey:    key,
			model:     modelOr(cfg, geminiEmbeddingModel),
		}, nil
	case domain.ProviderOllama:
		url, err := g.ollamaURL(cfg)
		if err != nil {
			return nil, err
		}
		return &OllamaEmbedder{
			transport: g.transport,
			baseURL:   url,
			model:     modelOr(cfg, ollamaEmbeddingModel),
		}, nil
	default:
		return nil, fmt.Errorf("%w: provider %q", domain.ErrUnknownStrategy, cfg.Provider)
	}
}

// NewChatModels builds every entry of a model catalogue keyed by model name.
func (g *Gateway) NewChatModels(catalogue map[string]domain.ProviderConfig) (map[string]domain.ChatModel, error) {
	models := make(map[string]domain.ChatModel, len(catalogue))
	for name, cfg := range catalogue {
		m, err := g.NewChatModel(cfg)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
		models[name] = m
	}
	return models, nil
}
