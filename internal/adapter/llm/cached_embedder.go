package llm

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"pdf-rag/internal/domain"
)

// CachedEmbedder memoises query embeddings. Document embeddings always go to
// the wrapped embedder.
type CachedEmbedder struct {
	inner domain.Embedder
	cache *expirable.LRU[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU of size entries that expire after ttl.
func NewCachedEmbedder(inner domain.Embedder, size int, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedDocuments(ctx, texts)
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

func (c *CachedEmbedder) Version() string {
	return c.inner.Version()
}

var _ domain.Embedder = (*CachedEmbedder)(nil)
