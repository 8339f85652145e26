package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pdf-rag/internal/domain"
	"pdf-rag/internal/infra/metrics"
)

// DataPipeline segments documents and keeps the chunk store in sync with them.
// It never rebuilds retrievers; callers decide when to do that.
type DataPipeline interface {
	AddDocument(ctx context.Context, path string) ([]domain.TextChunk, error)
	RemoveDocument(ctx context.Context, path string) error
	ListDocuments(ctx context.Context) ([]string, error)
}

type dataPipeline struct {
	store     domain.ChunkStore
	segmentor domain.Segmentor
	logger    *slog.Logger
}

func NewDataPipeline(store domain.ChunkStore, segmentor domain.Segmentor, logger *slog.Logger) DataPipeline {
	return &dataPipeline{store: store, segmentor: segmentor, logger: logger}
}

// AddDocument reads the file at path and stores its chunks under the file's
// base name, replacing whatever was stored under that name before. A document
// that yields no chunks is rejected with domain.ErrEmptyDocument and the store
// is left untouched.
func (p *dataPipeline) AddDocument(ctx context.Context, path string) ([]domain.TextChunk, error) {
	chunks, err := p.addDocument(ctx, path)
	metrics.RecordIngest("add", err)
	return chunks, err
}

func (p *dataPipeline) addDocument(ctx context.Context, path string) ([]domain.TextChunk, error) {
	start := time.Now()
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	chunks, err := p.segmentor.Segment(name, string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to segment document %s: %w", name, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyDocument, name)
	}

	if err := p.store.DeleteDocument(ctx, name); err != nil {
		return nil, fmt.Errorf("failed to replace chunks for %s: %w", name, err)
	}
	if err := p.store.AddDocuments(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks for %s: %w", name, err)
	}

	metrics.RecordChunks(len(chunks))
	p.logger.InfoContext(ctx, "document_added",
		slog.String("document", name),
		slog.String("segmentor", p.segmentor.Name()),
		slog.Int("chunk_count", len(chunks)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return chunks, nil
}

// RemoveDocument deletes the chunks stored under the base name of path.
func (p *dataPipeline) RemoveDocument(ctx context.Context, path string) error {
	name := filepath.Base(path)
	err := p.store.DeleteDocument(ctx, name)
	metrics.RecordIngest("remove", err)
	if err != nil {
		return fmt.Errorf("failed to remove document %s: %w", name, err)
	}
	p.logger.InfoContext(ctx, "document_removed", slog.String("document", name))
	return nil
}

func (p *dataPipeline) ListDocuments(ctx context.Context) ([]string, error) {
	docs, err := p.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}
