package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"pdf-rag/internal/domain"
	"pdf-rag/internal/infra/metrics"
)

// RAGService owns the current pipeline and swaps in a fresh one on Rebuild.
// In-flight invocations finish on the pipeline they started with.
type RAGService struct {
	models   map[string]domain.ChatModel
	prompt   *PromptTemplate
	keyword  domain.RetrieverBuilder
	semantic domain.RetrieverBuilder
	logger   *slog.Logger

	current   atomic.Pointer[RAGPipeline]
	rebuildMu sync.Mutex
}

// NewRAGService builds the initial pipeline. It fails if either retriever cannot be built.
func NewRAGService(
	ctx context.Context,
	models map[string]domain.ChatModel,
	prompt *PromptTemplate,
	keyword, semantic domain.RetrieverBuilder,
	logger *slog.Logger,
) (*RAGService, error) {
	s := &RAGService{
		models:   models,
		prompt:   prompt,
		keyword:  keyword,
		semantic: semantic,
		logger:   logger,
	}
	if err := s.Rebuild(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Rebuild rebuilds both retrievers from the store and publishes the new pipeline.
// On failure the previous pipeline stays in service.
func (s *RAGService) Rebuild(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()
	pipeline, err := s.build(ctx)
	metrics.RecordRebuild(err)
	if err != nil {
		s.logger.ErrorContext(ctx, "rag_rebuild_failed", slog.String("error", err.Error()))
		return err
	}
	s.current.Store(&pipeline)
	s.logger.InfoContext(ctx, "rag_rebuild_completed", slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *RAGService) build(ctx context.Context) (RAGPipeline, error) {
	keyword, err := s.keyword.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build keyword retriever: %w", err)
	}
	semantic, err := s.semantic.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build semantic retriever: %w", err)
	}
	return NewRAGPipeline(s.models, s.prompt, keyword, semantic, s.logger), nil
}

// Invoke answers question with the current pipeline.
func (s *RAGService) Invoke(ctx context.Context, question, modelName string) (*domain.RAGAnswer, error) {
	return (*s.current.Load()).Invoke(ctx, question, modelName)
}

// Models returns the configured chat model names.
func (s *RAGService) Models() []string {
	names := make([]string, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ RAGPipeline = (*RAGService)(nil)
