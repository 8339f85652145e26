package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"pdf-rag/internal/domain"
	"pdf-rag/internal/infra/metrics"
)

var tracer = otel.Tracer("pdf-rag/usecase")

// contextSeparator joins retrieved chunk contents inside the prompt.
const contextSeparator = "\n\n"

// RAGPipeline answers a question from keyword and semantic retrieval results.
type RAGPipeline interface {
	Invoke(ctx context.Context, question, modelName string) (*domain.RAGAnswer, error)
}

type ragPipeline struct {
	models   map[string]domain.ChatModel
	prompt   *PromptTemplate
	keyword  domain.Retriever
	semantic domain.Retriever
	logger   *slog.Logger
}

// NewRAGPipeline wires already-built retrievers to the chat models. The
// pipeline keeps no per-request state and is safe for concurrent use.
func NewRAGPipeline(
	models map[string]domain.ChatModel,
	prompt *PromptTemplate,
	keyword, semantic domain.Retriever,
	logger *slog.Logger,
) RAGPipeline {
	return &ragPipeline{
		models:   models,
		prompt:   prompt,
		keyword:  keyword,
		semantic: semantic,
		logger:   logger,
	}
}

// modelLabel keeps the metric label set bounded by the configured catalogue.
func (p *ragPipeline) modelLabel(name string) string {
	if _, ok := p.models[name]; ok {
		return name
	}
	return metrics.UnknownModel
}

func (p *ragPipeline) Invoke(ctx context.Context, question, modelName string) (*domain.RAGAnswer, error) {
	ctx, span := tracer.Start(ctx, "rag.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("rag.model", modelName))

	start := time.Now()
	answer, err := p.invoke(ctx, question, modelName)
	metrics.RecordInvoke(p.modelLabel(modelName), err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "rag_invoke_failed",
			slog.String("model", modelName),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, fmt.Errorf("%w: %w", domain.ErrInvocationFailure, err)
	}

	p.logger.InfoContext(ctx, "rag_invoke_completed",
		slog.String("model", modelName),
		slog.Int("answer_length", len(answer.Answer)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return answer, nil
}

func (p *ragPipeline) invoke(ctx context.Context, question, modelName string) (*domain.RAGAnswer, error) {
	model, ok := p.models[modelName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownModel, modelName)
	}

	var keywordDocs, semanticDocs []domain.RetrievedDocument
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := p.retrieve(gctx, "keyword", p.keyword, question)
		if err != nil {
			return fmt.Errorf("keyword retrieval: %w", err)
		}
		keywordDocs = docs
		return nil
	})
	g.Go(func() error {
		docs, err := p.retrieve(gctx, "semantic", p.semantic, question)
		if err != nil {
			return fmt.Errorf("semantic retrieval: %w", err)
		}
		semanticDocs = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := make([]domain.RetrievedDocument, 0, len(keywordDocs)+len(semanticDocs))
	combined = append(combined, keywordDocs...)
	combined = append(combined, semanticDocs...)
	prompt := p.prompt.Render(domain.JoinContents(combined, contextSeparator), question)

	text, err := model.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate with %s: %w", modelName, err)
	}

	return domain.NewRAGAnswer(strings.TrimSpace(text), keywordDocs, semanticDocs), nil
}

func (p *ragPipeline) retrieve(ctx context.Context, strategy string, r domain.Retriever, question string) ([]domain.RetrievedDocument, error) {
	ctx, span := tracer.Start(ctx, "rag.retrieve."+strategy)
	defer span.End()

	start := time.Now()
	docs, err := r.Retrieve(ctx, question)
	metrics.RecordRetrieval(strategy, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("rag.documents", len(docs)))
	return docs, nil
}
