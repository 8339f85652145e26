package rag_http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"pdf-rag/internal/domain"
	"pdf-rag/internal/usecase"
)

const markdownExt = ".md"

// RAGService answers queries and refreshes its retrievers.
type RAGService interface {
	Invoke(ctx context.Context, question, modelName string) (*domain.RAGAnswer, error)
	Rebuild(ctx context.Context) error
}

// JobEnqueuer accepts ingest jobs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *domain.IngestJob) error
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	rag    RAGService
	data   usecase.DataPipeline
	jobs   JobEnqueuer
	store  Pinger
	logger *slog.Logger
}

func NewHandler(
	rag RAGService,
	data usecase.DataPipeline,
	jobs JobEnqueuer,
	store Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		rag:    rag,
		data:   data,
		jobs:   jobs,
		store:  store,
		logger: logger,
	}
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/query", h.Query)
	e.POST("/convert", h.Convert)
	e.DELETE("/delete_document/:name", h.DeleteDocument)
	e.GET("/get_rag_documents", h.ListDocuments)
	e.POST("/rebuild", h.Rebuild)
	e.GET("/healthz", h.Healthz)
	e.GET("/readyz", h.Readyz)
}

type QueryRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type QueryResponse struct {
	Answer           string `json:"answer"`
	SemanticContext  string `json:"semantic_context"`
	SemanticMetadata string `json:"semantic_metadata"`
	KeywordContext   string `json:"keyword_context"`
	KeywordMetadata  string `json:"keyword_metadata"`
}

type ConvertRequest struct {
	Name string `json:"name"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type documentsResponse struct {
	Documents []string `json:"documents"`
}

func errorJSON(ctx echo.Context, status int, msg string) error {
	return ctx.JSON(status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownModel):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Answer a question with hybrid retrieval
// (POST /query)
func (h *Handler) Query(ctx echo.Context) error {
	var req QueryRequest
	if err := ctx.Bind(&req); err != nil {
		return errorJSON(ctx, http.StatusBadRequest, "invalid request")
	}
	if strings.TrimSpace(req.Text) == "" {
		return errorJSON(ctx, http.StatusBadRequest, "text is required")
	}

	answer, err := h.rag.Invoke(ctx.Request().Context(), req.Text, req.Model)
	if err != nil {
		return errorJSON(ctx, statusFor(err), err.Error())
	}

	return ctx.JSON(http.StatusOK, QueryResponse{
		Answer:           answer.Answer,
		SemanticContext:  answer.SemanticContext,
		SemanticMetadata: answer.SemanticMetadata,
		KeywordContext:   answer.KeywordContext,
		KeywordMetadata:  answer.KeywordMetadata,
	})
}

// Queue a converted document for ingestion
// (POST /convert)
func (h *Handler) Convert(ctx echo.Context) error {
	var req ConvertRequest
	if err := ctx.Bind(&req); err != nil {
		return errorJSON(ctx, http.StatusBadRequest, "invalid request")
	}
	if strings.TrimSpace(req.Name) == "" {
		return errorJSON(ctx, http.StatusBadRequest, "name is required")
	}

	job := domain.NewIngestJob(req.Name)
	if err := h.jobs.Enqueue(ctx.Request().Context(), job); err != nil {
		h.logger.ErrorContext(ctx.Request().Context(), "convert_enqueue_failed",
			slog.String("name", req.Name),
			slog.String("error", err.Error()))
		return errorJSON(ctx, http.StatusInternalServerError, "failed to enqueue job")
	}
	return ctx.JSON(http.StatusAccepted, messageResponse{Message: job.ID})
}

// Remove a document and rebuild the retrievers
// (DELETE /delete_document/:name)
func (h *Handler) DeleteDocument(ctx echo.Context) error {
	name := ctx.Param("name")
	if strings.TrimSpace(name) == "" {
		return errorJSON(ctx, http.StatusBadRequest, "name is required")
	}
	reqCtx := ctx.Request().Context()

	if err := h.data.RemoveDocument(reqCtx, name+markdownExt); err != nil {
		return errorJSON(ctx, statusFor(err), err.Error())
	}
	if err := h.rag.Rebuild(reqCtx); err != nil {
		return errorJSON(ctx, statusFor(err), err.Error())
	}
	return ctx.JSON(http.StatusOK, messageResponse{Message: "Document deleted"})
}

// List stored documents without their .md suffix
// (GET /get_rag_documents)
func (h *Handler) ListDocuments(ctx echo.Context) error {
	docs, err := h.data.ListDocuments(ctx.Request().Context())
	if err != nil {
		return errorJSON(ctx, statusFor(err), err.Error())
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, strings.TrimSuffix(d, markdownExt))
	}
	return ctx.JSON(http.StatusOK, documentsResponse{Documents: names})
}

// (POST /rebuild)
func (h *Handler) Rebuild(ctx echo.Context) error {
	if err := h.rag.Rebuild(ctx.Request().Context()); err != nil {
		return errorJSON(ctx, statusFor(err), err.Error())
	}
	return ctx.JSON(http.StatusOK, messageResponse{Message: "Retrievers rebuilt"})
}

func (h *Handler) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports 503 while the chunk store cannot be reached.
func (h *Handler) Readyz(ctx echo.Context) error {
	if err := h.store.Ping(ctx.Request().Context()); err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
