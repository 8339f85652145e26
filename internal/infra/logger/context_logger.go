package logger

import "context"

type ContextKey string

// Context keys picked up by TraceContextHandler.
const (
	JobIDKey        ContextKey = "rag.job.id"
	DocumentNameKey ContextKey = "rag.document.name"
)

// WithJobID tags every log written with ctx with the ingest job id.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// WithDocumentName tags every log written with ctx with the document being processed.
func WithDocumentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, DocumentNameKey, name)
}
