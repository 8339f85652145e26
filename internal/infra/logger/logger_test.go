package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestNew_LevelAndContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{ServiceName: "pdf-rag", Level: "warn", Output: &buf})

	ctx := WithDocumentName(WithJobID(context.Background(), "convert-1"), "doc1.md")
	l.InfoContext(ctx, "hidden")
	l.WarnContext(ctx, "ingest_slow")

	// logger_initialized is written at info, so it is filtered out as well.
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ingest_slow", lines[0]["msg"])
	assert.Equal(t, "convert-1", lines[0]["rag.job.id"])
	assert.Equal(t, "doc1.md", lines[0]["rag.document.name"])
}

func TestTraceContextHandler_AddsSpanIDs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewTraceContextHandler(slog.NewJSONHandler(&buf, nil)))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	l.InfoContext(ctx, "with_span")
	span.End()
	l.Info("without_span")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, span.SpanContext().TraceID().String(), lines[0]["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), lines[0]["span_id"])
	assert.NotContains(t, lines[1], "trace_id")
}

type countingHandler struct {
	slog.Handler
	level slog.Level
	count int
}

func (h *countingHandler) Enabled(ctx context.Context, level slog.Level) bool { return level >= h.level }

func (h *countingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.count++
	return nil
}

func TestMultiHandler_FansOutByLevel(t *testing.T) {
	debug := &countingHandler{level: slog.LevelDebug}
	errs := &countingHandler{level: slog.LevelError}
	l := slog.New(NewMultiHandler(debug, errs))

	l.Debug("a")
	l.Error("b")

	assert.Equal(t, 2, debug.count)
	assert.Equal(t, 1, errs.count)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
