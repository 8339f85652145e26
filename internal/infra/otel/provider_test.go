package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitProvider_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInitProvider_Enabled(t *testing.T) {
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	prevTracer := otel.GetTracerProvider()
	prevLogger := global.GetLoggerProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTracer)
		global.SetLoggerProvider(prevLogger)
	})

	shutdown, err := InitProvider(context.Background(), Config{
		ServiceName:  "pdf-rag-test",
		Environment:  "test",
		OTLPEndpoint: collector.URL + "/",
		Enabled:      true,
		SampleRatio:  1.0,
	})
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "global tracer provider should be the sdk provider")

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx))
}
