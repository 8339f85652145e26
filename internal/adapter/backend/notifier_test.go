package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestHTTPNotifier_PostsJobID(t *testing.T) {
	var gotPath, gotContentType string
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL+"/", srv.Client(), testLogger())
	require.NoError(t, n.NotifyConverted(context.Background(), "convert-42"))

	assert.Equal(t, "/api/response_convert", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]string{"job_id": "convert-42"}, got)
}

func TestHTTPNotifier_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL, srv.Client(), testLogger())
	err := n.NotifyConverted(context.Background(), "convert-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPNotifier_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n := NewHTTPNotifier(url, http.DefaultClient, testLogger())
	assert.Error(t, n.NotifyConverted(context.Background(), "convert-1"))
}
