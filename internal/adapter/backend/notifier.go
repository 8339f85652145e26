package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ConvertCallbackPath is where the upload backend expects conversion results.
const ConvertCallbackPath = "/api/response_convert"

// HTTPNotifier reports finished ingest jobs to the upload backend.
type HTTPNotifier struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPNotifier(baseURL string, httpClient *http.Client, logger *slog.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type convertResponse struct {
	JobID string `json:"job_id"`
}

// NotifyConverted POSTs {"job_id": jobID} to the backend callback.
func (n *HTTPNotifier) NotifyConverted(ctx context.Context, jobID string) error {
	url := n.baseURL + ConvertCallbackPath

	body, err := json.Marshal(convertResponse{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to notify backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	n.logger.InfoContext(ctx, "backend_notified",
		slog.String("url", url),
		slog.String("job_id", jobID))
	return nil
}
