// Package llm talks to the hosted and local model providers used for chat
// completion and embeddings.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// transport is the plumbing shared by every provider client.
type transport struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// postJSON sends body to url and decodes a 200 response into out.
func (t *transport) postJSON(ctx context.Context, url string, headers map[string]string, body any, out any) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Error("llm_request_failed",
			slog.String("url", url),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return fmt.Errorf("failed to call provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		t.logger.Error("llm_request_bad_status",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode),
			slog.Duration("elapsed", time.Since(start)),
		)
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	t.logger.Debug("llm_request_completed",
		slog.String("url", url),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
