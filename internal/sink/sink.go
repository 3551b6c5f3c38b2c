// Package sink forwards finished recommendations to an external recorder.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Result is the outcome of one completed interview.
type Result struct {
	UserID         string
	Recommendation string
}

// Sink records a result. Implementations must be safe for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, r Result) error
}

// WebhookSink POSTs results as {"nombre": ..., "resultado": ...}.
type WebhookSink struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSink creates a sink posting to url.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{url: url, httpClient: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	Nombre    string `json:"nombre"`
	Resultado string `json:"resultado"`
}

// Deliver implements Sink.
func (s *WebhookSink) Deliver(ctx context.Context, r Result) error {
	body, err := json.Marshal(webhookPayload{Nombre: r.UserID, Resultado: r.Recommendation})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("result recorder returned %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes results to the structured log. Used when no recorder is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, r Result) error {
	s.logger.Info("recommendation recorded", "user_id", r.UserID, "chars", len(r.Recommendation))
	return nil
}
