package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookDispatcher POSTs each event as JSON to a configured endpoint.
type WebhookDispatcher struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookDispatcher creates a webhook dispatcher for the given URL.
func NewWebhookDispatcher(url string, logger *zap.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Error("webhook dispatch failed",
			zap.String("url", d.url),
			zap.String("event_id", evt.ID.String()),
			zap.Error(err))
		return fmt.Errorf("webhook dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Error("webhook returned non-success status",
			zap.String("url", d.url),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
