// Package alerts tracks budget alert thresholds and fans notifications out
// to in-app channels, the outbound notifier, and webhooks.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notification is one outbound budget notification handed to the Notifier
// collaborator.
type Notification struct {
	TeamID     string         `json:"team_id"`
	AlertType  string         `json:"alert_type"`
	BudgetID   string         `json:"budget_id"`
	BudgetName string         `json:"budget_name"`
	BudgetType string         `json:"budget_type"`
	Recipients []string       `json:"recipients,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Notifier dispatches notifications out of the system (email, chat, …).
// Implementations must not block past their own timeouts; failures are
// logged by the pipeline and never fail the triggering request.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// webhookClient posts alert payloads to customer webhooks with a bounded
// timeout.
type webhookClient struct {
	client *http.Client
}

func newWebhookClient(timeout time.Duration) *webhookClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &webhookClient{client: &http.Client{Timeout: timeout}}
}

// post sends the payload. Non-2xx responses are returned as errors for the
// pipeline to log.
func (w *webhookClient) post(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
