package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// discord rejects webhook messages over this length
const maxWebhookContent = 2000

// WebhookRecorder posts events to a Discord channel webhook.
type WebhookRecorder struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookRecorder creates a recorder posting to url.
func NewWebhookRecorder(url string, logger *slog.Logger) *WebhookRecorder {
	return &WebhookRecorder{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// RecordEvent implements Recorder.
func (r *WebhookRecorder) RecordEvent(ctx context.Context, kind string, details map[string]string) {
	if err := r.post(ctx, formatEvent(kind, details)); err != nil {
		r.logger.Warn("failed to post audit event", "kind", kind, "error", err)
	}
}

func (r *WebhookRecorder) post(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// formatEvent renders kind and details as a single message with details in
// key order.
func formatEvent(kind string, details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", kind)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: `%s`", k, details[k])
	}
	out := b.String()
	if len(out) > maxWebhookContent {
		out = out[:maxWebhookContent-3] + "..."
	}
	return out
}
