package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// webhookTimeout bounds a single notification request.
const webhookTimeout = 10 * time.Second

// Webhook posts a JSON summary of finished tasks to a URL.
type Webhook struct {
	URL    string
	client *http.Client
}

// NewWebhook returns a Webhook for url. An empty url disables it.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// completionPayload is the JSON body posted to the webhook endpoint.
type completionPayload struct {
	TaskID         string  `json:"task_id"`
	Target         string  `json:"target"`
	Status         string  `json:"status"`
	ScanID         string  `json:"scan_id,omitempty"`
	OpenPorts      int     `json:"open_ports"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Error          string  `json:"error,omitempty"`
}

// Notify posts task to the webhook. It is a no-op when the URL is empty.
// Failures are returned for the caller to log; they never affect the task.
func (w *Webhook) Notify(ctx context.Context, task Task) error {
	if w == nil || w.URL == "" {
		return nil
	}

	payload := completionPayload{
		TaskID:         task.ID,
		Target:         task.Target,
		Status:         string(task.Status),
		ScanID:         task.ScanID,
		ElapsedSeconds: task.Elapsed().Seconds(),
		Error:          task.Error,
	}
	if task.Result != nil {
		payload.OpenPorts = task.Result.OpenPorts()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: posting to %s: %w", w.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned non-2xx status %d", resp.StatusCode)
	}

	return nil
}
