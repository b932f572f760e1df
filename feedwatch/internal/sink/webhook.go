package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/unsuggest/feedwatch/removal"
)

// ErrRejected is returned when the endpoint answers 4xx. Rejections are not
// retried.
var ErrRejected = errors.New("webhook: rejected")

// Webhook POSTs removal reports to a URL. 5xx answers and transport errors
// are retried with exponential backoff.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay, doubled on each retry.
// Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook sink targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Send posts r. The page id travels in the X-Unsuggest-Page header so
// receivers can route without decoding the body.
func (w *Webhook) Send(ctx context.Context, r removal.Removal) error {
	body, err := json.Marshal(envelope{Type: "removal", Data: r})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := range w.maxRetries + 1 {
		if attempt > 0 {
			select {
			case <-time.After(w.backoff << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		status, err := w.post(ctx, r.PageID, body)
		switch {
		case err != nil:
			lastErr = err
			w.logger.Warn("webhook: request failed", "attempt", attempt+1, "removal", r.ID, "error", err)
			continue
		case status >= 200 && status < 300:
			return nil
		case status >= 400 && status < 500:
			return fmt.Errorf("%w: status %d", ErrRejected, status)
		}
		lastErr = fmt.Errorf("webhook: status %d", status)
		w.logger.Warn("webhook: server error", "attempt", attempt+1, "removal", r.ID, "status", status)
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}

func (w *Webhook) post(ctx context.Context, pageID string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if pageID != "" {
		req.Header.Set("X-Unsuggest-Page", pageID)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (w *Webhook) Close() error { return nil }
