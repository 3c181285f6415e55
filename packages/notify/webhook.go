package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"
)

// DefaultWebhookTimeout applies when no client is supplied.
const DefaultWebhookTimeout = 10 * time.Second

// maxErrorBody limits how much of a rejected webhook response ends up in the error.
const maxErrorBody = 512

type webhook struct {
	service  string
	url      string
	client   *http.Client
	accepted []int
}

func newWebhook(service, url string, accepted ...int) webhook {
	return webhook{
		service:  service,
		url:      url,
		client:   &http.Client{Timeout: DefaultWebhookTimeout},
		accepted: accepted,
	}
}

func (w webhook) post(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", w.service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building %s request: %w", w.service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", w.service, err)
	}
	defer resp.Body.Close()

	if !slices.Contains(w.accepted, resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s webhook answered status %d: %s", w.service, resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
