package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/crypto"
)

// WebhookSender delivers notifications to an operator-supplied HTTPS endpoint.
// Every delivery carries HMAC signature headers so the receiver can verify
// provenance.
type WebhookSender struct {
	url    string
	auth   *crypto.WebhookAuth
	client *http.Client
}

// NewWebhookSender creates a WebhookSender for the given endpoint URL, signing
// deliveries with the given shared secret. It uses a default HTTP client with
// a 10-second timeout.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		auth:   &crypto.WebhookAuth{Secret: secret},
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts a JSON body {"title": ..., "message": ...} to the endpoint with
// signature headers attached.
func (s *WebhookSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]string{
		"title":   title,
		"message": message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.auth.Headers(string(body)) {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (s *WebhookSender) Name() string {
	return "webhook"
}
