package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookConfig configures the generic outbound webhook notifier.
type WebhookConfig struct {
	// URL receives the hit as an HTTP POST with a JSON body.
	URL string `yaml:"url"`
	// Secret optionally signs the body: the X-Signature-256 header carries
	// the hex HMAC-SHA256 of the payload, so the receiver can verify the
	// sender without shared network trust.
	Secret string `yaml:"secret"`
	// Timeout per delivery. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`
}

// Webhook delivers hits to any HTTP endpoint.
type Webhook struct {
	cfg  WebhookConfig
	http *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notify: webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Webhook{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, hit Hit) error {
	body, err := json.Marshal(hit)
	if err != nil {
		return fmt.Errorf("notify: webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(w.cfg.Secret))
		mac.Write(body)
		req.Header.Set("X-Signature-256", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook http %d", resp.StatusCode)
	}
	return nil
}
