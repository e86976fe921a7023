package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DiscordConfig configures the Discord webhook notifier.
type DiscordConfig struct {
	// WebhookURL is the channel webhook (from Server Settings →
	// Integrations). Webhooks need no bot token or gateway session, which
	// is all fire-and-forget delivery requires.
	WebhookURL string `yaml:"webhook_url"`
	// Username optionally overrides the webhook's display name.
	Username string `yaml:"username"`
	// Timeout per delivery. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`
}

// Discord posts hits to a Discord channel webhook as an embed whose image is
// the resolved media URL.
type Discord struct {
	cfg  DiscordConfig
	http *http.Client
}

// NewDiscord creates a Discord webhook notifier.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("notify: discord webhook_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Discord{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type discordEmbed struct {
	Title string            `json:"title,omitempty"`
	URL   string            `json:"url,omitempty"`
	Image *discordEmbedItem `json:"image,omitempty"`
}

type discordEmbedItem struct {
	URL string `json:"url"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

// Notify implements Notifier.
func (d *Discord) Notify(ctx context.Context, hit Hit) error {
	payload := discordPayload{
		Username: d.cfg.Username,
		Content:  hit.ResolvedURL,
		Embeds: []discordEmbed{{
			Title: hit.Domain,
			URL:   hit.URL,
			Image: &discordEmbedItem{URL: hit.ResolvedURL},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: discord marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: discord post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: discord http %d", resp.StatusCode)
	}
	return nil
}
