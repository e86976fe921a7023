package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/sourcier/catalog"
)

// Config configures the HTTP prober.
type Config struct {
	// Timeout per probe request. Default: 15s.
	Timeout time.Duration
	// MaxBytes caps the response body read in resolve mode. Default: 2MB.
	MaxBytes int64
	// UserAgent sent with requests.
	UserAgent string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 2 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "sourcier/1.0"
	}
}

// Client is the plain-HTTP Prober.
type Client struct {
	http *http.Client
	cfg  Config
}

// NewClient creates an HTTP prober. Redirects are followed (short hosts
// commonly bounce through a CDN hostname) up to the stdlib limit.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
	}
}

// Probe implements Prober.
func (c *Client) Probe(ctx context.Context, svc *catalog.Service, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	// Upstream breakage is not evidence of absence.
	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("probe: %s: upstream http %d", url, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{Exists: false}, nil
	}

	switch svc.Check {
	case catalog.CheckResolve:
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes))
		if err != nil {
			return nil, fmt.Errorf("probe: read %s: %w", url, err)
		}
		media := extractMediaURL(body, resp.Request.URL)
		if media == "" {
			return &Result{Exists: false}, nil
		}
		return &Result{Exists: true, ResolvedURL: media}, nil

	default: // direct
		if svc.ContentType != "" &&
			!strings.HasPrefix(resp.Header.Get("Content-Type"), svc.ContentType) {
			return &Result{Exists: false}, nil
		}
		return &Result{Exists: true}, nil
	}
}
