package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/sourcier/catalog"
)

// findMediaJS locates the post page's media URL in the live DOM, covering
// pages that inject their media client-side where the HTTP prober sees none.
const findMediaJS = `() => {
	const m = document.querySelector(
		'meta[property="og:image"],meta[property="og:video"],meta[name="twitter:image"]');
	if (m && m.content) return m.content;
	const img = document.querySelector('img[src]');
	return img ? img.src : '';
}`

// BrowserConfig configures the stealth browser prober.
type BrowserConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome. Empty = launch
	// a local headless Chrome via the rod launcher.
	RemoteURL string `yaml:"remote_url"`
	// NavTimeout bounds navigation plus load per probe. Default: 25s.
	NavTimeout time.Duration `yaml:"nav_timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *BrowserConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 25 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser probes through a stealth Chrome page. Intended for resolve-mode
// services that fingerprint and block plain HTTP clients.
type Browser struct {
	cfg BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowser creates a browser prober. Call Start before the first Probe.
func NewBrowser(cfg BrowserConfig) *Browser {
	cfg.defaults()
	return &Browser{cfg: cfg}
}

// Start launches (or connects to) Chrome.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("probe: browser prober is closed")
	}
	if b.browser != nil {
		return nil
	}

	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("probe: launch chrome: %w", err)
		}
		b.lnch = l
		wsURL = u
	}

	br := rod.New().ControlURL(wsURL)
	if err := br.Connect(); err != nil {
		return fmt.Errorf("probe: connect chrome: %w", err)
	}
	b.browser = br
	b.cfg.Logger.Info("probe: browser ready", "remote", b.cfg.RemoteURL != "")
	return nil
}

// Probe implements Prober. Each probe gets its own stealth tab, closed when
// the probe returns.
func (b *Browser) Probe(ctx context.Context, svc *catalog.Service, url string) (*Result, error) {
	b.mu.Lock()
	br := b.browser
	b.mu.Unlock()
	if br == nil {
		return nil, fmt.Errorf("probe: browser not started")
	}

	page, err := stealth.Page(br)
	if err != nil {
		return nil, fmt.Errorf("probe: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return nil, fmt.Errorf("probe: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		return nil, fmt.Errorf("probe: load %s: %w", url, err)
	}

	res, err := page.Context(navCtx).Eval(findMediaJS)
	if err != nil {
		return nil, fmt.Errorf("probe: inspect %s: %w", url, err)
	}
	media := res.Value.Str()
	if media == "" {
		return &Result{Exists: false}, nil
	}
	if svc.Check == catalog.CheckResolve {
		return &Result{Exists: true, ResolvedURL: media}, nil
	}
	return &Result{Exists: true}, nil
}

// Close shuts Chrome down. Safe to call more than once.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			b.cfg.Logger.Warn("probe: browser close", "error", err)
		}
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return nil
}
