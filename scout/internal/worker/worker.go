// CLAUDE:SUMMARY Fixed-size probing pool: pick service → generate candidate → dedup check → probe → route outcome, until shutdown.
// Package worker runs the probing loop: a fixed-size pool of identical
// workers that share no mutable state except the stores behind their own
// synchronization.
//
// Per iteration a worker picks a service (weighted), generates a candidate,
// skips it if the ledger has seen the URL, probes, appends the URL to the
// ledger for hits and misses, and hands the outcome to the recorder.
// Workers finish the in-flight probe on shutdown rather than aborting
// mid-update, so the stores are never observed torn.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/sourcier/catalog"
	"github.com/hazyhaar/sourcier/probe"
)

// Outcome classifies one probe attempt. Transport failures are deliberately
// a distinct kind from misses: "could not ask" is not "does not exist".
type Outcome int

const (
	OutcomeHit Outcome = iota
	OutcomeMiss
	OutcomeError
)

// String returns "hit", "miss" or "error".
func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	default:
		return "error"
	}
}

// Event is one completed probe attempt, routed to the recorder.
type Event struct {
	Service     *catalog.Service
	Code        string
	Symbols     []string // Code split into alphabet symbols, one per position
	URL         string
	Outcome     Outcome
	ResolvedURL string // media URL for hits; equals URL for direct services
	Err         error  // set for OutcomeError
}

// Picker selects the next service domain, weighted by productivity.
type Picker interface {
	Pick() string
}

// Generator produces a candidate code and its symbols for a service.
type Generator interface {
	Generate(svc *catalog.Service) (string, []string)
}

// Ledger is the durable tested-URL set.
type Ledger interface {
	Seen(url string) bool
	Record(url string) error
}

// Recorder receives every completed attempt.
type Recorder func(ctx context.Context, ev *Event)

// Config configures the pool.
type Config struct {
	// Workers is the pool size. Default: 4.
	Workers int
	// Pause between iterations of one worker. Default: 100ms.
	Pause time.Duration
	// ErrorBackoff after a transport failure. Default: 2s.
	ErrorBackoff time.Duration
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Pause <= 0 {
		c.Pause = 100 * time.Millisecond
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 2 * time.Second
	}
}

// Pool is the worker pool.
type Pool struct {
	cat    *catalog.Catalog
	picker Picker
	gen    Generator
	ledger Ledger
	prober probe.Prober
	record Recorder
	cfg    Config
	logger *slog.Logger
}

// New creates a Pool. All collaborators are required.
func New(cat *catalog.Catalog, picker Picker, gen Generator, ledger Ledger,
	prober probe.Prober, record Recorder, cfg Config, logger *slog.Logger) *Pool {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cat:    cat,
		picker: picker,
		gen:    gen,
		ledger: ledger,
		prober: prober,
		record: record,
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has finished its in-flight attempt.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	p.logger.Info("worker: pool started", "workers", p.cfg.Workers)
	wg.Wait()
	p.logger.Info("worker: pool stopped")
}

type stepResult int

const (
	stepProbed stepResult = iota
	stepSkipped
	stepErrored
)

func (p *Pool) runWorker(ctx context.Context, id int) {
	for ctx.Err() == nil {
		switch p.step(ctx) {
		case stepSkipped:
			// Dedup hit: retry immediately with a fresh candidate.
		case stepErrored:
			sleepCtx(ctx, p.cfg.ErrorBackoff)
		default:
			sleepCtx(ctx, p.cfg.Pause)
		}
	}
	p.logger.Debug("worker: exiting", "worker", id)
}

// step performs one pick→generate→probe→record iteration.
func (p *Pool) step(ctx context.Context) stepResult {
	domain := p.picker.Pick()
	svc := p.cat.Get(domain)
	if svc == nil {
		p.logger.Warn("worker: picked unknown service", "domain", domain)
		return stepErrored
	}

	code, symbols := p.gen.Generate(svc)
	url := svc.URL(code)
	if p.ledger.Seen(url) {
		return stepSkipped
	}

	res, err := p.prober.Probe(ctx, svc, url)
	if err != nil {
		// Shutdown mid-probe: drop the attempt, nothing was learned.
		if ctx.Err() != nil {
			return stepErrored
		}
		p.record(ctx, &Event{
			Service: svc, Code: code, Symbols: symbols, URL: url,
			Outcome: OutcomeError, Err: err,
		})
		return stepErrored
	}

	ev := &Event{Service: svc, Code: code, Symbols: symbols, URL: url}
	if res.Exists {
		ev.Outcome = OutcomeHit
		ev.ResolvedURL = res.ResolvedURL
		if ev.ResolvedURL == "" {
			ev.ResolvedURL = url
		}
	} else {
		ev.Outcome = OutcomeMiss
	}

	// Hits and misses are definitive answers and are never re-probed.
	// Transport errors stay out of the ledger so the URL can be retried.
	if err := p.ledger.Record(url); err != nil {
		p.logger.Warn("worker: ledger record failed", "url", url, "error", err)
	}

	p.record(ctx, ev)
	return stepProbed
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
