// CLAUDE:SUMMARY Orchestrator: wires catalog, stats, weights, ledger, generator, prober and notifiers into a running probe loop.
// Package scout discovers live short-URL codes by weighted brute force.
//
// A Service owns the learning state (per-position symbol statistics, per-service
// productivity weights, tested-URL ledger), a candidate generator biased by the
// statistics, and a pool of workers that probe candidates through a pluggable
// Prober. Hits are fanned out to notifiers; every outcome feeds the weights so
// productive services get probed more often. State is flushed periodically and
// on shutdown, and survives a crash by reloading the last flushed documents.
package scout

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/sourcier/catalog"
	"github.com/hazyhaar/sourcier/notify"
	"github.com/hazyhaar/sourcier/probe"
	"github.com/hazyhaar/sourcier/scout/internal/gen"
	"github.com/hazyhaar/sourcier/scout/internal/ledger"
	"github.com/hazyhaar/sourcier/scout/internal/stats"
	"github.com/hazyhaar/sourcier/scout/internal/weight"
	"github.com/hazyhaar/sourcier/scout/internal/worker"
)

// Service is the discovery engine. Create with New, run with Start, stop
// with Close. A Service is not restartable.
type Service struct {
	cfg    *Config
	cat    *catalog.Catalog
	logger *slog.Logger

	prober    probe.Prober
	notifiers notify.Multi

	stats   *stats.Store
	weights *weight.Store
	ledger  *ledger.Ledger
	pool    *worker.Pool

	startedAt time.Time
	attempts  atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	errors    atomic.Int64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithProber replaces the default HTTP prober.
func WithProber(p probe.Prober) Option {
	return func(s *Service) { s.prober = p }
}

// WithNotifier appends a hit notifier. Notifiers are invoked in order;
// a failing notifier is logged and never blocks the probe loop.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n) }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New wires a Service around the given catalog. No I/O happens until Start.
func New(cat *catalog.Catalog, cfg *Config, opts ...Option) (*Service, error) {
	if cat == nil || cat.Len() == 0 {
		return nil, catalog.ErrNoServices
	}
	if cfg == nil {
		cfg = defaultConfig()
	} else {
		cfg.defaults()
	}
	s := &Service{cfg: cfg, cat: cat}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.prober == nil {
		s.prober = probe.NewClient(cfg.Probe)
	}
	return s, nil
}

// Start loads the persisted state, imports the legacy ledger if configured,
// and launches the flusher and the worker pool. It does not block; cancel the
// context or call Close to stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	s.stats = stats.New(filepath.Join(s.cfg.DataDir, "stats.json"), s.logger)
	s.weights = weight.New(filepath.Join(s.cfg.DataDir, "weights.json"), weight.Config{
		Increment: s.cfg.WeightIncrement,
		Decrement: s.cfg.WeightDecrement,
		Floor:     s.cfg.WeightFloor,
	}, s.logger)
	s.stats.Load()
	s.weights.Load()
	for _, domain := range s.cat.Domains() {
		s.weights.Register(domain)
	}

	led, err := ledger.Open(filepath.Join(s.cfg.DataDir, "ledger"), s.logger)
	if err != nil {
		return fmt.Errorf("scout: open ledger: %w", err)
	}
	s.ledger = led

	if s.cfg.LegacyLedger != "" {
		n, err := s.ledger.ImportText(s.cfg.LegacyLedger)
		if err != nil {
			s.ledger.Close()
			return fmt.Errorf("scout: import legacy ledger: %w", err)
		}
		if n > 0 {
			s.logger.Info("scout: imported legacy ledger",
				"path", s.cfg.LegacyLedger, "urls", n)
		}
	}

	generator := gen.New(s.stats.PositionCounts, gen.WithFloor(s.cfg.GenFloor))
	s.pool = worker.New(s.cat, s.weights, generator, s.ledger, s.prober,
		s.handleOutcome, worker.Config{
			Workers:      s.cfg.Workers,
			Pause:        s.cfg.Pause,
			ErrorBackoff: s.cfg.ErrorBackoff,
		}, s.logger)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startedAt = time.Now()
	s.started = true

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.pool.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.flusher(runCtx)
	}()

	s.logger.Info("scout: started",
		"services", s.cat.Len(),
		"data_dir", s.cfg.DataDir,
		"known_urls", s.ledger.Count())
	return nil
}

// Close stops the workers, waits for in-flight probes to finish, flushes the
// stores and closes the ledger.
func (s *Service) Close() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	var firstErr error
	if err := s.flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.ledger.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("scout: close ledger: %w", err)
	}
	s.logger.Info("scout: stopped",
		"attempts", s.attempts.Load(),
		"hits", s.hits.Load())
	return firstErr
}

// handleOutcome routes one completed probe attempt: hits feed the statistics,
// the weights and the notifiers; misses only penalize the weight; transport
// errors touch nothing but the counters.
func (s *Service) handleOutcome(ctx context.Context, ev *worker.Event) {
	s.attempts.Add(1)
	domain := ev.Service.Domain

	switch ev.Outcome {
	case worker.OutcomeHit:
		s.hits.Add(1)
		s.stats.RecordSuccess(domain, ev.Symbols)
		s.weights.RecordOutcome(domain, true)
		s.logger.Info("scout: hit",
			"domain", domain, "code", ev.Code, "url", ev.ResolvedURL)
		hit := notify.Hit{
			Domain:      domain,
			Code:        ev.Code,
			URL:         ev.URL,
			ResolvedURL: ev.ResolvedURL,
			FoundAt:     time.Now().UTC(),
		}
		if err := s.notifiers.Notify(ctx, hit); err != nil {
			s.logger.Warn("scout: notify failed",
				"domain", domain, "code", ev.Code, "error", err)
		}
	case worker.OutcomeMiss:
		s.misses.Add(1)
		s.weights.RecordOutcome(domain, false)
	case worker.OutcomeError:
		s.errors.Add(1)
		s.logger.Debug("scout: probe transport failure",
			"domain", domain, "url", ev.URL, "error", ev.Err)
	}
}

// flusher periodically persists the statistics and weights documents.
func (s *Service) flusher(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.logger.Warn("scout: flush failed", "error", err)
			}
		}
	}
}

func (s *Service) flush() error {
	if err := s.stats.Flush(); err != nil {
		return fmt.Errorf("scout: flush stats: %w", err)
	}
	if err := s.weights.Flush(); err != nil {
		return fmt.Errorf("scout: flush weights: %w", err)
	}
	return nil
}
