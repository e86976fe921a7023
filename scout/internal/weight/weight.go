// CLAUDE:SUMMARY Per-service productivity weights: weighted random selection with a lazily rebuilt cumulative table, floor-clamped updates, atomic JSON persistence.
// Package weight maintains the per-service scalar weights that steer probing
// effort, and performs the weighted random service selection.
//
// A weight starts at the floor, grows by a fixed increment on every hit and
// shrinks by a smaller fixed decrement on every miss, clamped at the floor.
// The cumulative table used for selection is rebuilt lazily, only when a
// weight changed since the last draw.
package weight

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the adaptation constants. The invariant to preserve is
// Increment > Decrement > 0 with a positive floor, not the literal values.
type Config struct {
	Increment float64 // added on a hit. Default: 0.1.
	Decrement float64 // subtracted on a miss. Default: 0.025.
	Floor     float64 // lower clamp and initial value. Default: 1.0.
}

func (c *Config) defaults() {
	if c.Increment <= 0 {
		c.Increment = 0.1
	}
	if c.Decrement <= 0 {
		c.Decrement = 0.025
	}
	if c.Floor <= 0 {
		c.Floor = 1.0
	}
}

// Document is the persisted schema, keyed by service domain.
type Document struct {
	Weights map[string]float64 `json:"weights"`
}

// ParseOrDefault decodes a persisted document, returning an empty valid
// document when the data is missing or malformed.
func ParseOrDefault(data []byte, logger *slog.Logger) Document {
	doc := Document{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			if logger != nil {
				logger.Warn("weight: malformed document, starting empty", "error", err)
			}
			doc = Document{}
		}
	}
	if doc.Weights == nil {
		doc.Weights = make(map[string]float64)
	}
	return doc
}

// Store owns the in-memory weights and their persistence.
type Store struct {
	path   string
	cfg    Config
	logger *slog.Logger

	randFloat func() float64 // in [0,1); swapped in tests

	mu      sync.Mutex
	weights map[string]float64
	dirty   bool // persistence: changed since last flush

	// Cumulative selection table, rebuilt lazily when stale.
	cumStale   bool
	cumDomains []string
	cumSums    []float64

	flushMu sync.Mutex
}

// New creates a Store persisting to path. Call Load, then Register each
// configured service, before the first Pick.
func New(path string, cfg Config, logger *slog.Logger) *Store {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:      path,
		cfg:       cfg,
		logger:    logger,
		randFloat: rand.Float64,
		weights:   make(map[string]float64),
		cumStale:  true,
	}
}

// Load reads the persisted document. Absent or malformed state resets the
// store to empty; Load never fails startup. Weights below the floor
// (e.g. after a floor raise) are clamped up on load.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("weight: read failed, starting empty", "path", s.path, "error", err)
		}
		data = nil
	}
	doc := ParseOrDefault(data, s.logger)

	s.mu.Lock()
	s.weights = doc.Weights
	for domain, w := range s.weights {
		if w < s.cfg.Floor {
			s.weights[domain] = s.cfg.Floor
		}
	}
	s.dirty = false
	s.cumStale = true
	s.mu.Unlock()
}

// Register ensures a service has a weight entry, starting at the floor.
// Idempotent; existing weights are kept.
func (s *Store) Register(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.weights[domain]; !ok {
		s.weights[domain] = s.cfg.Floor
		s.dirty = true
		s.cumStale = true
	}
}

// Pick selects a service at random, with probability proportional to its
// current weight. Returns "" when no services are registered.
func (s *Store) Pick() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cumStale {
		s.rebuildLocked()
	}
	if len(s.cumDomains) == 0 {
		return ""
	}
	total := s.cumSums[len(s.cumSums)-1]
	target := s.randFloat() * total
	// First cumulative sum strictly greater than target.
	i := sort.SearchFloat64s(s.cumSums, target)
	if i < len(s.cumSums) && s.cumSums[i] == target {
		i++
	}
	if i >= len(s.cumDomains) {
		i = len(s.cumDomains) - 1
	}
	return s.cumDomains[i]
}

// rebuildLocked recomputes the cumulative table. Caller holds mu.
func (s *Store) rebuildLocked() {
	domains := make([]string, 0, len(s.weights))
	for domain := range s.weights {
		domains = append(domains, domain)
	}
	sort.Strings(domains) // stable order so the table is deterministic

	s.cumDomains = domains
	s.cumSums = s.cumSums[:0]
	var sum float64
	for _, domain := range domains {
		sum += s.weights[domain]
		s.cumSums = append(s.cumSums, sum)
	}
	s.cumStale = false
}

// RecordOutcome adjusts a service's weight: hits add the increment, misses
// subtract the decrement, clamped at the floor. Unregistered domains are
// created at the floor first.
func (s *Store) RecordOutcome(domain string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.weights[domain]
	if !ok {
		w = s.cfg.Floor
	}
	if success {
		w += s.cfg.Increment
	} else {
		w -= s.cfg.Decrement
		if w < s.cfg.Floor {
			w = s.cfg.Floor
		}
	}
	s.weights[domain] = w
	s.dirty = true
	s.cumStale = true
}

// Weight returns the current weight of a domain (the floor when unknown).
func (s *Store) Weight(domain string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.weights[domain]; ok {
		return w
	}
	return s.cfg.Floor
}

// Snapshot returns a copy of all weights, for status reporting.
func (s *Store) Snapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.weights))
	for domain, w := range s.weights {
		out[domain] = w
	}
	return out
}

// Flush serializes the weights and writes them atomically. A no-op when
// nothing changed since the last flush.
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	doc := Document{Weights: make(map[string]float64, len(s.weights))}
	for domain, w := range s.weights {
		doc.Weights[domain] = w
	}
	// Cleared with the snapshot: outcomes landing after this point re-mark
	// the store dirty and reach the next flush.
	s.dirty = false
	s.mu.Unlock()

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		s.markDirty()
		return fmt.Errorf("weight: marshal: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		s.markDirty()
		return fmt.Errorf("weight: %w", err)
	}
	return nil
}

func (s *Store) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
