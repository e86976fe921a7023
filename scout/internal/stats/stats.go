// CLAUDE:SUMMARY Per-service character-frequency and pattern counters learned from hits, persisted as an atomic JSON document.
// Package stats maintains the learned per-service statistics that bias code
// generation: a character-frequency table per code position and auxiliary
// character-class counters, both updated only on confirmed hits.
//
// Counts never decrease. The in-memory maps are owned exclusively by the
// Store; callers submit outcomes and read snapshots, never the maps
// themselves.
package stats

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"unicode"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is the persisted schema, keyed by service domain.
type Document struct {
	Services map[string]*ServiceStats `json:"services"`
}

// ServiceStats holds the learned counters for one service.
type ServiceStats struct {
	// Positions[i] maps a symbol to the number of confirmed hits that
	// carried it at code position i.
	Positions []map[string]uint64 `json:"positions"`
	// Classes[i] counts the character class observed at position i.
	Classes []ClassCounts `json:"classes"`
}

// ClassCounts are per-position character-class counters.
type ClassCounts struct {
	Upper uint64 `json:"upper"`
	Lower uint64 `json:"lower"`
	Digit uint64 `json:"digit"`
	Other uint64 `json:"other"`
}

// ParseOrDefault decodes a persisted document, returning an empty valid
// document when the data is missing or malformed. Corrupt learned state is
// never fatal, only lost.
func ParseOrDefault(data []byte, logger *slog.Logger) Document {
	doc := Document{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			if logger != nil {
				logger.Warn("stats: malformed document, starting empty", "error", err)
			}
			doc = Document{}
		}
	}
	if doc.Services == nil {
		doc.Services = make(map[string]*ServiceStats)
	}
	return doc
}

// Store owns the in-memory statistics and their persistence.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	doc   Document
	dirty bool

	flushMu sync.Mutex // serializes concurrent flushes
}

// New creates a Store persisting to path. Call Load before first use.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger,
		doc:    Document{Services: make(map[string]*ServiceStats)},
	}
}

// Load reads the persisted document. Absent or malformed state resets the
// store to empty; Load never fails startup.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("stats: read failed, starting empty", "path", s.path, "error", err)
		}
		data = nil
	}
	doc := ParseOrDefault(data, s.logger)

	s.mu.Lock()
	s.doc = doc
	s.dirty = false
	s.mu.Unlock()
}

// RecordSuccess increments the per-position counters for a confirmed hit.
// symbols is the candidate code split into its alphabet symbols.
func (s *Store) RecordSuccess(domain string, symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc := s.doc.Services[domain]
	if svc == nil {
		svc = &ServiceStats{}
		s.doc.Services[domain] = svc
	}
	for len(svc.Positions) < len(symbols) {
		svc.Positions = append(svc.Positions, make(map[string]uint64))
		svc.Classes = append(svc.Classes, ClassCounts{})
	}
	for i, sym := range symbols {
		svc.Positions[i][sym]++
		cc := &svc.Classes[i]
		r, _ := utf8.DecodeRuneInString(sym)
		switch {
		case unicode.IsUpper(r):
			cc.Upper++
		case unicode.IsLower(r):
			cc.Lower++
		case unicode.IsDigit(r):
			cc.Digit++
		default:
			cc.Other++
		}
	}
	s.dirty = true
}

// PositionCounts returns a copy of the frequency table for a service, padded
// to length positions. Positions with no observations are empty maps.
func (s *Store) PositionCounts(domain string, length int) []map[string]uint64 {
	out := make([]map[string]uint64, length)
	for i := range out {
		out[i] = map[string]uint64{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	svc := s.doc.Services[domain]
	if svc == nil {
		return out
	}
	for i := 0; i < length && i < len(svc.Positions); i++ {
		for sym, n := range svc.Positions[i] {
			out[i][sym] = n
		}
	}
	return out
}

// Snapshot returns a deep copy of the whole document, for status reporting.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Document{Services: make(map[string]*ServiceStats, len(s.doc.Services))}
	for domain, svc := range s.doc.Services {
		cp := &ServiceStats{
			Positions: make([]map[string]uint64, len(svc.Positions)),
			Classes:   append([]ClassCounts(nil), svc.Classes...),
		}
		for i, pos := range svc.Positions {
			cp.Positions[i] = make(map[string]uint64, len(pos))
			for sym, n := range pos {
				cp.Positions[i][sym] = n
			}
		}
		out.Services[domain] = cp
	}
	return out
}

// Flush serializes the document and writes it atomically
// (write-temp-then-rename). A no-op when nothing changed since the last
// flush. Write failures are returned for logging; the next flush retries.
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err == nil {
		// Cleared with the snapshot: successes landing after this point
		// re-mark the store dirty and reach the next flush.
		s.dirty = false
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("stats: marshal: %w", err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("stats: %w", err)
	}
	return nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path, so a crash mid-write never leaves a half-written document.
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
