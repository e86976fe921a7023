// CLAUDE:SUMMARY SQLite-backed record of confirmed hits, doubling as a notify sink; read side feeds the status endpoint.
// Package hitlog persists every confirmed hit to SQLite so discoveries
// survive the process and can be reviewed after a run.
//
// The store implements notify.Notifier, so it plugs into the same fan-out as
// external delivery sinks. Like them, a write failure is logged by the
// caller and never feeds back into probing.
package hitlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/sourcier/idgen"
	"github.com/hazyhaar/sourcier/notify"
)

// Schema is the hit table DDL, exported for dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS hits (
	hit_id       TEXT PRIMARY KEY,
	domain       TEXT NOT NULL,
	code         TEXT NOT NULL,
	url          TEXT NOT NULL,
	resolved_url TEXT NOT NULL,
	found_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hits_found_at ON hits(found_at DESC);
CREATE INDEX IF NOT EXISTS idx_hits_domain ON hits(domain);
`

// Entry is one persisted hit.
type Entry struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Code        string    `json:"code"`
	URL         string    `json:"url"`
	ResolvedURL string    `json:"resolved_url"`
	FoundAt     time.Time `json:"found_at"`
}

// Store writes and reads hit records.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets a custom ID generator for hit IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates a Store on db. The caller owns the database handle; apply
// Schema via dbopen.WithSchema or Init.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		newID: idgen.Prefixed("hit_", idgen.Default),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init applies the schema. Idempotent.
func (s *Store) Init() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("hitlog: init schema: %w", err)
	}
	return nil
}

// Notify implements notify.Notifier by persisting the hit.
func (s *Store) Notify(ctx context.Context, hit notify.Hit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hits (hit_id, domain, code, url, resolved_url, found_at)
		VALUES (?,?,?,?,?,?)`,
		s.newID(), hit.Domain, hit.Code, hit.URL, hit.ResolvedURL, hit.FoundAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("hitlog: insert: %w", err)
	}
	return nil
}

// Recent returns the newest hits, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT hit_id, domain, code, url, resolved_url, found_at
		FROM hits ORDER BY found_at DESC, hit_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("hitlog: query recent: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var foundAt int64
		if err := rows.Scan(&e.ID, &e.Domain, &e.Code, &e.URL, &e.ResolvedURL, &foundAt); err != nil {
			return nil, fmt.Errorf("hitlog: scan: %w", err)
		}
		e.FoundAt = time.UnixMilli(foundAt).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Count returns the total number of recorded hits.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("hitlog: count: %w", err)
	}
	return n, nil
}

// CountByDomain returns per-service hit totals.
func (s *Store) CountByDomain(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, COUNT(*) FROM hits GROUP BY domain`)
	if err != nil {
		return nil, fmt.Errorf("hitlog: count by domain: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var domain string
		var n int64
		if err := rows.Scan(&domain, &n); err != nil {
			return nil, fmt.Errorf("hitlog: scan: %w", err)
		}
		out[domain] = n
	}
	return out, rows.Err()
}
