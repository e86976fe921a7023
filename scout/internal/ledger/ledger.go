// CLAUDE:SUMMARY Durable tested-URL set: Pebble-backed ledger with a sharded in-memory front cache, append-only across restarts.
// Package ledger records every fully-qualified URL that has been probed, so
// a URL is never probed twice within a run or across restarts.
//
// Storage is a Pebble keyspace (one key per URL, empty value) fronted by a
// sharded in-memory hash set so the hot path rarely touches disk. Entries
// are only ever added.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/zeebo/xxh3"
)

const shardCount = 16

type shard struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
}

// Ledger is the durable set of tested URLs.
type Ledger struct {
	db     *pebble.DB
	logger *slog.Logger
	shards [shardCount]shard
	count  atomic.Int64
}

// Open opens (or creates) the ledger at dir and warms the front cache from
// the existing keyspace.
func Open(dir string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", dir, err)
	}

	l := &Ledger{db: db, logger: logger}
	for i := range l.shards {
		l.shards[i].seen = make(map[uint64]struct{})
	}

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: iterate %s: %w", dir, err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		l.cacheInsert(string(iter.Key()))
		l.count.Add(1)
	}
	if err := iter.Close(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: close iterator: %w", err)
	}

	logger.Info("ledger: opened", "dir", dir, "urls", l.count.Load())
	return l, nil
}

func shardFor(h uint64) int { return int(h % shardCount) }

func (l *Ledger) cacheInsert(url string) {
	h := xxh3.HashString(url)
	sh := &l.shards[shardFor(h)]
	sh.mu.Lock()
	sh.seen[h] = struct{}{}
	sh.mu.Unlock()
}

// Seen reports whether a URL was already recorded. Served entirely from the
// front cache: every durable entry is loaded at Open and every Record
// populates the cache, so a disk read is never needed.
//
// The cache stores 64-bit xxh3 hashes, not the URLs themselves; a hash
// collision skips one candidate, which is harmless for this workload.
func (l *Ledger) Seen(url string) bool {
	h := xxh3.HashString(url)
	sh := &l.shards[shardFor(h)]
	sh.mu.Lock()
	_, ok := sh.seen[h]
	sh.mu.Unlock()
	return ok
}

// Record appends a URL to the ledger, durably. Recording an already-present
// URL is a no-op. The front cache is updated before the disk write returns
// so concurrent workers stop re-probing immediately.
func (l *Ledger) Record(url string) error {
	h := xxh3.HashString(url)
	sh := &l.shards[shardFor(h)]
	sh.mu.Lock()
	_, dup := sh.seen[h]
	sh.seen[h] = struct{}{}
	sh.mu.Unlock()
	if dup {
		return nil
	}

	if err := l.db.Set([]byte(url), nil, pebble.Sync); err != nil {
		return fmt.Errorf("ledger: record %s: %w", url, err)
	}
	l.count.Add(1)
	return nil
}

// Count returns the number of recorded URLs.
func (l *Ledger) Count() int64 { return l.count.Load() }

// ImportText loads a legacy plain-text ledger (one URL per line) into the
// store. Returns the number of newly imported URLs. A missing file is not
// an error: there is simply nothing to import.
func (l *Ledger) ImportText(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger: import %s: %w", path, err)
	}
	defer f.Close()

	var imported int
	batch := l.db.NewBatch()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		url := strings.TrimSpace(sc.Text())
		if url == "" || l.Seen(url) {
			continue
		}
		if err := batch.Set([]byte(url), nil, pebble.NoSync); err != nil {
			batch.Close()
			return imported, fmt.Errorf("ledger: batch set: %w", err)
		}
		l.cacheInsert(url)
		l.count.Add(1)
		imported++
	}
	if err := sc.Err(); err != nil {
		batch.Close()
		return imported, fmt.Errorf("ledger: scan %s: %w", path, err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return imported, fmt.Errorf("ledger: commit import: %w", err)
	}
	l.logger.Info("ledger: imported legacy file", "path", path, "urls", imported)
	return imported, nil
}

// Close flushes and closes the underlying store.
func (l *Ledger) Close() error {
	return l.db.Close()
}
