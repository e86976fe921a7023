// CLAUDE:SUMMARY SQLite-native metrics: buffered async timeseries writer plus a sampler that polls engine counters.
// Package obs persists engine metrics to SQLite instead of a metrics server.
//
// A Manager buffers datapoints in memory and flushes them in batches, so
// recording never blocks the probe loop; a full buffer flushes early rather
// than applying backpressure. The Sampler polls an engine status function on
// an interval and records the counter deltas plus Go runtime stats.
package obs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Schema is the DDL for the metrics database.
const Schema = `
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp
    ON metrics_timeseries(timestamp DESC);
`

// Metric names recorded by the Sampler.
const (
	MetricAttempts   = "probe_attempts_total"
	MetricHits       = "probe_hits_total"
	MetricMisses     = "probe_misses_total"
	MetricErrors     = "probe_errors_total"
	MetricKnownURLs  = "ledger_known_urls"
	MetricWeight     = "service_weight"
	MetricGoroutines = "goroutines_count"
	MetricMemAllocMB = "memory_alloc_mb"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string
}

// Manager buffers metrics and flushes them to SQLite in batches.
type Manager struct {
	db            *sql.DB
	logger        *slog.Logger
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []*Metric

	stop chan struct{}
	done chan struct{}
}

// New creates a Manager and starts its flush loop. bufferSize and
// flushInterval fall back to 100 and 5s when non-positive.
func New(db *sql.DB, logger *slog.Logger) (*Manager, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("obs: init schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		db:            db,
		logger:        logger,
		bufferSize:    100,
		flushInterval: 5 * time.Second,
		buffer:        make([]*Metric, 0, 100),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m, nil
}

// Record queues a metric for async persistence. Never blocks on I/O.
func (m *Manager) Record(mt *Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, mt)
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// Gauge records an unlabeled datapoint at the current time.
func (m *Manager) Gauge(name string, value float64, unit string) {
	m.Record(&Metric{Name: name, Timestamp: time.Now(), Value: value, Unit: unit})
}

// Query returns datapoints for one metric name, newest first. A zero since
// means unbounded.
func (m *Manager) Query(ctx context.Context, name string, since time.Time, limit int) ([]*Metric, error) {
	q := `SELECT metric_name, timestamp, value, labels, unit
	      FROM metrics_timeseries WHERE metric_name = ?`
	args := []any{name}
	if !since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, since.Unix())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("obs: query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			mt     Metric
			ts     int64
			labels sql.NullString
		)
		if err := rows.Scan(&mt.Name, &ts, &mt.Value, &labels, &mt.Unit); err != nil {
			return nil, fmt.Errorf("obs: scan metric: %w", err)
		}
		mt.Timestamp = time.Unix(ts, 0)
		if labels.Valid {
			var lm map[string]string
			if json.Unmarshal([]byte(labels.String), &lm) == nil {
				mt.Labels = lm
			}
		}
		out = append(out, &mt)
	}
	return out, rows.Err()
}

// Cleanup deletes datapoints older than the retention window and returns the
// number removed.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()
	res, err := m.db.ExecContext(ctx,
		"DELETE FROM metrics_timeseries WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("obs: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes the remaining buffer and stops the flush loop. The database
// stays open; the caller owns it.
func (m *Manager) Close() error {
	close(m.stop)
	<-m.done
	return nil
}

func (m *Manager) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
		}
	}
}

func (m *Manager) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.logger.Error("obs: begin tx", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit)
		 VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		m.logger.Error("obs: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, mt := range m.buffer {
		var labels sql.NullString
		if len(mt.Labels) > 0 {
			if b, err := json.Marshal(mt.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx,
			mt.Name, mt.Timestamp.Unix(), mt.Value, labels, mt.Unit); err != nil {
			m.logger.Error("obs: insert", "error", err, "metric", mt.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		m.logger.Error("obs: commit", "error", err)
	}
	m.buffer = m.buffer[:0]
}

// EngineStatus is the subset of engine counters the Sampler records.
type EngineStatus struct {
	Attempts  int64
	Hits      int64
	Misses    int64
	Errors    int64
	KnownURLs int64
	Weights   map[string]float64
}

// StatusFunc supplies a point-in-time engine snapshot.
type StatusFunc func() (EngineStatus, error)

// Sample records one round of engine and runtime metrics.
func (m *Manager) Sample(status StatusFunc) {
	st, err := status()
	if err != nil {
		m.logger.Debug("obs: sample skipped", "error", err)
		return
	}
	now := time.Now()
	m.Record(&Metric{Name: MetricAttempts, Timestamp: now, Value: float64(st.Attempts), Unit: "count"})
	m.Record(&Metric{Name: MetricHits, Timestamp: now, Value: float64(st.Hits), Unit: "count"})
	m.Record(&Metric{Name: MetricMisses, Timestamp: now, Value: float64(st.Misses), Unit: "count"})
	m.Record(&Metric{Name: MetricErrors, Timestamp: now, Value: float64(st.Errors), Unit: "count"})
	m.Record(&Metric{Name: MetricKnownURLs, Timestamp: now, Value: float64(st.KnownURLs), Unit: "count"})
	for domain, w := range st.Weights {
		m.Record(&Metric{
			Name:      MetricWeight,
			Timestamp: now,
			Value:     w,
			Labels:    map[string]string{"domain": domain},
			Unit:      "weight",
		})
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.Record(&Metric{Name: MetricGoroutines, Timestamp: now, Value: float64(runtime.NumGoroutine()), Unit: "count"})
	m.Record(&Metric{Name: MetricMemAllocMB, Timestamp: now, Value: float64(mem.Alloc) / 1024 / 1024, Unit: "mb"})
}

// RunSampler samples on the given interval until the context is cancelled.
// Blocks; run it in a goroutine.
func (m *Manager) RunSampler(ctx context.Context, status StatusFunc, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(status)
		}
	}
}
