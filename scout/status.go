package scout

import "time"

// Status is a point-in-time snapshot of the engine.
type Status struct {
	StartedAt time.Time     `json:"started_at"`
	Uptime    time.Duration `json:"uptime"`

	Attempts int64 `json:"attempts"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Errors   int64 `json:"errors"`

	// KnownURLs is the size of the tested-URL ledger, imports included.
	KnownURLs int64 `json:"known_urls"`

	// Weights maps every registered service domain to its current weight.
	Weights map[string]float64 `json:"weights"`
}

// Status reports the current counters and weights. Safe to call concurrently
// with the probe loop.
func (s *Service) Status() (Status, error) {
	s.mu.Lock()
	started := s.started
	startedAt := s.startedAt
	s.mu.Unlock()
	if !started {
		return Status{}, ErrNotStarted
	}
	return Status{
		StartedAt: startedAt,
		Uptime:    time.Since(startedAt),
		Attempts:  s.attempts.Load(),
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Errors:    s.errors.Load(),
		KnownURLs: s.ledger.Count(),
		Weights:   s.weights.Snapshot(),
	}, nil
}
