package weight

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "weights.json"), cfg, nil)
	s.Load()
	return s
}

func TestNewServiceStartsAtFloor(t *testing.T) {
	// WHAT: A freshly registered service has weight == floor.
	s := newTestStore(t, Config{})
	s.Register("pics.example")
	if got := s.Weight("pics.example"); got != 1.0 {
		t.Errorf("weight: got %v, want 1.0", got)
	}
}

func TestIncrementDecrementClamp(t *testing.T) {
	// WHAT: Hit adds 0.1, miss subtracts 0.025, never below the floor.
	// WHY: Rewards outweigh penalties and the floor holds under any
	// failure run, so no service ever becomes unreachable.
	s := newTestStore(t, Config{Increment: 0.1, Decrement: 0.025, Floor: 1.0})
	s.Register("pics.example")

	s.RecordOutcome("pics.example", true)
	if got := s.Weight("pics.example"); math.Abs(got-1.1) > 1e-9 {
		t.Errorf("after hit: got %v, want 1.1", got)
	}
	s.RecordOutcome("pics.example", false)
	if got := s.Weight("pics.example"); math.Abs(got-1.075) > 1e-9 {
		t.Errorf("after miss: got %v, want 1.075", got)
	}
	for i := 0; i < 100; i++ {
		s.RecordOutcome("pics.example", false)
	}
	if got := s.Weight("pics.example"); got != 1.0 {
		t.Errorf("after many misses: got %v, want floor 1.0", got)
	}
}

func TestFlushConcurrentWithRecordPersists(t *testing.T) {
	// WHAT: An outcome recorded while a flush is writing still reaches the
	// file on the next flush.
	// WHY: The dirty flag must clear with the snapshot, not after the
	// write; otherwise the shutdown flush no-ops and the outcome is lost.
	path := filepath.Join(t.TempDir(), "weights.json")
	cfg := Config{Increment: 0.1, Decrement: 0.025, Floor: 1.0}
	s := New(path, cfg, nil)
	s.Load()
	s.Register("pics.example")

	for i := 0; i < 500; i++ {
		done := make(chan struct{})
		go func() {
			s.Flush()
			close(done)
		}()
		s.RecordOutcome("pics.example", true)
		<-done
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("final flush: %v", err)
	}

	fresh := New(path, cfg, nil)
	fresh.Load()
	got, want := fresh.Weight("pics.example"), s.Weight("pics.example")
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("persisted weight %v, in-memory %v: outcome lost in flush window", got, want)
	}
}

func TestConsecutiveHitsAccumulate(t *testing.T) {
	// WHAT: N hits from the floor yield floor + N*increment; no upper cap.
	s := newTestStore(t, Config{Increment: 0.1, Decrement: 0.025, Floor: 1.0})
	s.Register("pics.example")
	const n = 50
	for i := 0; i < n; i++ {
		s.RecordOutcome("pics.example", true)
	}
	want := 1.0 + n*0.1
	if got := s.Weight("pics.example"); math.Abs(got-want) > 1e-9 {
		t.Errorf("after %d hits: got %v, want %v", n, got, want)
	}
}

func TestPickProportionalToWeight(t *testing.T) {
	// WHAT: A dominant weight wins selection in proportion to its share.
	// WHY: Weighting is the only mechanism steering effort distribution.
	s := newTestStore(t, Config{})
	s.Register("hot.example")
	s.Register("cold.example")
	for i := 0; i < 90; i++ {
		s.RecordOutcome("hot.example", true) // 1.0 + 9.0 = 10.0
	}

	// hot share = 10/11 ≈ 0.909.
	counts := map[string]int{}
	const draws = 20000
	for i := 0; i < draws; i++ {
		counts[s.Pick()]++
	}
	hotShare := float64(counts["hot.example"]) / draws
	if hotShare < 0.87 || hotShare > 0.95 {
		t.Errorf("hot share: got %v, want ≈ 0.909", hotShare)
	}
	if counts["cold.example"] == 0 {
		t.Error("cold service must remain reachable")
	}
}

func TestPickDeterministicBoundaries(t *testing.T) {
	// WHAT: Pick maps the random draw onto cumulative intervals correctly.
	s := newTestStore(t, Config{})
	s.Register("a.example")
	s.Register("b.example") // equal weights, sorted order: a, b

	s.randFloat = func() float64 { return 0.0 }
	if got := s.Pick(); got != "a.example" {
		t.Errorf("draw 0.0: got %q, want a.example", got)
	}
	s.randFloat = func() float64 { return 0.999 }
	if got := s.Pick(); got != "b.example" {
		t.Errorf("draw 0.999: got %q, want b.example", got)
	}
}

func TestPickEmptyStore(t *testing.T) {
	// WHAT: Pick on an empty store returns "" rather than panicking.
	s := newTestStore(t, Config{})
	if got := s.Pick(); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestFlushLoadRoundTrip(t *testing.T) {
	// WHAT: Flush + Load on a fresh store reproduces equivalent weights.
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.json")

	s := New(path, Config{}, nil)
	s.Load()
	s.Register("pics.example")
	s.RecordOutcome("pics.example", true)
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	fresh := New(path, Config{}, nil)
	fresh.Load()
	if got := fresh.Weight("pics.example"); math.Abs(got-1.1) > 1e-9 {
		t.Errorf("round trip: got %v, want 1.1", got)
	}
}

func TestLoadMalformedDocument(t *testing.T) {
	// WHAT: Corrupt weights reset to empty without failing.
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.json")
	if err := os.WriteFile(path, []byte(`[1,2,3`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path, Config{}, nil)
	s.Load()
	s.Register("pics.example")
	if got := s.Weight("pics.example"); got != 1.0 {
		t.Errorf("got %v, want floor after recovery", got)
	}
}

func TestLoadClampsBelowFloor(t *testing.T) {
	// WHAT: Persisted weights below the current floor are raised on load.
	// WHY: The floor invariant must hold across config changes.
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.json")
	if err := os.WriteFile(path, []byte(`{"weights":{"pics.example":0.2}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path, Config{Floor: 1.0}, nil)
	s.Load()
	if got := s.Weight("pics.example"); got != 1.0 {
		t.Errorf("got %v, want clamped 1.0", got)
	}
}
