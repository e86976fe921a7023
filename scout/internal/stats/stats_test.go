package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "stats.json"), nil)
}

func TestRecordSuccessCountsOnlyIncrease(t *testing.T) {
	// WHAT: Counters grow monotonically and only via RecordSuccess.
	// WHY: The frequency table invariant is append-only on hits.
	s := newTestStore(t)
	s.Load()

	s.RecordSuccess("pics.example", []string{"a", "B", "3"})
	s.RecordSuccess("pics.example", []string{"a", "c", "3"})

	counts := s.PositionCounts("pics.example", 3)
	if counts[0]["a"] != 2 {
		t.Errorf("pos 0 'a': got %d, want 2", counts[0]["a"])
	}
	if counts[1]["B"] != 1 || counts[1]["c"] != 1 {
		t.Errorf("pos 1: got %v", counts[1])
	}
	if counts[2]["3"] != 2 {
		t.Errorf("pos 2 '3': got %d, want 2", counts[2]["3"])
	}
}

func TestPatternClasses(t *testing.T) {
	// WHAT: Class counters track upper/lower/digit/other per position.
	s := newTestStore(t)
	s.Load()

	s.RecordSuccess("pics.example", []string{"A", "b", "7"})
	s.RecordSuccess("pics.example", []string{"X", "🔥", "2"})

	doc := s.Snapshot()
	svc := doc.Services["pics.example"]
	if svc == nil {
		t.Fatal("missing service stats")
	}
	if svc.Classes[0].Upper != 2 {
		t.Errorf("pos 0 upper: got %d, want 2", svc.Classes[0].Upper)
	}
	if svc.Classes[1].Lower != 1 || svc.Classes[1].Other != 1 {
		t.Errorf("pos 1: got %+v", svc.Classes[1])
	}
	if svc.Classes[2].Digit != 2 {
		t.Errorf("pos 2 digit: got %d, want 2", svc.Classes[2].Digit)
	}
}

func TestPositionCountsUnknownService(t *testing.T) {
	// WHAT: Unknown services yield empty (not nil) per-position maps.
	// WHY: The generator treats empty counts as the uniform fallback.
	s := newTestStore(t)
	s.Load()

	counts := s.PositionCounts("unseen.example", 4)
	if len(counts) != 4 {
		t.Fatalf("positions: got %d, want 4", len(counts))
	}
	for i, m := range counts {
		if m == nil {
			t.Errorf("position %d: nil map", i)
		}
		if len(m) != 0 {
			t.Errorf("position %d: unexpected counts %v", i, m)
		}
	}
}

func TestFlushLoadRoundTrip(t *testing.T) {
	// WHAT: Flush followed by Load on a fresh store reproduces the state.
	// WHY: Learned statistics must survive restarts.
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")

	s := New(path, nil)
	s.Load()
	s.RecordSuccess("pics.example", []string{"a", "a"})
	s.RecordSuccess("vids.example", []string{"9"})
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	fresh := New(path, nil)
	fresh.Load()
	counts := fresh.PositionCounts("pics.example", 2)
	if counts[0]["a"] != 1 || counts[1]["a"] != 1 {
		t.Errorf("round trip: got %v", counts)
	}
	if fresh.PositionCounts("vids.example", 1)[0]["9"] != 1 {
		t.Error("vids.example counts lost")
	}
}

func TestFlushConcurrentWithRecordPersists(t *testing.T) {
	// WHAT: A success recorded while a flush is writing still reaches the
	// file on the next flush.
	// WHY: The dirty flag must clear with the snapshot, not after the
	// write; otherwise the shutdown flush no-ops and the update is lost.
	path := filepath.Join(t.TempDir(), "stats.json")
	s := New(path, nil)
	s.Load()

	const n = 300
	for i := 0; i < n; i++ {
		done := make(chan struct{})
		go func() {
			s.Flush()
			close(done)
		}()
		s.RecordSuccess("pics.example", []string{"a"})
		<-done
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("final flush: %v", err)
	}

	fresh := New(path, nil)
	fresh.Load()
	if got := fresh.PositionCounts("pics.example", 1)[0]["a"]; got != n {
		t.Errorf("persisted count = %d, want %d: success lost in flush window", got, n)
	}
}

func TestLoadMalformedDocument(t *testing.T) {
	// WHAT: Load on a corrupt document yields an empty valid store.
	// WHY: Corrupt learned state is never fatal, only lost.
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path, nil)
	s.Load()
	counts := s.PositionCounts("pics.example", 2)
	if len(counts[0]) != 0 {
		t.Errorf("expected empty store, got %v", counts)
	}

	// The store must remain writable after recovery.
	s.RecordSuccess("pics.example", []string{"z", "z"})
	if err := s.Flush(); err != nil {
		t.Fatalf("flush after recovery: %v", err)
	}
}

func TestFlushSkipsWhenClean(t *testing.T) {
	// WHAT: Flush without changes does not rewrite the file.
	s := newTestStore(t)
	s.Load()
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, err := os.Stat(s.path); !os.IsNotExist(err) {
		t.Error("clean flush should not create the file")
	}
}

func TestFlushAtomicNoTempLeftover(t *testing.T) {
	// WHAT: A successful flush leaves only the target document behind.
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	s := New(path, nil)
	s.Load()
	s.RecordSuccess("pics.example", []string{"a"})
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".stats.json.") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
