package scout

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/sourcier/catalog"
	"github.com/hazyhaar/sourcier/notify"
	"github.com/hazyhaar/sourcier/probe"
)

// WHAT: end-to-end behavior of the Service: lifecycle, outcome routing,
// adaptation, legacy import and state flushing.
// WHY: the orchestrator is where every collaborator meets; a wiring mistake
// here (wrong store fed, notifier starved, ledger skipped) passes every unit
// test and still loses data in production.

type scriptedProber struct {
	mu    sync.Mutex
	calls int
	fn    func(url string) (*probe.Result, error)
}

func (p *scriptedProber) Probe(_ context.Context, _ *catalog.Service, url string) (*probe.Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.fn(url)
}

func (p *scriptedProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type collectingNotifier struct {
	mu   sync.Mutex
	hits []notify.Hit
}

func (n *collectingNotifier) Notify(_ context.Context, hit notify.Hit) error {
	n.mu.Lock()
	n.hits = append(n.hits, hit)
	n.mu.Unlock()
	return nil
}

func (n *collectingNotifier) collected() []notify.Hit {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Hit(nil), n.hits...)
}

func testCatalog(t *testing.T, domain string, length int, alphabet catalog.AlphabetKind) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Service{{
		Domain:   domain,
		Length:   length,
		Alphabet: alphabet,
	}})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		DataDir:       t.TempDir(),
		FlushInterval: time.Hour, // flush on Close only
		Workers:       2,
		Pause:         time.Millisecond,
		ErrorBackoff:  time.Millisecond,
	}
}

// run starts the service, lets the pool work for the given duration and
// closes it, failing the test on any lifecycle error.
func run(t *testing.T, s *Service, d time.Duration) Status {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(d)
	status, err := s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return status
}

func TestHitsAdaptAndNotify(t *testing.T) {
	cat := testCatalog(t, "pics.example", 2, catalog.AlphabetDigits)
	prober := &scriptedProber{fn: func(url string) (*probe.Result, error) {
		return &probe.Result{Exists: true}, nil
	}}
	sink := &collectingNotifier{}

	s, err := New(cat, testConfig(t), WithProber(prober), WithNotifier(sink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status := run(t, s, 150*time.Millisecond)

	if status.Hits == 0 {
		t.Fatal("expected at least one hit")
	}
	if status.Weights["pics.example"] <= 1.0 {
		t.Errorf("weight not raised by hits: %v", status.Weights["pics.example"])
	}
	hits := sink.collected()
	if len(hits) == 0 {
		t.Fatal("notifier received no hits")
	}
	for _, h := range hits {
		if h.Domain != "pics.example" {
			t.Errorf("hit domain = %q", h.Domain)
		}
		if !strings.HasPrefix(h.URL, "https://i.pics.example/") {
			t.Errorf("hit url = %q", h.URL)
		}
		if h.ResolvedURL != h.URL {
			t.Errorf("direct-mode hit should resolve to itself, got %q", h.ResolvedURL)
		}
		if h.FoundAt.IsZero() {
			t.Error("hit has zero FoundAt")
		}
	}
	if status.KnownURLs == 0 {
		t.Error("ledger empty after hits")
	}
}

func TestMissesStayAtFloor(t *testing.T) {
	cat := testCatalog(t, "gone.example", 3, catalog.AlphabetDigits)
	prober := &scriptedProber{fn: func(url string) (*probe.Result, error) {
		return &probe.Result{Exists: false}, nil
	}}

	s, err := New(cat, testConfig(t), WithProber(prober))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status := run(t, s, 100*time.Millisecond)

	if status.Misses == 0 {
		t.Fatal("expected misses")
	}
	if status.Hits != 0 {
		t.Errorf("hits = %d, want 0", status.Hits)
	}
	if w := status.Weights["gone.example"]; w != 1.0 {
		t.Errorf("weight = %v, want floor 1.0", w)
	}
	if status.KnownURLs == 0 {
		t.Error("misses must still enter the ledger")
	}
}

func TestTransportErrorsTouchNothing(t *testing.T) {
	cat := testCatalog(t, "flaky.example", 3, catalog.AlphabetDigits)
	prober := &scriptedProber{fn: func(url string) (*probe.Result, error) {
		return nil, errors.New("connection refused")
	}}

	s, err := New(cat, testConfig(t), WithProber(prober))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status := run(t, s, 100*time.Millisecond)

	if status.Errors == 0 {
		t.Fatal("expected transport errors")
	}
	if status.Hits != 0 || status.Misses != 0 {
		t.Errorf("hits=%d misses=%d, want 0/0", status.Hits, status.Misses)
	}
	if w := status.Weights["flaky.example"]; w != 1.0 {
		t.Errorf("weight = %v, transport errors must not move it", w)
	}
	if status.KnownURLs != 0 {
		t.Errorf("known urls = %d, failed probes must be retryable", status.KnownURLs)
	}
}

func TestLegacyLedgerImportSkipsKnownCodes(t *testing.T) {
	cat := testCatalog(t, "tiny.example", 1, catalog.AlphabetDigits)

	// Pre-test the entire code space so every candidate is a dedup skip.
	var lines []string
	for d := '0'; d <= '9'; d++ {
		lines = append(lines, "https://i.tiny.example/"+string(d))
	}
	legacy := filepath.Join(t.TempDir(), "tested_urls.txt")
	if err := os.WriteFile(legacy, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	prober := &scriptedProber{fn: func(url string) (*probe.Result, error) {
		return &probe.Result{Exists: true}, nil
	}}
	cfg := testConfig(t)
	cfg.LegacyLedger = legacy

	s, err := New(cat, cfg, WithProber(prober))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status := run(t, s, 100*time.Millisecond)

	if status.KnownURLs != 10 {
		t.Errorf("known urls = %d, want 10 imported", status.KnownURLs)
	}
	if got := prober.count(); got != 0 {
		t.Errorf("prober called %d times for fully-tested code space", got)
	}
	if status.Attempts != 0 {
		t.Errorf("attempts = %d, dedup skips must not count", status.Attempts)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	cat := testCatalog(t, "pics.example", 2, catalog.AlphabetDigits)
	dataDir := t.TempDir()
	hit := func(url string) (*probe.Result, error) {
		return &probe.Result{Exists: true}, nil
	}

	cfg := testConfig(t)
	cfg.DataDir = dataDir
	s, err := New(cat, cfg, WithProber(&scriptedProber{fn: hit}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first := run(t, s, 150*time.Millisecond)
	if first.Hits == 0 {
		t.Fatal("expected hits in first run")
	}

	for _, name := range []string{"stats.json", "weights.json"} {
		if _, err := os.Stat(filepath.Join(dataDir, name)); err != nil {
			t.Errorf("%s not flushed on close: %v", name, err)
		}
	}

	cfg2 := testConfig(t)
	cfg2.DataDir = dataDir
	s2, err := New(cat, cfg2, WithProber(&scriptedProber{fn: hit}))
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}
	if err := s2.Start(context.Background()); err != nil {
		t.Fatalf("Start (second): %v", err)
	}
	second, err := s2.Status()
	if err != nil {
		t.Fatalf("Status (second): %v", err)
	}
	if err := s2.Close(); err != nil {
		t.Fatalf("Close (second): %v", err)
	}

	if second.KnownURLs < first.KnownURLs {
		t.Errorf("ledger shrank across restart: %d -> %d", first.KnownURLs, second.KnownURLs)
	}
	if second.Weights["pics.example"] < first.Weights["pics.example"] {
		t.Errorf("weight regressed across restart: %v -> %v",
			first.Weights["pics.example"], second.Weights["pics.example"])
	}
}

func TestLifecycleErrors(t *testing.T) {
	cat := testCatalog(t, "pics.example", 2, catalog.AlphabetDigits)
	prober := &scriptedProber{fn: func(url string) (*probe.Result, error) {
		return &probe.Result{Exists: false}, nil
	}}

	s, err := New(cat, testConfig(t), WithProber(prober))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Status(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Status before Start = %v, want ErrNotStarted", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := New(nil, nil); !errors.Is(err, catalog.ErrNoServices) {
		t.Errorf("New(nil catalog) = %v, want ErrNoServices", err)
	}
}
