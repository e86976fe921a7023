// CLAUDE:SUMMARY Candidate code synthesis: per-position weighted sampling over the service alphabet, biased by learned frequencies plus a uniform floor.
// Package gen synthesizes candidate codes for a service.
//
// Each position is drawn independently from a distribution built over the
// service's alphabet: the learned frequency count for every symbol plus a
// small uniform floor, so unseen symbols stay reachable and the distribution
// is never degenerate. With no statistics the draw degrades to uniform.
package gen

import (
	"math/rand"
	"strings"

	"github.com/hazyhaar/sourcier/catalog"
)

// DefaultFloor is the uniform weight added to every symbol at every position.
const DefaultFloor = 1.0

// CountsFunc supplies the learned per-position symbol counts for a service,
// padded to length positions (empty maps where nothing was observed).
type CountsFunc func(domain string, length int) []map[string]uint64

// Generator produces candidate codes. Stateless between calls except for
// reading the shared statistics through counts.
type Generator struct {
	counts    CountsFunc
	floor     float64
	randFloat func() float64 // in [0,1); swapped in tests
}

// Option configures a Generator.
type Option func(*Generator)

// WithFloor overrides the uniform floor weight.
func WithFloor(floor float64) Option {
	return func(g *Generator) {
		if floor > 0 {
			g.floor = floor
		}
	}
}

// WithRand overrides the random source. Test hook.
func WithRand(f func() float64) Option {
	return func(g *Generator) { g.randFloat = f }
}

// New creates a Generator reading statistics through counts.
func New(counts CountsFunc, opts ...Option) *Generator {
	g := &Generator{
		counts:    counts,
		floor:     DefaultFloor,
		randFloat: rand.Float64,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a candidate code for the service and the symbols it is
// composed of, one per position. The symbol slice is what callers feed back
// into the statistics on a confirmed hit.
func (g *Generator) Generate(svc *catalog.Service) (string, []string) {
	alphabet := svc.Symbols()
	counts := g.counts(svc.Domain, svc.Length)

	symbols := make([]string, svc.Length)
	weights := make([]float64, len(alphabet))
	for pos := 0; pos < svc.Length; pos++ {
		var total float64
		for i, sym := range alphabet {
			w := g.floor
			if pos < len(counts) && counts[pos] != nil {
				w += float64(counts[pos][sym])
			}
			weights[i] = w
			total += w
		}
		symbols[pos] = alphabet[sample(weights, total, g.randFloat())]
	}
	return strings.Join(symbols, ""), symbols
}

// sample returns the index selected by draw*total over cumulative weights.
func sample(weights []float64, total, draw float64) int {
	target := draw * total
	var sum float64
	for i, w := range weights {
		sum += w
		if target < sum {
			return i
		}
	}
	return len(weights) - 1 // float round-off lands on the last symbol
}
