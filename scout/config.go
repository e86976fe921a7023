package scout

import (
	"time"

	"github.com/hazyhaar/sourcier/probe"
)

// Config configures the scout service. Zero values get sensible defaults so
// an empty Config is runnable.
type Config struct {
	// DataDir is the root directory for persisted learning state: the
	// statistics document, the weights document, and the tested-URL ledger.
	DataDir string

	// FlushInterval is the cadence of periodic store flushes. Stores are
	// also flushed on graceful shutdown. Default: 30s.
	FlushInterval time.Duration

	// LegacyLedger optionally points at a plain-text tested-URL file
	// (one URL per line) imported into the ledger at startup.
	LegacyLedger string

	// GenFloor is the uniform floor weight added to every symbol during
	// candidate generation. Default: 1.0.
	GenFloor float64

	// Workers is the probing pool size. Default: 4.
	Workers int

	// Pause between iterations of one worker. Default: 100ms.
	Pause time.Duration

	// ErrorBackoff is how long a worker sleeps after a transport failure.
	// Default: 2s.
	ErrorBackoff time.Duration

	// WeightIncrement is added to a service's weight on a hit. Default: 0.1.
	WeightIncrement float64

	// WeightDecrement is subtracted on a miss, clamped at WeightFloor.
	// Default: 0.025.
	WeightDecrement float64

	// WeightFloor is the lower clamp and initial weight. Default: 1.0.
	WeightFloor float64

	// Probe configures the default HTTP prober, used unless WithProber
	// overrides it.
	Probe probe.Config
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.GenFloor <= 0 {
		c.GenFloor = 1.0
	}
	// Worker and weight knobs keep their zero values here; the worker pool
	// and weight store apply their own defaults.
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}
