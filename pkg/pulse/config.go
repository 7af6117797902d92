package pulse

import "log/slog"

// Default guard limits. CycleBound detects immediate write-back cycles;
// MaxPasses caps the total number of propagation waves a single frame may
// take, covering deep chains and mutually-derived values that never settle.
const (
	DefaultCycleBound = 1
	DefaultMaxPasses  = 64
)

// Config configures an Engine.
type Config struct {
	// CycleBound is the number of re-entrant advances a single cell may
	// receive within one propagation frame before the frame is aborted with
	// a CycleError. The default (1) detects immediate cycles; raise it for
	// convergent iterative graphs that need a bounded number of extra
	// passes to settle. Must be finite and >= 1.
	CycleBound int

	// MaxPasses caps propagation waves per frame. A legitimate chain of N
	// derived values needs at most N waves; the cap only trips on graphs
	// that keep re-dirtying themselves.
	MaxPasses int

	// OnCondition receives engine conditions (CycleError,
	// ComputationError) as they occur. Optional; conditions are also
	// returned from Flush where applicable.
	OnCondition func(Condition)

	// Logger receives structured engine logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the default guard limits.
func DefaultConfig() Config {
	return Config{
		CycleBound: DefaultCycleBound,
		MaxPasses:  DefaultMaxPasses,
	}
}

// normalize fills zero values with defaults.
func (c Config) normalize() Config {
	if c.CycleBound < 1 {
		c.CycleBound = DefaultCycleBound
	}
	if c.MaxPasses < 1 {
		c.MaxPasses = DefaultMaxPasses
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// DebugConfig controls debugging features for development.
type DebugConfig struct {
	// LogFlushes logs each flush with frame number, passes, and run count.
	LogFlushes bool

	// LogRuns logs each computation run.
	LogRuns bool
}

// Debug is the global debug configuration. Modify at application startup.
var Debug DebugConfig
