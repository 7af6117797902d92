package pulse

// Body is a computation's executable body. It receives an explicit
// RunContext rather than an ambient tracking context: reads through the
// context are recorded as dependency edges for this run, and writes through
// it are re-entrant writes gated by the cycle guard.
//
// A body returning an error leaves the computation at its last good output;
// the failure is reported as a ComputationError and propagation continues
// for independent subgraphs.
type Body func(rc *RunContext) (any, error)

// Computation is a derived value in the dependency graph. Its dependency set
// is exactly the nodes it read on its most recent run; stale edges from
// earlier runs are pruned each time it executes.
type Computation struct {
	// out is this computation's output node; downstream computations that
	// read this computation subscribe here.
	out node

	id    string
	scope *Scope
	body  Body

	// dirty marks the computation for re-execution on the next flush.
	// Set at most once per cause; cleared immediately before the body runs.
	dirty bool

	// sources are the nodes read on the most recent run.
	sources []*node

	// output is the last successfully computed value.
	output any

	// ran reports whether the body has completed successfully at least once.
	ran bool

	destroyed bool
}

// ID returns the computation's stable identifier.
func (c *Computation) ID() string { return c.id }

// Output returns the last successfully computed value.
// Host-side inspection should prefer Engine.Output.
func (c *Computation) Output() any { return c.output }

// markDirty flags the computation for re-execution. Idempotent: a
// computation dirtied by several upstream writes in the same frame is
// enqueued once and runs once.
func (c *Computation) markDirty() bool {
	if c.destroyed || c.dirty {
		return false
	}
	c.dirty = true
	return true
}

// detachSources removes this computation from the subscriber sets of
// everything it currently reads.
func (c *Computation) detachSources() {
	for _, src := range c.sources {
		src.unsubscribe(c)
	}
	c.sources = nil
}
