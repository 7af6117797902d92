package pulse

import "fmt"

// RunContext is the explicit execution context threaded through a
// computation's run. Dependency recording is a visible side channel of the
// context, not ambient global state: only reads performed through Read are
// tracked, and the tracked set becomes the computation's dependency edge set
// for this run.
//
// A RunContext is only valid for the duration of the body invocation it was
// created for.
type RunContext struct {
	engine *Engine
	frame  *frame
	comp   *Computation

	// reads are the nodes read through Read on this run, deduplicated.
	reads []*node
	seen  map[string]bool
}

// Read returns the current value of a cell, or the settled output of
// another computation, and records a dependency edge for this run.
func (rc *RunContext) Read(id string) (any, error) {
	if c, ok := rc.engine.cells[id]; ok {
		rc.track(&c.node)
		return c.value, nil
	}
	if c, ok := rc.engine.comps[id]; ok {
		rc.track(&c.out)
		return c.output, nil
	}
	return nil, &UnknownIDError{ID: id}
}

// ReadUntracked returns the current value without creating a dependency
// edge. Used for carry-over reads and host-style inspection from inside a
// body.
func (rc *RunContext) ReadUntracked(id string) (any, error) {
	return rc.engine.readLocked(id)
}

// Write performs a re-entrant write from inside a running computation. The
// write is equality-gated like Engine.Write, but value changes count
// against the frame's cycle guard: advancing a cell beyond the configured
// bound fails the frame with a CycleError, and the offending write is not
// applied: the cell keeps both its value and its version.
func (rc *RunContext) Write(id string, value any) error {
	if rc.frame.failed != nil {
		return rc.frame.failed
	}

	c, ok := rc.engine.cells[id]
	if !ok {
		if _, isComp := rc.engine.comps[id]; isComp {
			return fmt.Errorf("pulse: id %q is a computation, not a writable cell: %w", id, ErrUnknownID)
		}
		return &UnknownIDError{ID: id}
	}

	if c.equals(c.value, value) {
		// Settled: a no-op write does not advance the cell.
		c.version++
		return nil
	}
	if !rc.frame.advance(c.id, rc.engine.cfg.CycleBound) {
		// The offending write is never applied, so the version holds.
		return rc.frame.failed
	}
	rc.frame.recordWriter(c.id, rc.comp.id)

	c.version++
	c.value = value
	for _, sub := range c.subscribers() {
		if sub.markDirty() {
			rc.engine.enqueue(sub)
		}
	}
	return nil
}

// DestroyScope tears a scope down from inside a running computation. The
// teardown is immediate: the scope's cells and computations are removed,
// and any of its computations still dirty in this frame are dropped from
// the flush without running. Destroying the running computation's own
// scope is allowed; the rest of the body executes but its reads and
// output are discarded.
func (rc *RunContext) DestroyScope(id string) error {
	s, ok := rc.engine.scopes[id]
	if !ok {
		return &UnknownIDError{ID: id}
	}
	s.dispose()
	return nil
}

// ComputationID returns the id of the computation this run belongs to.
func (rc *RunContext) ComputationID() string {
	return rc.comp.id
}

// Frame returns the generation number of the propagation frame driving
// this run.
func (rc *RunContext) Frame() uint64 {
	return rc.frame.gen
}

// track records a dependency edge for this run, deduplicated by id.
// The subscription is made immediately so that a write-back later in the
// same body re-dirties this computation through the fresh edge.
func (rc *RunContext) track(n *node) {
	if rc.seen == nil {
		rc.seen = make(map[string]bool)
	}
	if rc.seen[n.id] {
		return
	}
	rc.seen[n.id] = true
	rc.reads = append(rc.reads, n)
	if !rc.comp.destroyed {
		n.subscribe(rc.comp)
	}
}

// ReadInt reads a cell holding an int.
func (rc *RunContext) ReadInt(id string) (int, error) {
	v, err := rc.Read(id)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("pulse: cell %q holds %T, not int", id, v)
	}
	return n, nil
}

// ReadString reads a cell holding a string.
func (rc *RunContext) ReadString(id string) (string, error) {
	v, err := rc.Read(id)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("pulse: cell %q holds %T, not string", id, v)
	}
	return s, nil
}

// ReadBool reads a cell holding a bool.
func (rc *RunContext) ReadBool(id string) (bool, error) {
	v, err := rc.Read(id)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("pulse: cell %q holds %T, not bool", id, v)
	}
	return b, nil
}

// ReadFloat reads a cell holding a float64.
func (rc *RunContext) ReadFloat(id string) (float64, error) {
	v, err := rc.Read(id)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("pulse: cell %q holds %T, not float64", id, v)
	}
	return f, nil
}
