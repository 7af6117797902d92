package pulse

import "fmt"

// Flush drains the pending invalidation set. Dirty computations run in
// dependency order: a computation with no dirty upstream dependency runs
// before its downstream dependents, and a downstream computation always
// observes fully settled upstream values. Computations whose output changes
// extend the frame to their own subscribers in a following wave.
//
// Flushing with nothing pending is a no-op: no computation executes.
//
// Flush returns a *CycleError when the frame exceeds the configured
// re-entrancy bound; the remaining dirty computations are returned to the
// pending set and cells keep their last settled values. Computation body
// failures do not abort the flush; they are reported as conditions and
// independent subgraphs continue.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	if len(e.pending) == 0 {
		return nil
	}

	e.frameGen++
	f := newFrame(e.frameGen)
	e.frame = f
	defer func() { e.frame = nil }()

	wave := dedupeDirty(e.pending)
	e.pending = nil
	runs := 0

	for len(wave) > 0 {
		if f.passes >= e.cfg.MaxPasses {
			f.failed = &CycleError{
				Frame:  f.gen,
				Cells:  f.advancedCells(""),
				Passes: f.passes,
			}
			e.abortFrame(f, wave)
			return f.failed
		}

		for _, c := range e.topoOrder(f, wave) {
			if c.destroyed || !c.dirty {
				// Destroyed mid-flush: dropped silently, not executed.
				continue
			}
			if dirtyUpstream(c) {
				// An earlier run in this pass dirtied a dependency.
				// Running now would observe a stale intermediate, so the
				// computation waits for the next wave instead.
				f.wave = append(f.wave, c)
				continue
			}
			e.runComputation(f, c)
			runs++
			if f.failed != nil {
				e.abortFrame(f, remainingDirty(wave, f.wave))
				return f.failed
			}
		}

		f.passes++
		wave = dedupeDirty(f.wave)
		f.wave = nil
	}

	if Debug.LogFlushes {
		e.logger.Debug("flush complete", "frame", f.gen, "passes", f.passes, "runs", runs)
	}
	return nil
}

// abortFrame reports the cycle and returns still-dirty computations to the
// pending set so that clearing a dirty flag always goes through execution.
// A later flush may retry (and re-detect) them.
func (e *Engine) abortFrame(f *frame, dirty []*Computation) {
	e.report(f.failed)
	for _, c := range dirty {
		if !c.destroyed && c.dirty {
			e.pending = append(e.pending, c)
		}
	}
}

// runComputation executes one computation body, refreshes its edges, and
// extends the frame if the output changed.
func (e *Engine) runComputation(f *frame, c *Computation) {
	// Clearing the dirty flag always re-executes the body before the flag
	// can be set again.
	c.dirty = false

	// Prune prior edges up front; reads subscribe eagerly during the run,
	// so a write-back later in the body finds the fresh subscription and
	// re-dirties this computation for the next wave.
	c.detachSources()

	rc := &RunContext{engine: e, frame: f, comp: c}
	out, err := runBody(c, rc)

	if c.destroyed {
		// The body tore down its own scope. The run is discarded: the
		// eager subscriptions it made are withdrawn and the output never
		// propagates.
		for _, n := range rc.reads {
			n.unsubscribe(c)
		}
		return
	}

	// Edges recorded so far stay valid even on failure; the subscriber set
	// reflects the most recent run and nothing dangles.
	e.recordRun(c, rc.reads)

	if Debug.LogRuns {
		e.logger.Debug("computation ran", "id", c.id, "frame", f.gen, "err", err)
	}

	if err != nil {
		if f.failed == nil {
			// A body error caused by the tripped guard is subsumed by the
			// frame's CycleError.
			e.report(&ComputationError{ComputationID: c.id, Frame: f.gen, Err: err})
		}
		return
	}

	changed := !c.ran || !valuesEqual(c.output, out)
	c.output = out
	c.ran = true

	if changed {
		for _, sub := range c.out.subscribers() {
			if sub.markDirty() {
				e.enqueue(sub)
			}
		}
	}
}

// runBody invokes the body, converting panics into computation failures so
// one faulty subgraph cannot take the engine down.
func runBody(c *Computation, rc *RunContext) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.body(rc)
}

// recordRun replaces the computation's edge set with the nodes read on this
// run. Subscriptions were established eagerly during the run; this settles
// the source list so later teardown and ordering see exactly the cells read
// on the most recent execution. Nodes whose owner was destroyed during the
// run are dropped: an id freed by teardown can be redeclared, and a stale
// pointer would miss the new cell's writes.
func (e *Engine) recordRun(c *Computation, reads []*node) {
	kept := reads[:0:0]
	for _, n := range reads {
		if !e.nodeLive(n) {
			continue
		}
		kept = append(kept, n)
		n.subscribe(c) // idempotent
	}
	c.sources = kept
}

// nodeLive reports whether the node still backs a registered cell or
// computation.
func (e *Engine) nodeLive(n *node) bool {
	if n.comp != nil {
		return !n.comp.destroyed
	}
	c, ok := e.cells[n.id]
	return ok && &c.node == n
}

// topoOrder orders a wave so that upstream computations run before any
// computation that transitively reads them. The dependency relation is
// computed over the current edge sets, walking through intermediate
// computations whether or not they are dirty. Computations that advanced
// a cell earlier in the frame count as upstream of that cell's readers:
// a re-entrant writer runs before the computations watching its cell, so
// a frame that is about to trip the guard aborts before any watcher
// executes on intermediate state.
func (e *Engine) topoOrder(f *frame, wave []*Computation) []*Computation {
	if len(wave) <= 1 {
		return wave
	}

	index := make(map[string]int, len(wave))
	for i, c := range wave {
		index[c.id] = i
	}

	adj := make([][]int, len(wave))
	indeg := make([]int, len(wave))

	for i, c := range wave {
		seen := make(map[string]bool)
		edges := make(map[string]bool)
		edge := func(upID string) {
			if j, ok := index[upID]; ok && j != i && !edges[upID] {
				edges[upID] = true
				adj[j] = append(adj[j], i)
				indeg[i]++
			}
		}
		var walk func(*Computation)
		walk = func(cur *Computation) {
			for _, src := range cur.sources {
				if up := src.comp; up != nil {
					if seen[up.id] {
						continue
					}
					seen[up.id] = true
					edge(up.id)
					walk(up)
					continue
				}
				for w := range f.writers[src.id] {
					edge(w)
				}
			}
		}
		walk(c)
	}

	// Kahn's algorithm, stable by wave position. A static cycle among
	// dirty computations leaves no zero-indegree candidate; we break the
	// tie by taking the earliest remaining and let the pass cap bound
	// the frame.
	ordered := make([]*Computation, 0, len(wave))
	done := make([]bool, len(wave))
	for len(ordered) < len(wave) {
		pick := -1
		for i := range wave {
			if !done[i] && indeg[i] == 0 {
				pick = i
				break
			}
		}
		if pick == -1 {
			for i := range wave {
				if !done[i] {
					pick = i
					break
				}
			}
		}
		done[pick] = true
		ordered = append(ordered, wave[pick])
		for _, next := range adj[pick] {
			indeg[next]--
		}
	}
	return ordered
}

// dirtyUpstream reports whether any computation this one transitively
// reads is itself dirty, meaning its settled value is not yet available.
func dirtyUpstream(c *Computation) bool {
	seen := make(map[string]bool)
	var walk func(*Computation) bool
	walk = func(cur *Computation) bool {
		for _, src := range cur.sources {
			up := src.comp
			if up == nil || seen[up.id] {
				continue
			}
			seen[up.id] = true
			if up.dirty && !up.destroyed {
				return true
			}
			if walk(up) {
				return true
			}
		}
		return false
	}
	return walk(c)
}

// dedupeDirty drops duplicates and entries that are no longer dirty or
// already destroyed, preserving order.
func dedupeDirty(comps []*Computation) []*Computation {
	if len(comps) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(comps))
	out := comps[:0:0]
	for _, c := range comps {
		if c.destroyed || !c.dirty || seen[c.id] {
			continue
		}
		seen[c.id] = true
		out = append(out, c)
	}
	return out
}

// remainingDirty merges the unfinished portion of the current pass with the
// next wave for abort handling.
func remainingDirty(current, next []*Computation) []*Computation {
	out := make([]*Computation, 0, len(current)+len(next))
	out = append(out, current...)
	out = append(out, next...)
	return out
}
