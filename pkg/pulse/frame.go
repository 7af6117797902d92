package pulse

import "sort"

// frame is an in-flight invalidation batch. One frame spans a whole flush,
// including every re-entrant wave triggered by write-backs from running
// computations. The frame carries the cycle guard state: per-cell advance
// counts and the wave (pass) counter.
type frame struct {
	// gen is the frame's generation number, monotonically increasing
	// across the engine's lifetime.
	gen uint64

	// advances counts re-entrant value changes per cell id in this frame.
	// Only writes issued from inside a running computation are counted;
	// the external writes that opened the frame are not re-entrant.
	advances map[string]int

	// writers records which computations advanced each cell in this
	// frame. Within a wave, readers of an advanced cell are ordered
	// after its writers so they never observe a half-settled frame.
	writers map[string]map[string]bool

	// wave collects computations dirtied during the current pass; they run
	// in the next pass of the same frame.
	wave []*Computation

	// passes counts drain passes completed in this frame.
	passes int

	// failed is set when the cycle guard trips; the flush aborts after the
	// currently running computation returns.
	failed *CycleError
}

func newFrame(gen uint64) *frame {
	return &frame{
		gen:      gen,
		advances: make(map[string]int),
		writers:  make(map[string]map[string]bool),
	}
}

// recordWriter marks compID as having advanced cellID in this frame.
func (f *frame) recordWriter(cellID, compID string) {
	m := f.writers[cellID]
	if m == nil {
		m = make(map[string]bool)
		f.writers[cellID] = m
	}
	m[compID] = true
}

// advance records a re-entrant value change for the cell and reports
// whether it stays within bound. When the bound is exceeded the frame is
// marked failed and the offending write must not be applied.
func (f *frame) advance(cellID string, bound int) bool {
	n := f.advances[cellID] + 1
	if n > bound {
		f.failed = &CycleError{
			Frame:  f.gen,
			Cells:  f.advancedCells(cellID),
			Passes: f.passes,
		}
		return false
	}
	f.advances[cellID] = n
	return true
}

// advancedCells returns every cell advanced in this frame plus the given
// offender, sorted for deterministic reporting.
func (f *frame) advancedCells(offender string) []string {
	ids := make([]string, 0, len(f.advances)+1)
	seen := false
	for id := range f.advances {
		if id == offender {
			seen = true
		}
		ids = append(ids, id)
	}
	if offender != "" && !seen {
		ids = append(ids, offender)
	}
	sort.Strings(ids)
	return ids
}
