package pulse

// Scope owns reactive primitives. Destroying a scope destroys its cells,
// computations, and child scopes, and removes every edge referencing them,
// including edges from computations outside the scope. Nothing re-runs a
// destroyed computation.
//
// Scopes form a hierarchy mirroring the structure of the hosted UI: the
// engine root owns session-level state, and dynamically generated controls
// live in child scopes so the reconciler can tear them down transitively.
type Scope struct {
	id     string
	engine *Engine

	// parent is the parent scope, nil for the engine root.
	parent *Scope

	children []*Scope
	cells    []*Cell
	comps    []*Computation

	// cleanups run in reverse order on destruction.
	cleanups []func()

	disposed bool
}

// ID returns the scope's identifier.
func (s *Scope) ID() string { return s.id }

// Parent returns the parent scope, or nil for the engine root.
func (s *Scope) Parent() *Scope { return s.parent }

// IsDisposed reports whether the scope has been destroyed.
func (s *Scope) IsDisposed() bool { return s.disposed }

// OnCleanup registers a function to run when this scope is destroyed.
// If the scope is already disposed, fn runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed {
		fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
}

func (s *Scope) addChild(child *Scope) {
	s.children = append(s.children, child)
}

func (s *Scope) removeChild(child *Scope) {
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// dispose tears the scope down: children first in reverse order, then the
// scope's own computations and cells, then cleanups in reverse order.
// Caller holds the engine lock.
func (s *Scope) dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	delete(s.engine.scopes, s.id)

	if s.parent != nil {
		s.parent.removeChild(s)
	}

	children := s.children
	s.children = nil
	for i := len(children) - 1; i >= 0; i-- {
		children[i].dispose()
	}

	for _, c := range s.comps {
		s.engine.removeComputation(c)
	}
	s.comps = nil

	for _, c := range s.cells {
		s.engine.removeCell(c)
	}
	s.cells = nil

	cleanups := s.cleanups
	s.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
