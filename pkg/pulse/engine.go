package pulse

import (
	"fmt"
	"log/slog"
	"sync"
)

// RootScopeID is the id of the scope every engine is created with.
const RootScopeID = "root"

// Engine owns the dependency graph: scopes, cells, computations, and the
// edges between them. All public methods serialize on an internal mutex;
// computation bodies only ever run on the flushing goroutine.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger

	root   *Scope
	scopes map[string]*Scope
	cells  map[string]*Cell
	comps  map[string]*Computation

	// pending are computations dirtied since the last flush.
	pending []*Computation

	// frameGen numbers propagation frames; monotonically increasing.
	frameGen uint64

	// frame is the active propagation frame, nil outside Flush.
	frame *frame
}

// NewEngine creates an engine with a root scope.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.normalize()
	e := &Engine{
		cfg:    cfg,
		logger: cfg.Logger,
		scopes: make(map[string]*Scope),
		cells:  make(map[string]*Cell),
		comps:  make(map[string]*Computation),
	}
	e.root = &Scope{id: RootScopeID, engine: e}
	e.scopes[RootScopeID] = e.root
	return e
}

// Root returns the engine's root scope.
func (e *Engine) Root() *Scope {
	return e.root
}

// NewScope creates a child scope under parent. A nil parent attaches to the
// root. Fails with DuplicateIDError if a live scope already has this id.
func (e *Engine) NewScope(parent *Scope, id string) (*Scope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if parent == nil {
		parent = e.root
	}
	if parent.disposed {
		return nil, ErrScopeDisposed
	}
	if _, ok := e.scopes[id]; ok {
		return nil, &DuplicateIDError{ID: id}
	}

	s := &Scope{id: id, engine: e, parent: parent}
	parent.addChild(s)
	e.scopes[id] = s
	return s, nil
}

// DeclareCell creates a cell owned by scope, seeded with initial.
// Fails with DuplicateIDError if the id is already live.
func (e *Engine) DeclareCell(scope *Scope, id string, initial any) (*Cell, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if scope == nil {
		scope = e.root
	}
	if scope.disposed {
		return nil, ErrScopeDisposed
	}
	if e.idLive(id) {
		return nil, &DuplicateIDError{ID: id}
	}

	c := &Cell{
		node:  node{id: id},
		scope: scope,
		value: initial,
	}
	e.cells[id] = c
	scope.cells = append(scope.cells, c)
	return c, nil
}

// DeclareComputation creates a computation owned by scope. The body does not
// run immediately; the computation is marked dirty and executes on the next
// flush, establishing its initial dependency edges.
// Fails with DuplicateIDError if the id is already live.
func (e *Engine) DeclareComputation(scope *Scope, id string, body Body) (*Computation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if scope == nil {
		scope = e.root
	}
	if scope.disposed {
		return nil, ErrScopeDisposed
	}
	if e.idLive(id) {
		return nil, &DuplicateIDError{ID: id}
	}

	c := &Computation{id: id, scope: scope, body: body}
	c.out.id = id
	c.out.comp = c
	e.comps[id] = c
	scope.comps = append(scope.comps, c)

	if c.markDirty() {
		e.enqueue(c)
	}
	return c, nil
}

// Write sets a cell's value. The effect is deferred: subscribers are marked
// dirty and execute on the next Flush. Same-value writes succeed and still
// increment the version but do not propagate.
func (e *Engine) Write(id string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.cells[id]
	if !ok {
		if _, isComp := e.comps[id]; isComp {
			return fmt.Errorf("pulse: id %q is a computation, not a writable cell: %w", id, ErrUnknownID)
		}
		return &UnknownIDError{ID: id}
	}
	e.applyWrite(c, value)
	return nil
}

// Read returns the current value of a cell or a computation's last output.
// The read is untracked: it never creates a dependency edge.
func (e *Engine) Read(id string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readLocked(id)
}

func (e *Engine) readLocked(id string) (any, error) {
	if c, ok := e.cells[id]; ok {
		return c.value, nil
	}
	if c, ok := e.comps[id]; ok {
		return c.output, nil
	}
	return nil, &UnknownIDError{ID: id}
}

// Version returns a cell's write counter.
func (e *Engine) Version(id string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.cells[id]
	if !ok {
		return 0, &UnknownIDError{ID: id}
	}
	return c.version, nil
}

// Output returns a computation's last successfully computed value.
func (e *Engine) Output(id string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.comps[id]
	if !ok {
		return nil, &UnknownIDError{ID: id}
	}
	return c.output, nil
}

// HasPending reports whether any computation is awaiting the next flush.
func (e *Engine) HasPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending) > 0
}

// HasCell reports whether id names a live cell.
func (e *Engine) HasCell(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cells[id]
	return ok
}

// Frames returns the number of propagation frames started so far.
func (e *Engine) Frames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameGen
}

// DestroyScope tears down the scope and everything it transitively owns.
// Dirty computations belonging to the scope are dropped from the pending
// set silently. External edges into the scope are removed.
func (e *Engine) DestroyScope(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.scopes[id]
	if !ok {
		return &UnknownIDError{ID: id}
	}
	s.dispose()
	return nil
}

// SnapshotScope returns the current values of every cell owned by the scope
// or its descendants, keyed by cell id. Used for host-side persistence.
func (e *Engine) SnapshotScope(id string) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.scopes[id]
	if !ok {
		return nil, &UnknownIDError{ID: id}
	}
	values := make(map[string]any)
	e.snapshotInto(s, values)
	return values, nil
}

func (e *Engine) snapshotInto(s *Scope, values map[string]any) {
	for _, c := range s.cells {
		values[c.id] = c.value
	}
	for _, child := range s.children {
		e.snapshotInto(child, values)
	}
}

// idLive reports whether the id resolves to a live cell or computation.
func (e *Engine) idLive(id string) bool {
	if _, ok := e.cells[id]; ok {
		return true
	}
	_, ok := e.comps[id]
	return ok
}

// applyWrite performs the equality-gated write and marks subscribers dirty.
// Caller holds the engine lock.
func (e *Engine) applyWrite(c *Cell, value any) {
	c.version++
	if c.equals(c.value, value) {
		return
	}
	c.value = value
	for _, sub := range c.subscribers() {
		if sub.markDirty() {
			e.enqueue(sub)
		}
	}
}

// enqueue routes a freshly dirtied computation to the pending set, or to the
// active frame's next wave during a flush.
func (e *Engine) enqueue(c *Computation) {
	if e.frame != nil {
		e.frame.wave = append(e.frame.wave, c)
		return
	}
	e.pending = append(e.pending, c)
}

// removeCell detaches a cell from the graph. Caller holds the engine lock.
func (e *Engine) removeCell(c *Cell) {
	c.destroyed = true
	delete(e.cells, c.id)
	// Remove external edges pointing into the destroyed cell.
	for _, sub := range c.subs {
		removeSource(sub, &c.node)
	}
	c.subs = nil
}

// removeComputation detaches a computation from the graph.
// Caller holds the engine lock.
func (e *Engine) removeComputation(c *Computation) {
	c.destroyed = true
	c.dirty = false
	delete(e.comps, c.id)
	c.detachSources()
	for _, sub := range c.out.subs {
		removeSource(sub, &c.out)
	}
	c.out.subs = nil
}

// removeSource prunes one node from a computation's dependency set.
func removeSource(c *Computation, n *node) {
	for i, src := range c.sources {
		if src == n {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			return
		}
	}
}

// report delivers a condition to the host and logs it.
func (e *Engine) report(cond Condition) {
	switch cond.(type) {
	case *CycleError:
		e.logger.Error("cycle detected", "error", cond)
	default:
		e.logger.Warn("engine condition", "error", cond)
	}
	if e.cfg.OnCondition != nil {
		e.cfg.OnCondition(cond)
	}
}
