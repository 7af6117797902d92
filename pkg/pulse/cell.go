package pulse

// node provides type-erased subscriber management.
// It is embedded in Cell and Computation so that both can be read as
// dependencies; subscribers are always computations.
type node struct {
	id string

	// subs are the computations subscribed to this node, i.e. the
	// computations that read it on their most recent run.
	subs []*Computation

	// comp is non-nil when this node is a computation's output.
	comp *Computation
}

// subscribe adds a computation to this node's subscribers.
// Deduplicates by id to prevent double-subscription.
func (n *node) subscribe(c *Computation) {
	for _, existing := range n.subs {
		if existing.id == c.id {
			return
		}
	}
	n.subs = append(n.subs, c)
}

// unsubscribe removes a computation from this node's subscribers.
func (n *node) unsubscribe(c *Computation) {
	for i, existing := range n.subs {
		if existing.id == c.id {
			// Remove by swapping with last element (order doesn't matter)
			n.subs[i] = n.subs[len(n.subs)-1]
			n.subs = n.subs[:len(n.subs)-1]
			return
		}
	}
}

// subscribers returns a copy of the current subscriber set.
func (n *node) subscribers() []*Computation {
	out := make([]*Computation, len(n.subs))
	copy(out, n.subs)
	return out
}

// Cell is a single observable mutable slot: an input's current value or a
// derived source's last result. Cells are declared against a Scope via
// Engine.DeclareCell and are mutated only through Engine.Write or
// RunContext.Write.
type Cell struct {
	node

	// scope owns this cell; destroying the scope destroys the cell.
	scope *Scope

	// value is the current value. Semantics are opaque to the engine.
	value any

	// version is incremented on every write, including same-value writes.
	version uint64

	// equal overrides the engine's default equality for this cell.
	equal func(a, b any) bool

	destroyed bool
}

// ID returns the cell's stable identifier.
func (c *Cell) ID() string { return c.id }

// Value returns the current value without tracking. Host-side inspection
// should prefer Engine.Read, which validates liveness under the engine lock.
func (c *Cell) Value() any { return c.value }

// Version returns the write counter. Every write increments it, whether or
// not the value changed.
func (c *Cell) Version() uint64 { return c.version }

// WithEquals configures the cell with a custom equality function used to
// decide whether a write propagates. Returns the cell for chaining at
// declaration time.
func (c *Cell) WithEquals(fn func(a, b any) bool) *Cell {
	c.equal = fn
	return c
}

// equals applies the cell's equality policy.
func (c *Cell) equals(a, b any) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	return valuesEqual(a, b)
}
