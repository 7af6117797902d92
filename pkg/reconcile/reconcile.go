package reconcile

import (
	"fmt"

	"github.com/pulse-go/pulse/pkg/pulse"
)

// ControlSpec describes one control in a UI description: a stable id, a
// kind discriminator (slider, numeric, select, ...), a displayable value,
// and optional constraint metadata such as bounds or step size.
type ControlSpec struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Value       any            `json:"value"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// Description is an ordered sequence of control specs, produced by a
// UI-generating computation and consumed by a Reconciler.
type Description []ControlSpec

// Renderer is the sink the reconciler drives. Implementations must be
// idempotent on unchanged ids: only AddControl and RemoveControl signal
// structural change.
type Renderer interface {
	// AddControl introduces a new control.
	AddControl(spec ControlSpec)

	// RemoveControl retires a control by id.
	RemoveControl(id string)

	// Render hands over the final ordered sequence for display.
	Render(desc Description)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPrefix namespaces the cell ids the reconciler declares, so that
// several reconcilers can coexist in one engine.
func WithPrefix(prefix string) Option {
	return func(r *Reconciler) {
		r.prefix = prefix
	}
}

// control tracks one live control's backing state. owned is true when the
// reconciler created the cell; adopted cells belong to the application and
// survive the control's removal.
type control struct {
	kind    string
	scopeID string
	cellID  string
	owned   bool
}

// Reconciler owns the live controls for one UI-producing computation. A
// control whose id matches an application-declared cell adopts that cell;
// otherwise the reconciler declares one in its own child scope under the
// parent, so removal is a transitive scope teardown.
type Reconciler struct {
	engine   *pulse.Engine
	parent   *pulse.Scope
	renderer Renderer
	prefix   string

	prev     Description
	controls map[string]*control
}

// New creates a reconciler applying descriptions under parent.
func New(engine *pulse.Engine, parent *pulse.Scope, renderer Renderer, opts ...Option) *Reconciler {
	r := &Reconciler{
		engine:   engine,
		parent:   parent,
		renderer: renderer,
		controls: make(map[string]*control),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CellID returns the engine cell id backing the given control id.
func (r *Reconciler) CellID(controlID string) string {
	return r.prefix + controlID
}

func (r *Reconciler) scopeID(controlID string) string {
	return r.parent.ID() + "/" + r.prefix + controlID
}

// Apply reconciles the new description against the previously rendered
// controls. Cells for ids present in both keep their identity and current
// value; a kind change is remove+add with the old value carried over.
func (r *Reconciler) Apply(desc Description) error {
	next := make(map[string]ControlSpec, len(desc))
	for _, spec := range desc {
		if _, dup := next[spec.ID]; dup {
			return fmt.Errorf("reconcile: duplicate control id %q in description", spec.ID)
		}
		next[spec.ID] = spec
	}

	// Ids only in the old set: transitive teardown, then renderer removal.
	for _, prev := range r.prev {
		if _, keep := next[prev.ID]; keep {
			continue
		}
		if err := r.destroy(prev.ID); err != nil {
			return err
		}
		r.renderer.RemoveControl(prev.ID)
	}

	final := make(Description, 0, len(desc))
	for _, spec := range desc {
		live, exists := r.controls[spec.ID]

		switch {
		case exists && live.kind == spec.Kind:
			// Preserved: do not reset the cell's current value.

		case exists:
			// Kind changed: remove+add, seeding the new cell from the old
			// cell's last value. The carry-over read is untracked and must
			// not create a dependency edge.
			carried, err := r.engine.Read(live.cellID)
			if err != nil {
				return err
			}
			if err := r.destroy(spec.ID); err != nil {
				return err
			}
			r.renderer.RemoveControl(spec.ID)
			if err := r.create(spec, carried); err != nil {
				return err
			}
			spec.Value = carried
			r.renderer.AddControl(spec)

		default:
			// Fresh control, seeded with the spec's initial value. An
			// adopted cell keeps its own value, so re-read before telling
			// the renderer.
			if err := r.create(spec, spec.Value); err != nil {
				return err
			}
			if current, err := r.engine.Read(r.controls[spec.ID].cellID); err == nil {
				spec.Value = current
			}
			r.renderer.AddControl(spec)
		}

		// Hand the renderer current values, not declared initials.
		current, err := r.engine.Read(r.controls[spec.ID].cellID)
		if err != nil {
			return err
		}
		spec.Value = current
		final = append(final, spec)
	}

	r.renderer.Render(final)
	r.prev = final
	return nil
}

// Close tears down every live control without notifying the renderer; used
// when the whole surface is going away.
func (r *Reconciler) Close() error {
	for id := range r.controls {
		if err := r.destroy(id); err != nil {
			return err
		}
	}
	r.prev = nil
	return nil
}

func (r *Reconciler) create(spec ControlSpec, seed any) error {
	cellID := r.CellID(spec.ID)

	// A cell the application already declared under this id backs the
	// control directly and keeps its current value.
	if r.engine.HasCell(cellID) {
		r.controls[spec.ID] = &control{kind: spec.Kind, cellID: cellID}
		return nil
	}

	scope, err := r.engine.NewScope(r.parent, r.scopeID(spec.ID))
	if err != nil {
		return err
	}
	if _, err := r.engine.DeclareCell(scope, cellID, seed); err != nil {
		// Roll the scope back so a failed declaration leaves no residue.
		r.engine.DestroyScope(scope.ID())
		return err
	}
	r.controls[spec.ID] = &control{
		kind:    spec.Kind,
		scopeID: scope.ID(),
		cellID:  cellID,
		owned:   true,
	}
	return nil
}

func (r *Reconciler) destroy(id string) error {
	live, ok := r.controls[id]
	if !ok {
		return nil
	}
	delete(r.controls, id)
	if !live.owned {
		return nil
	}
	return r.engine.DestroyScope(live.scopeID)
}
