package host

import (
	"reflect"

	"github.com/pulse-go/pulse/pkg/protocol"
	"github.com/pulse-go/pulse/pkg/reconcile"
)

// patchRenderer collects reconciler output as protocol patches. Structural
// changes (add/remove) produce a trailing render patch carrying the full
// ordered sequence; value-only changes produce set patches diffed against
// the last rendered values. Only accessed from the session's event loop.
type patchRenderer struct {
	patches    []protocol.Patch
	prev       map[string]any
	structural bool
}

func newPatchRenderer() *patchRenderer {
	return &patchRenderer{prev: make(map[string]any)}
}

func (p *patchRenderer) AddControl(spec reconcile.ControlSpec) {
	p.structural = true
	p.patches = append(p.patches, protocol.NewAddPatch(protocol.Control{
		ID:          spec.ID,
		Kind:        spec.Kind,
		Value:       spec.Value,
		Constraints: spec.Constraints,
	}))
}

func (p *patchRenderer) RemoveControl(id string) {
	p.structural = true
	delete(p.prev, id)
	p.patches = append(p.patches, protocol.NewRemovePatch(id))
}

func (p *patchRenderer) Render(desc reconcile.Description) {
	next := make(map[string]any, len(desc))
	for _, spec := range desc {
		next[spec.ID] = spec.Value
		if p.structural {
			continue
		}
		if old, ok := p.prev[spec.ID]; ok && !reflect.DeepEqual(old, spec.Value) {
			p.patches = append(p.patches, protocol.NewSetPatch(spec.ID, spec.Value))
		}
	}
	if p.structural {
		seq := make([]protocol.Control, len(desc))
		for i, spec := range desc {
			seq[i] = protocol.Control{
				ID:          spec.ID,
				Kind:        spec.Kind,
				Value:       spec.Value,
				Constraints: spec.Constraints,
			}
		}
		p.patches = append(p.patches, protocol.NewRenderPatch(seq))
	}
	p.prev = next
	p.structural = false
}

// take returns the collected patches and resets the buffer.
func (p *patchRenderer) take() []protocol.Patch {
	out := p.patches
	p.patches = nil
	return out
}
