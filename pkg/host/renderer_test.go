package host

import (
	"testing"

	"github.com/pulse-go/pulse/pkg/protocol"
	"github.com/pulse-go/pulse/pkg/reconcile"
)

func TestPatchRendererStructuralRender(t *testing.T) {
	p := newPatchRenderer()

	p.AddControl(reconcile.ControlSpec{ID: "a", Kind: "slider", Value: 1})
	p.Render(reconcile.Description{{ID: "a", Kind: "slider", Value: 1}})

	patches := p.take()
	if len(patches) != 2 {
		t.Fatalf("got %d patches, want add+render", len(patches))
	}
	if patches[0].Op != protocol.PatchAdd || patches[1].Op != protocol.PatchRender {
		t.Errorf("ops = %v, %v", patches[0].Op, patches[1].Op)
	}
}

func TestPatchRendererValueDiff(t *testing.T) {
	p := newPatchRenderer()
	p.AddControl(reconcile.ControlSpec{ID: "a", Kind: "slider", Value: 1})
	p.Render(reconcile.Description{{ID: "a", Kind: "slider", Value: 1}})
	p.take()

	// Value-only change: a single set patch, no render.
	p.Render(reconcile.Description{{ID: "a", Kind: "slider", Value: 2}})
	patches := p.take()
	if len(patches) != 1 || patches[0].Op != protocol.PatchSet || patches[0].Value != 2 {
		t.Errorf("patches = %+v, want one set a=2", patches)
	}

	// Unchanged render produces nothing.
	p.Render(reconcile.Description{{ID: "a", Kind: "slider", Value: 2}})
	if patches := p.take(); len(patches) != 0 {
		t.Errorf("unchanged render produced %+v", patches)
	}
}

func TestPatchRendererRemove(t *testing.T) {
	p := newPatchRenderer()
	p.AddControl(reconcile.ControlSpec{ID: "a", Kind: "slider", Value: 1})
	p.Render(reconcile.Description{{ID: "a", Kind: "slider", Value: 1}})
	p.take()

	p.RemoveControl("a")
	p.Render(reconcile.Description{})
	patches := p.take()
	if len(patches) != 2 {
		t.Fatalf("got %d patches, want remove+render", len(patches))
	}
	if patches[0].Op != protocol.PatchRemove || patches[0].Control != "a" {
		t.Errorf("remove patch = %+v", patches[0])
	}
	if patches[1].Op != protocol.PatchRender || len(patches[1].Sequence) != 0 {
		t.Errorf("render patch = %+v", patches[1])
	}
}
