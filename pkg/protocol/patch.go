package protocol

// PatchOp identifies a control surface operation.
type PatchOp string

const (
	// PatchAdd introduces a new control.
	PatchAdd PatchOp = "add"

	// PatchRemove retires a control.
	PatchRemove PatchOp = "remove"

	// PatchSet updates a control's value in place.
	PatchSet PatchOp = "set"

	// PatchRender replaces the full ordered control sequence.
	PatchRender PatchOp = "render"
)

// Patch is one control surface operation. Add carries the full control
// shape; Set carries only the value; Remove carries only the id; Render
// carries Sequence instead.
type Patch struct {
	Op          PatchOp        `json:"op"`
	Control     string         `json:"control,omitempty"`
	Kind        string         `json:"kind,omitempty"`
	Value       any            `json:"value,omitempty"`
	Constraints map[string]any `json:"constraints,omitempty"`
	Sequence    []Control      `json:"sequence,omitempty"`
}

// Control is one entry of a rendered control sequence.
type Control struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Value       any            `json:"value"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// Patches is a batch of operations produced by one propagation frame.
// Frame is the engine's frame number; Seq orders patch batches per session.
type Patches struct {
	Seq     uint64  `json:"seq"`
	Frame   uint64  `json:"frame"`
	Patches []Patch `json:"patches"`
}

// EncodePatches encodes a patches message.
func EncodePatches(p *Patches) ([]byte, error) {
	return EncodeMessage(MessagePatches, p)
}

// NewAddPatch builds an add operation.
func NewAddPatch(c Control) Patch {
	return Patch{
		Op:          PatchAdd,
		Control:     c.ID,
		Kind:        c.Kind,
		Value:       c.Value,
		Constraints: c.Constraints,
	}
}

// NewRemovePatch builds a remove operation.
func NewRemovePatch(id string) Patch {
	return Patch{Op: PatchRemove, Control: id}
}

// NewSetPatch builds a set operation.
func NewSetPatch(id string, value any) Patch {
	return Patch{Op: PatchSet, Control: id, Value: value}
}

// NewRenderPatch builds a render operation carrying the full sequence.
func NewRenderPatch(seq []Control) Patch {
	return Patch{Op: PatchRender, Sequence: seq}
}
