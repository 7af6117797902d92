package protocol

// Event is a client-side control change. Seq is a client-assigned,
// monotonically increasing number used to detect duplicates after a
// reconnect; Control names the cell the event targets.
type Event struct {
	Seq     uint64 `json:"seq"`
	Control string `json:"control"`
	Value   any    `json:"value"`
}

// EncodeEvent encodes an event message.
func EncodeEvent(ev *Event) ([]byte, error) {
	return EncodeMessage(MessageEvent, ev)
}
