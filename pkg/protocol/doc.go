// Package protocol defines the wire messages exchanged between a pulse
// session host and its clients.
//
// Messages travel as JSON over WebSocket. Each message is an envelope with a
// type discriminator and a type-specific body:
//
//	{"type":"event","data":{"seq":3,"control":"n.min","value":2}}
//
// # Message Types
//
//   - hello / welcome: connection setup and session resumption
//   - event: client-side control change (client to server)
//   - patches: control surface updates (server to client)
//   - ping / pong: heartbeat
//   - error: structured failure report
//   - close: graceful session termination
//
// # Patches
//
// A patches message carries the propagation frame that produced it plus an
// ordered list of operations: "add" introduces a control, "remove" retires
// one, "set" updates a value in place, and "render" replaces the full
// ordered control sequence.
//
// # Usage
//
//	data, err := protocol.EncodeEvent(&protocol.Event{
//		Seq:     1,
//		Control: "volume",
//		Value:   7,
//	})
//
//	msg, err := protocol.DecodeMessage(data)
//	if msg.Type == protocol.MessageEvent {
//		ev, err := msg.Event()
//		...
//	}
package protocol
