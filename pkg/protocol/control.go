package protocol

// ErrorCode classifies error messages.
type ErrorCode string

const (
	// CodeBadMessage reports a malformed or oversized message.
	CodeBadMessage ErrorCode = "bad_message"

	// CodeUnknownControl reports an event targeting a control the session
	// does not have.
	CodeUnknownControl ErrorCode = "unknown_control"

	// CodeCycle reports an aborted propagation frame.
	CodeCycle ErrorCode = "cycle"

	// CodeVersion reports a protocol version mismatch.
	CodeVersion ErrorCode = "version"

	// CodeInternal reports any other server-side failure.
	CodeInternal ErrorCode = "internal"
)

// ErrorMessage is a structured failure report. Fatal errors are followed by
// a close message.
type ErrorMessage struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Control string    `json:"control,omitempty"`
	Fatal   bool      `json:"fatal,omitempty"`
}

// Ping is a heartbeat request; Time echoes back in the pong.
type Ping struct {
	Time int64 `json:"time"`
}

// Pong answers a ping.
type Pong struct {
	Time int64 `json:"time"`
}

// Close announces graceful session termination.
type Close struct {
	Reason string `json:"reason,omitempty"`
}

// EncodeError encodes an error message.
func EncodeError(e *ErrorMessage) ([]byte, error) {
	return EncodeMessage(MessageError, e)
}

// EncodePing encodes a ping message.
func EncodePing(t int64) ([]byte, error) {
	return EncodeMessage(MessagePing, &Ping{Time: t})
}

// EncodePong encodes a pong message.
func EncodePong(t int64) ([]byte, error) {
	return EncodeMessage(MessagePong, &Pong{Time: t})
}

// EncodeClose encodes a close message.
func EncodeClose(reason string) ([]byte, error) {
	return EncodeMessage(MessageClose, &Close{Reason: reason})
}
