package host

import "errors"

// Host errors.
var (
	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("host: session closed")

	// ErrQueueFull is returned when the session's event queue is full.
	ErrQueueFull = errors.New("host: event queue full")

	// ErrBadHandshake is returned when the client's first message is not a
	// valid hello.
	ErrBadHandshake = errors.New("host: bad handshake")

	// ErrVersionMismatch is returned when the client announces an
	// unsupported protocol version.
	ErrVersionMismatch = errors.New("host: protocol version mismatch")
)
