package protocol

// ProtocolVersion is the current protocol version. The server rejects
// hellos announcing a different version.
const ProtocolVersion = 1

// ClientHello is the first message a client sends. SessionID is set when
// the client asks to resume a previous session.
type ClientHello struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id,omitempty"`
}

// ServerWelcome confirms the session. Resumed is true when the server
// restored the session's cells from a snapshot.
type ServerWelcome struct {
	SessionID  string `json:"session_id"`
	Resumed    bool   `json:"resumed"`
	ServerTime int64  `json:"server_time"`
}

// EncodeHello encodes a hello message.
func EncodeHello(h *ClientHello) ([]byte, error) {
	return EncodeMessage(MessageHello, h)
}

// EncodeWelcome encodes a welcome message.
func EncodeWelcome(w *ServerWelcome) ([]byte, error) {
	return EncodeMessage(MessageWelcome, w)
}
