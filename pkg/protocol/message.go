package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxMessageSize is the largest message a host will accept, in bytes.
const MaxMessageSize = 1 << 20

// MessageType discriminates envelope bodies.
type MessageType string

const (
	MessageHello   MessageType = "hello"
	MessageWelcome MessageType = "welcome"
	MessageEvent   MessageType = "event"
	MessagePatches MessageType = "patches"
	MessagePing    MessageType = "ping"
	MessagePong    MessageType = "pong"
	MessageError   MessageType = "error"
	MessageClose   MessageType = "close"
)

// Protocol errors.
var (
	ErrMessageTooLarge    = errors.New("protocol: message too large")
	ErrInvalidMessageType = errors.New("protocol: invalid message type")
	ErrTypeMismatch       = errors.New("protocol: message type mismatch")
)

// Message is the wire envelope: a type discriminator plus the raw body.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var validTypes = map[MessageType]bool{
	MessageHello:   true,
	MessageWelcome: true,
	MessageEvent:   true,
	MessagePatches: true,
	MessagePing:    true,
	MessagePong:    true,
	MessageError:   true,
	MessageClose:   true,
}

// EncodeMessage wraps body in an envelope of the given type.
func EncodeMessage(mt MessageType, body any) ([]byte, error) {
	if !validTypes[mt] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMessageType, mt)
	}
	var raw json.RawMessage
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s body: %w", mt, err)
		}
		raw = data
	}
	return json.Marshal(&Message{Type: mt, Data: raw})
}

// DecodeMessage parses an envelope, validating its size and type.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if !validTypes[m.Type] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMessageType, m.Type)
	}
	return &m, nil
}

// decodeBody unmarshals the envelope body into out after checking the type.
func (m *Message) decodeBody(want MessageType, out any) error {
	if m.Type != want {
		return fmt.Errorf("%w: have %q, want %q", ErrTypeMismatch, m.Type, want)
	}
	if err := json.Unmarshal(m.Data, out); err != nil {
		return fmt.Errorf("protocol: decode %s body: %w", want, err)
	}
	return nil
}

// Event returns the event body of an event message.
func (m *Message) Event() (*Event, error) {
	var ev Event
	if err := m.decodeBody(MessageEvent, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Patches returns the patches body of a patches message.
func (m *Message) Patches() (*Patches, error) {
	var p Patches
	if err := m.decodeBody(MessagePatches, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Hello returns the hello body of a hello message.
func (m *Message) Hello() (*ClientHello, error) {
	var h ClientHello
	if err := m.decodeBody(MessageHello, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Welcome returns the welcome body of a welcome message.
func (m *Message) Welcome() (*ServerWelcome, error) {
	var w ServerWelcome
	if err := m.decodeBody(MessageWelcome, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Ping returns the ping body of a ping message.
func (m *Message) Ping() (*Ping, error) {
	var p Ping
	if err := m.decodeBody(MessagePing, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Error returns the error body of an error message.
func (m *Message) Error() (*ErrorMessage, error) {
	var e ErrorMessage
	if err := m.decodeBody(MessageError, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
