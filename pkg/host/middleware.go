package host

import (
	"context"

	"github.com/pulse-go/pulse/pkg/protocol"
)

// EventHandler processes one client event on the session's event loop.
type EventHandler func(ctx context.Context, sess *Session, ev *protocol.Event) error

// Middleware wraps an EventHandler.
type Middleware func(next EventHandler) EventHandler

// chain composes middlewares around a terminal handler; the first
// middleware in the slice is the outermost.
func chain(h EventHandler, mws []Middleware) EventHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
