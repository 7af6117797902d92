package host

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulse-go/pulse/pkg/protocol"
)

// Start starts the session loops. Call after the handshake completes.
func (s *Session) Start() {
	go s.ReadLoop()
	go s.WriteLoop()
	go s.EventLoop()
}

// ReadLoop continuously reads messages from the connection, decodes them,
// and queues events for the event loop. It blocks until the connection is
// closed or a read fails.
func (s *Session) ReadLoop() {
	defer s.Close()

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read failed", "error", err)
			}
			return
		}
		s.bytesRecv.Add(uint64(len(msg)))

		m, err := protocol.DecodeMessage(msg)
		if err != nil {
			s.logger.Warn("bad message", "error", err)
			s.sendError(&protocol.ErrorMessage{
				Code:    protocol.CodeBadMessage,
				Message: err.Error(),
			})
			continue
		}

		switch m.Type {
		case protocol.MessageEvent:
			ev, err := m.Event()
			if err != nil {
				s.sendError(&protocol.ErrorMessage{
					Code:    protocol.CodeBadMessage,
					Message: err.Error(),
				})
				continue
			}
			select {
			case s.events <- ev:
			default:
				s.logger.Warn("event queue full, dropping", "control", ev.Control)
				s.sendError(&protocol.ErrorMessage{
					Code:    protocol.CodeBadMessage,
					Message: ErrQueueFull.Error(),
					Control: ev.Control,
				})
			}

		case protocol.MessagePing:
			if p, err := m.Ping(); err == nil {
				s.sendPong(p.Time)
			}

		case protocol.MessagePong:
			s.logger.Debug("pong")

		case protocol.MessageClose:
			s.logger.Info("client closing")
			return

		default:
			s.logger.Warn("unexpected message", "type", m.Type)
		}
	}
}

// WriteLoop sends heartbeat pings until the session closes.
func (s *Session) WriteLoop() {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sendPing(); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// EventLoop applies queued events and dispatched functions. All engine
// access happens here.
func (s *Session) EventLoop() {
	ctx := context.Background()

	for {
		select {
		case ev := <-s.events:
			if err := s.handler(ctx, s, ev); err != nil {
				s.logger.Warn("event rejected", "control", ev.Control, "error", err)
			}

		case fn := <-s.dispatchCh:
			s.executeDispatch(fn)

		case <-s.done:
			return
		}
	}
}

// executeDispatch runs fn with panic recovery, then flushes and syncs so
// that any writes fn made reach the client.
func (s *Session) executeDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatch panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	fn()

	if err := s.engine.Flush(); err != nil {
		return
	}
	s.sync()
}
