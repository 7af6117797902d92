package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulse-go/pulse/pkg/protocol"
	"github.com/pulse-go/pulse/pkg/pulse"
	"github.com/pulse-go/pulse/pkg/reconcile"
)

// wsConn is the subset of *websocket.Conn the session uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one client connection: a private engine, the application
// mounted into it, and the loops moving events in and patches out.
//
// The engine is only touched from the event loop goroutine. Dispatch
// schedules work there from outside.
type Session struct {
	id        string
	createdAt time.Time
	resumed   bool

	srv    *Server
	conn   wsConn
	mu     sync.Mutex // protects conn writes
	closed atomic.Bool

	engine  *pulse.Engine
	rec     *reconcile.Reconciler
	patches *patchRenderer
	uiComp  string

	handler EventHandler

	events     chan *protocol.Event
	dispatchCh chan func()
	done       chan struct{}

	cfg    *SessionConfig
	logger *slog.Logger

	sendSeq atomic.Uint64
	recvSeq atomic.Uint64

	eventCount atomic.Uint64
	bytesSent  atomic.Uint64
	bytesRecv  atomic.Uint64
}

func newSession(srv *Server, conn wsConn, id string, resumed bool) *Session {
	s := &Session{
		id:         id,
		createdAt:  time.Now(),
		resumed:    resumed,
		srv:        srv,
		conn:       conn,
		patches:    newPatchRenderer(),
		events:     make(chan *protocol.Event, srv.sessionCfg.MaxEventQueue),
		dispatchCh: make(chan func(), srv.sessionCfg.MaxEventQueue),
		done:       make(chan struct{}),
		cfg:        srv.sessionCfg,
		logger:     srv.logger.With("session", id),
	}

	cfg := srv.engineCfg
	userCond := cfg.OnCondition
	cfg.OnCondition = func(cond pulse.Condition) {
		s.reportCondition(cond)
		if userCond != nil {
			userCond(cond)
		}
	}
	cfg.Logger = s.logger
	s.engine = pulse.NewEngine(cfg)
	s.rec = reconcile.New(s.engine, s.engine.Root(), s.patches)
	s.handler = chain(applyEvent, srv.middlewares)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Engine returns the session's engine.
func (s *Session) Engine() *pulse.Engine { return s.engine }

// Scope returns the session's root scope.
func (s *Session) Scope() *pulse.Scope { return s.engine.Root() }

// Reconciler returns the session's control reconciler.
func (s *Session) Reconciler() *reconcile.Reconciler { return s.rec }

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Resumed reports whether the session was restored from a snapshot.
func (s *Session) Resumed() bool { return s.resumed }

// mount runs the application, restores a snapshot when resuming, and sends
// the initial control surface.
func (s *Session) mount() error {
	uiComp, err := s.srv.app.Mount(s)
	if err != nil {
		return err
	}
	s.uiComp = uiComp

	if s.resumed && s.srv.store != nil {
		values, err := s.srv.store.LoadSession(s.id)
		if err != nil {
			s.logger.Warn("snapshot load failed", "error", err)
		} else {
			for id, v := range values {
				if err := s.engine.Write(id, v); err != nil {
					// Cells can legitimately disappear between runs.
					s.logger.Debug("snapshot value dropped", "cell", id, "error", err)
				}
			}
		}
	}

	if err := s.engine.Flush(); err != nil {
		return err
	}
	s.sync()
	return nil
}

// applyEvent is the terminal event handler: write the cell, flush, sync.
func applyEvent(ctx context.Context, s *Session, ev *protocol.Event) error {
	if ev.Seq != 0 && ev.Seq <= s.recvSeq.Load() {
		s.logger.Debug("duplicate event dropped", "seq", ev.Seq)
		return nil
	}
	s.recvSeq.Store(ev.Seq)
	s.eventCount.Add(1)

	if err := s.engine.Write(ev.Control, ev.Value); err != nil {
		if errors.Is(err, pulse.ErrUnknownID) {
			s.sendError(&protocol.ErrorMessage{
				Code:    protocol.CodeUnknownControl,
				Message: err.Error(),
				Control: ev.Control,
			})
		}
		return err
	}

	if err := s.engine.Flush(); err != nil {
		// The condition callback already told the client.
		return err
	}
	s.sync()
	return nil
}

// sync re-applies the current control surface description and flushes the
// resulting patches to the client.
func (s *Session) sync() {
	out, err := s.engine.Output(s.uiComp)
	if err != nil {
		s.logger.Error("surface output unavailable", "comp", s.uiComp, "error", err)
		return
	}
	desc, ok := out.(reconcile.Description)
	if !ok {
		s.logger.Error("surface output is not a description", "comp", s.uiComp)
		return
	}
	if err := s.rec.Apply(desc); err != nil {
		s.logger.Error("reconcile failed", "error", err)
		s.sendError(&protocol.ErrorMessage{Code: protocol.CodeInternal, Message: err.Error()})
		return
	}
	if patches := s.patches.take(); len(patches) > 0 {
		s.sendPatches(patches)
	}
}

// Dispatch schedules fn on the event loop. It returns ErrSessionClosed if
// the session is shutting down and ErrQueueFull if the loop is saturated.
func (s *Session) Dispatch(fn func()) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.dispatchCh <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrQueueFull
	}
}

func (s *Session) reportCondition(cond pulse.Condition) {
	var ce *pulse.CycleError
	if errors.As(cond, &ce) {
		ctl := ""
		if len(ce.Cells) > 0 {
			ctl = ce.Cells[0]
		}
		s.sendError(&protocol.ErrorMessage{
			Code:    protocol.CodeCycle,
			Message: ce.Error(),
			Control: ctl,
		})
		return
	}
	s.sendError(&protocol.ErrorMessage{
		Code:    protocol.CodeInternal,
		Message: cond.Error(),
	})
}

func (s *Session) sendPatches(patches []protocol.Patch) {
	data, err := protocol.EncodePatches(&protocol.Patches{
		Seq:     s.sendSeq.Add(1),
		Frame:   s.engine.Frames(),
		Patches: patches,
	})
	if err != nil {
		s.logger.Error("patch encode failed", "error", err)
		return
	}
	s.write(data)
}

func (s *Session) sendError(e *protocol.ErrorMessage) {
	data, err := protocol.EncodeError(e)
	if err != nil {
		s.logger.Error("error encode failed", "error", err)
		return
	}
	s.write(data)
}

func (s *Session) sendWelcome() {
	data, err := protocol.EncodeWelcome(&protocol.ServerWelcome{
		SessionID:  s.id,
		Resumed:    s.resumed,
		ServerTime: time.Now().UnixMilli(),
	})
	if err != nil {
		s.logger.Error("welcome encode failed", "error", err)
		return
	}
	s.write(data)
}

func (s *Session) sendPong(t int64) {
	data, err := protocol.EncodePong(t)
	if err != nil {
		return
	}
	s.write(data)
}

func (s *Session) sendPing() error {
	data, err := protocol.EncodePing(time.Now().UnixMilli())
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Session) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("write failed", "error", err)
		return err
	}
	s.bytesSent.Add(uint64(len(data)))
	return nil
}

// Close shuts the session down: snapshots its cells when a store is
// configured, stops the loops, and closes the connection.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.srv.store != nil {
		values, err := s.engine.SnapshotScope(pulse.RootScopeID)
		if err != nil {
			s.logger.Warn("snapshot failed", "error", err)
		} else if err := s.srv.store.SaveSession(s.id, values); err != nil {
			s.logger.Warn("snapshot save failed", "error", err)
		}
	}

	close(s.done)
	err := s.conn.Close()
	s.srv.removeSession(s)
	s.logger.Info("session closed",
		"events", s.eventCount.Load(),
		"bytes_sent", s.bytesSent.Load(),
		"bytes_recv", s.bytesRecv.Load(),
		"uptime", time.Since(s.createdAt).Round(time.Millisecond))
	return err
}
