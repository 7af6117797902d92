package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pulse-go/pulse/pkg/protocol"
	"github.com/pulse-go/pulse/pkg/pulse"
	"github.com/pulse-go/pulse/pkg/reconcile"
)

// fakeConn records writes and feeds no reads.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, io.EOF }

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.writes = append(c.writes, buf)
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// messages decodes everything written so far.
func (c *fakeConn) messages(t *testing.T) []*protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.Message, len(c.writes))
	for i, data := range c.writes {
		m, err := protocol.DecodeMessage(data)
		if err != nil {
			t.Fatalf("written message %d does not decode: %v", i, err)
		}
		out[i] = m
	}
	return out
}

func (c *fakeConn) lastPatches(t *testing.T) *protocol.Patches {
	t.Helper()
	msgs := c.messages(t)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == protocol.MessagePatches {
			p, err := msgs[i].Patches()
			if err != nil {
				t.Fatalf("Patches() error: %v", err)
			}
			return p
		}
	}
	return nil
}

// volumeApp declares one cell and a surface mirroring it.
var volumeApp = AppFunc(func(s *Session) (string, error) {
	e, root := s.Engine(), s.Scope()
	if _, err := e.DeclareCell(root, "volume", 5); err != nil {
		return "", err
	}
	_, err := e.DeclareComputation(root, "ui", func(rc *pulse.RunContext) (any, error) {
		v, err := rc.Read("volume")
		if err != nil {
			return nil, err
		}
		return reconcile.Description{
			{ID: "volume", Kind: "slider", Value: v},
		}, nil
	})
	return "ui", err
})

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, app App) (*Session, *fakeConn) {
	t.Helper()
	srv := NewServer(app, WithLogger(quietLogger()))
	conn := &fakeConn{}
	sess := newSession(srv, conn, "test-session", false)
	if err := sess.mount(); err != nil {
		t.Fatalf("mount() error: %v", err)
	}
	return sess, conn
}

func TestMountSendsInitialSurface(t *testing.T) {
	_, conn := newTestSession(t, volumeApp)

	p := conn.lastPatches(t)
	if p == nil {
		t.Fatal("no patches sent on mount")
	}
	var render *protocol.Patch
	for i := range p.Patches {
		if p.Patches[i].Op == protocol.PatchRender {
			render = &p.Patches[i]
		}
	}
	if render == nil {
		t.Fatal("initial patches carry no render op")
	}
	if len(render.Sequence) != 1 || render.Sequence[0].ID != "volume" {
		t.Errorf("unexpected sequence: %v", render.Sequence)
	}
	if render.Sequence[0].Value != 5 {
		t.Errorf("initial value = %v, want 5", render.Sequence[0].Value)
	}
}

func TestEventUpdatesCellAndSendsPatch(t *testing.T) {
	sess, conn := newTestSession(t, volumeApp)

	ev := &protocol.Event{Seq: 1, Control: "volume", Value: 7}
	if err := sess.handler(context.Background(), sess, ev); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if v, _ := sess.Engine().Read("volume"); v != 7 {
		t.Errorf("cell = %v, want 7", v)
	}
	p := conn.lastPatches(t)
	if p == nil {
		t.Fatal("no patches sent for event")
	}
	found := false
	for _, patch := range p.Patches {
		if patch.Op == protocol.PatchSet && patch.Control == "volume" && patch.Value == 7 {
			found = true
		}
	}
	if !found {
		t.Errorf("no set patch for volume=7 in %v", p.Patches)
	}
}

func TestUnknownControlRejected(t *testing.T) {
	sess, conn := newTestSession(t, volumeApp)

	ev := &protocol.Event{Seq: 1, Control: "bogus", Value: 1}
	err := sess.handler(context.Background(), sess, ev)
	if !errors.Is(err, pulse.ErrUnknownID) {
		t.Fatalf("error = %v, want ErrUnknownID", err)
	}

	msgs := conn.messages(t)
	var em *protocol.ErrorMessage
	for _, m := range msgs {
		if m.Type == protocol.MessageError {
			em, _ = m.Error()
		}
	}
	if em == nil || em.Code != protocol.CodeUnknownControl {
		t.Errorf("expected unknown_control error message, got %+v", em)
	}
}

func TestDuplicateSeqDropped(t *testing.T) {
	sess, _ := newTestSession(t, volumeApp)

	ctx := context.Background()
	if err := sess.handler(ctx, sess, &protocol.Event{Seq: 3, Control: "volume", Value: 7}); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if err := sess.handler(ctx, sess, &protocol.Event{Seq: 3, Control: "volume", Value: 9}); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if v, _ := sess.Engine().Read("volume"); v != 7 {
		t.Errorf("replayed event applied: cell = %v, want 7", v)
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next EventHandler) EventHandler {
			return func(ctx context.Context, sess *Session, ev *protocol.Event) error {
				order = append(order, name)
				return next(ctx, sess, ev)
			}
		}
	}

	srv := NewServer(volumeApp,
		WithLogger(quietLogger()),
		WithMiddleware(mw("outer"), mw("inner")),
	)
	conn := &fakeConn{}
	sess := newSession(srv, conn, "mw-session", false)
	if err := sess.mount(); err != nil {
		t.Fatalf("mount() error: %v", err)
	}

	if err := sess.handler(context.Background(), sess, &protocol.Event{Seq: 1, Control: "volume", Value: 1}); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("middleware order = %v", order)
	}
}

func TestDispatchAfterClose(t *testing.T) {
	sess, conn := newTestSession(t, volumeApp)

	if err := sess.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !conn.closed {
		t.Error("connection left open")
	}
	if err := sess.Dispatch(func() {}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Dispatch error = %v, want ErrSessionClosed", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestCycleConditionReachesClient(t *testing.T) {
	app := AppFunc(func(s *Session) (string, error) {
		e, root := s.Engine(), s.Scope()
		if _, err := e.DeclareCell(root, "x", 0); err != nil {
			return "", err
		}
		if _, err := e.DeclareComputation(root, "toggler", func(rc *pulse.RunContext) (any, error) {
			v, err := rc.ReadInt("x")
			if err != nil {
				return nil, err
			}
			return nil, rc.Write("x", 1-v)
		}); err != nil {
			return "", err
		}
		_, err := e.DeclareComputation(root, "ui", func(rc *pulse.RunContext) (any, error) {
			v, err := rc.Read("x")
			if err != nil {
				return nil, err
			}
			return reconcile.Description{{ID: "x", Kind: "numeric", Value: v}}, nil
		})
		return "ui", err
	})

	srv := NewServer(app, WithLogger(quietLogger()))
	conn := &fakeConn{}
	sess := newSession(srv, conn, "cycle-session", false)
	// Mount trips the cycle guard; the error must reach the wire.
	sess.mount()

	var em *protocol.ErrorMessage
	for _, m := range conn.messages(t) {
		if m.Type == protocol.MessageError {
			em, _ = m.Error()
		}
	}
	if em == nil || em.Code != protocol.CodeCycle {
		t.Errorf("expected cycle error message, got %+v", em)
	}
}
