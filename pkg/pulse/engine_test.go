package pulse

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

// quietConfig returns a config that discards engine logs during tests.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(quietConfig())
}

func mustCell(t *testing.T, e *Engine, scope *Scope, id string, initial any) *Cell {
	t.Helper()
	c, err := e.DeclareCell(scope, id, initial)
	if err != nil {
		t.Fatalf("DeclareCell(%q) error: %v", id, err)
	}
	return c
}

func mustComp(t *testing.T, e *Engine, scope *Scope, id string, body Body) *Computation {
	t.Helper()
	c, err := e.DeclareComputation(scope, id, body)
	if err != nil {
		t.Fatalf("DeclareComputation(%q) error: %v", id, err)
	}
	return c
}

func mustFlush(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
}

func TestDeclareAndRead(t *testing.T) {
	e := newTestEngine(t)

	mustCell(t, e, nil, "count", 0)

	v, err := e.Read("count")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if v != 0 {
		t.Errorf("expected initial value 0, got %v", v)
	}
}

func TestDuplicateID(t *testing.T) {
	e := newTestEngine(t)
	mustCell(t, e, nil, "count", 0)

	// Cell colliding with cell
	if _, err := e.DeclareCell(nil, "count", 1); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}

	// Computation colliding with cell
	_, err := e.DeclareComputation(nil, "count", func(rc *RunContext) (any, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID for computation, got %v", err)
	}

	// Failed declaration must not corrupt the graph
	v, err := e.Read("count")
	if err != nil || v != 0 {
		t.Errorf("graph corrupted after duplicate declaration: v=%v err=%v", v, err)
	}

	var dup *DuplicateIDError
	_, err = e.DeclareCell(nil, "count", 2)
	if !errors.As(err, &dup) || dup.ID != "count" {
		t.Errorf("expected DuplicateIDError with id, got %v", err)
	}
}

func TestUnknownID(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.Read("missing"); !errors.Is(err, ErrUnknownID) {
		t.Errorf("Read: expected ErrUnknownID, got %v", err)
	}
	if err := e.Write("missing", 1); !errors.Is(err, ErrUnknownID) {
		t.Errorf("Write: expected ErrUnknownID, got %v", err)
	}

	var unknown *UnknownIDError
	err := e.Write("missing", 1)
	if !errors.As(err, &unknown) || unknown.ID != "missing" {
		t.Errorf("expected UnknownIDError with id, got %v", err)
	}
}

func TestWriteToComputationRejected(t *testing.T) {
	e := newTestEngine(t)
	mustComp(t, e, nil, "derived", func(rc *RunContext) (any, error) { return 1, nil })
	mustFlush(t, e)

	if err := e.Write("derived", 2); !errors.Is(err, ErrUnknownID) {
		t.Errorf("writing a computation should fail, got %v", err)
	}
}

func TestVersionIncrementsOnEveryWrite(t *testing.T) {
	e := newTestEngine(t)
	mustCell(t, e, nil, "x", 1)

	if err := e.Write("x", 1); err != nil { // same value
		t.Fatalf("Write() error: %v", err)
	}
	if err := e.Write("x", 2); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	v, err := e.Version("x")
	if err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	if v != 2 {
		t.Errorf("expected version 2 after two writes, got %d", v)
	}
}

func TestSameValueWriteDoesNotPropagate(t *testing.T) {
	e := newTestEngine(t)
	mustCell(t, e, nil, "x", 5)

	runs := 0
	mustComp(t, e, nil, "watcher", func(rc *RunContext) (any, error) {
		runs++
		return rc.Read("x")
	})
	mustFlush(t, e)
	if runs != 1 {
		t.Fatalf("expected 1 initial run, got %d", runs)
	}

	if err := e.Write("x", 5); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	mustFlush(t, e)
	if runs != 1 {
		t.Errorf("same-value write must not re-run subscribers, got %d runs", runs)
	}
}

func TestCustomEquality(t *testing.T) {
	e := newTestEngine(t)
	c := mustCell(t, e, nil, "x", 10)
	// Treat values within 1 of each other as equal.
	c.WithEquals(func(a, b any) bool {
		return abs(a.(int)-b.(int)) <= 1
	})

	runs := 0
	mustComp(t, e, nil, "watcher", func(rc *RunContext) (any, error) {
		runs++
		return rc.Read("x")
	})
	mustFlush(t, e)

	e.Write("x", 11) // within tolerance
	mustFlush(t, e)
	if runs != 1 {
		t.Errorf("tolerant equality should suppress propagation, got %d runs", runs)
	}

	e.Write("x", 20)
	mustFlush(t, e)
	if runs != 2 {
		t.Errorf("expected propagation on out-of-tolerance write, got %d runs", runs)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestDestroyScopeTransitive(t *testing.T) {
	e := newTestEngine(t)

	s1, err := e.NewScope(nil, "panel")
	if err != nil {
		t.Fatalf("NewScope() error: %v", err)
	}
	s2, err := e.NewScope(s1, "panel/inner")
	if err != nil {
		t.Fatalf("NewScope() error: %v", err)
	}

	mustCell(t, e, s1, "panel.value", 1)
	mustCell(t, e, s2, "inner.value", 2)
	mustComp(t, e, s1, "panel.derived", func(rc *RunContext) (any, error) {
		return rc.Read("panel.value")
	})
	mustFlush(t, e)

	cleaned := false
	s2.OnCleanup(func() { cleaned = true })

	if err := e.DestroyScope("panel"); err != nil {
		t.Fatalf("DestroyScope() error: %v", err)
	}

	for _, id := range []string{"panel.value", "inner.value", "panel.derived"} {
		if _, err := e.Read(id); !errors.Is(err, ErrUnknownID) {
			t.Errorf("id %q still live after scope destruction", id)
		}
	}
	if !cleaned {
		t.Error("child scope cleanup did not run")
	}
	if !s1.IsDisposed() || !s2.IsDisposed() {
		t.Error("scopes not marked disposed")
	}
}

func TestDestroyScopeRemovesExternalEdges(t *testing.T) {
	e := newTestEngine(t)

	s1, err := e.NewScope(nil, "panel")
	if err != nil {
		t.Fatalf("NewScope() error: %v", err)
	}
	mustCell(t, e, s1, "panel.value", 1)

	// A root-scope computation reading into the doomed scope.
	runs := 0
	outside := mustComp(t, e, nil, "outside", func(rc *RunContext) (any, error) {
		runs++
		v, err := rc.Read("panel.value")
		if errors.Is(err, ErrUnknownID) {
			return -1, nil
		}
		return v, err
	})
	mustFlush(t, e)

	if err := e.DestroyScope("panel"); err != nil {
		t.Fatalf("DestroyScope() error: %v", err)
	}
	if len(outside.sources) != 0 {
		t.Errorf("external edge into destroyed scope not removed: %d sources", len(outside.sources))
	}
}

func TestDestroyedComputationNeverReruns(t *testing.T) {
	e := newTestEngine(t)

	mustCell(t, e, nil, "x", 0)
	s1, err := e.NewScope(nil, "panel")
	if err != nil {
		t.Fatalf("NewScope() error: %v", err)
	}
	runs := 0
	mustComp(t, e, s1, "doomed", func(rc *RunContext) (any, error) {
		runs++
		return rc.Read("x")
	})
	mustFlush(t, e)

	// Dirty it, then destroy before the flush.
	e.Write("x", 1)
	if err := e.DestroyScope("panel"); err != nil {
		t.Fatalf("DestroyScope() error: %v", err)
	}
	mustFlush(t, e)

	if runs != 1 {
		t.Errorf("destroyed computation re-ran: %d runs", runs)
	}
}

func TestSnapshotScope(t *testing.T) {
	e := newTestEngine(t)

	s1, err := e.NewScope(nil, "session")
	if err != nil {
		t.Fatalf("NewScope() error: %v", err)
	}
	s2, err := e.NewScope(s1, "session/panel")
	if err != nil {
		t.Fatalf("NewScope() error: %v", err)
	}
	mustCell(t, e, s1, "a", 1)
	mustCell(t, e, s2, "b", "two")

	snap, err := e.SnapshotScope("session")
	if err != nil {
		t.Fatalf("SnapshotScope() error: %v", err)
	}
	if len(snap) != 2 || snap["a"] != 1 || snap["b"] != "two" {
		t.Errorf("unexpected snapshot: %v", snap)
	}
}
