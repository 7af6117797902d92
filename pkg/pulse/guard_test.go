package pulse

import (
	"errors"
	"testing"
)

func TestConvergentWriteBackSettles(t *testing.T) {
	// A computation that writes back to its own dependency, moving toward a
	// fixed point that it reaches within two iterations, must settle
	// without raising a cycle when the bound allows it.
	cfg := quietConfig()
	cfg.CycleBound = 2
	e := NewEngine(cfg)

	mustCell(t, e, nil, "x", 0)
	mustComp(t, e, nil, "stepper", func(rc *RunContext) (any, error) {
		x, err := rc.ReadInt("x")
		if err != nil {
			return nil, err
		}
		if x < 2 {
			if err := rc.Write("x", x+1); err != nil {
				return nil, err
			}
		}
		return x, nil
	})

	if err := e.Flush(); err != nil {
		t.Fatalf("convergent write-back raised: %v", err)
	}
	x, _ := e.Read("x")
	if x != 2 {
		t.Errorf("expected x to settle at 2, got %v", x)
	}
}

func TestDivergentWriteBackDetected(t *testing.T) {
	var conditions []Condition
	cfg := quietConfig()
	cfg.CycleBound = 2
	cfg.OnCondition = func(c Condition) { conditions = append(conditions, c) }
	e := NewEngine(cfg)

	mustCell(t, e, nil, "x", 0)
	mustComp(t, e, nil, "toggler", func(rc *RunContext) (any, error) {
		x, err := rc.ReadInt("x")
		if err != nil {
			return nil, err
		}
		// Oscillates 0/1 forever; never stabilizes.
		if err := rc.Write("x", 1-x); err != nil {
			return nil, err
		}
		return x, nil
	})

	err := e.Flush()
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	var cyc *CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if cyc.Frame == 0 {
		t.Error("cycle error missing frame id")
	}
	if len(cyc.Cells) != 1 || cyc.Cells[0] != "x" {
		t.Errorf("expected involved cells [x], got %v", cyc.Cells)
	}

	// The condition is surfaced to the host, not swallowed.
	if len(conditions) != 1 || !errors.Is(conditions[0], ErrCycleDetected) {
		t.Errorf("cycle condition not reported: %v", conditions)
	}
}

func TestCycleKeepsLastSettledValue(t *testing.T) {
	cfg := quietConfig()
	cfg.CycleBound = 2
	e := NewEngine(cfg)

	mustCell(t, e, nil, "x", 0)
	mustComp(t, e, nil, "toggler", func(rc *RunContext) (any, error) {
		x, err := rc.ReadInt("x")
		if err != nil {
			return nil, err
		}
		if err := rc.Write("x", 1-x); err != nil {
			return nil, err
		}
		return x, nil
	})

	if err := e.Flush(); err == nil {
		t.Fatal("expected cycle error")
	}

	// Advances within bound applied (0 -> 1 -> 0); the offending third
	// write was rejected, so x retains its last settled value.
	x, _ := e.Read("x")
	if x != 0 {
		t.Errorf("expected x to retain settled value 0, got %v", x)
	}
}

func TestImmediateCycleWithDefaultBound(t *testing.T) {
	// Default bound (1) detects the classic "reads X, writes X+1" loop.
	e := newTestEngine(t)

	mustCell(t, e, nil, "x", 0)
	mustComp(t, e, nil, "incrementer", func(rc *RunContext) (any, error) {
		x, err := rc.ReadInt("x")
		if err != nil {
			return nil, err
		}
		if err := rc.Write("x", x+1); err != nil {
			return nil, err
		}
		return x, nil
	})

	if err := e.Flush(); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected with default bound, got %v", err)
	}
}

func TestMutuallyDerivedConvergence(t *testing.T) {
	// Two computations mutually deriving from each other (the
	// temperature-conversion pattern): each write moves the pair toward a
	// consistent state and the oscillation settles after one extra
	// round-trip.
	cfg := quietConfig()
	cfg.CycleBound = 3
	e := NewEngine(cfg)

	mustCell(t, e, nil, "celsius", 0)
	mustCell(t, e, nil, "fahrenheit", 32)

	mustComp(t, e, nil, "c-to-f", func(rc *RunContext) (any, error) {
		c, err := rc.ReadInt("celsius")
		if err != nil {
			return nil, err
		}
		if err := rc.Write("fahrenheit", c*9/5+32); err != nil {
			return nil, err
		}
		return c, nil
	})
	mustComp(t, e, nil, "f-to-c", func(rc *RunContext) (any, error) {
		f, err := rc.ReadInt("fahrenheit")
		if err != nil {
			return nil, err
		}
		if err := rc.Write("celsius", (f-32)*5/9); err != nil {
			return nil, err
		}
		return f, nil
	})
	mustFlush(t, e)

	e.Write("celsius", 100)
	if err := e.Flush(); err != nil {
		t.Fatalf("mutually-derived pair did not settle: %v", err)
	}

	c, _ := e.Read("celsius")
	f, _ := e.Read("fahrenheit")
	if c != 100 || f != 212 {
		t.Errorf("expected 100C/212F, got %vC/%vF", c, f)
	}
}

func TestCycleAbortKeepsDirtyPending(t *testing.T) {
	cfg := quietConfig()
	cfg.CycleBound = 1
	e := NewEngine(cfg)

	mustCell(t, e, nil, "x", 0)
	mustCell(t, e, nil, "trigger", 0)

	// Benign until trigger flips, then increments x on every run.
	mustComp(t, e, nil, "incrementer", func(rc *RunContext) (any, error) {
		trig, err := rc.ReadInt("trigger")
		if err != nil {
			return nil, err
		}
		x, err := rc.ReadInt("x")
		if err != nil {
			return nil, err
		}
		if trig == 1 {
			if err := rc.Write("x", x+1); err != nil {
				return nil, err
			}
		}
		return x, nil
	})
	observerRuns := 0
	mustComp(t, e, nil, "observer", func(rc *RunContext) (any, error) {
		observerRuns++
		return rc.ReadInt("x")
	})
	mustFlush(t, e)
	observerRuns = 0

	e.Write("trigger", 1)
	if err := e.Flush(); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected cycle error, got %v", err)
	}

	// The observer was dirtied by x's first advance but never executed in
	// the aborted frame; it returns to the pending set because a dirty
	// flag is only ever cleared by execution.
	if observerRuns != 0 {
		t.Fatalf("observer ran inside aborted wave: %d", observerRuns)
	}
	if !e.HasPending() {
		t.Error("aborted frame dropped dirty computations from pending")
	}
}

func TestRejectedWriteKeepsVersion(t *testing.T) {
	cfg := quietConfig()
	cfg.CycleBound = 1
	e := NewEngine(cfg)

	mustCell(t, e, nil, "x", 0)
	mustCell(t, e, nil, "trigger", 0)
	mustComp(t, e, nil, "incrementer", func(rc *RunContext) (any, error) {
		trig, err := rc.ReadInt("trigger")
		if err != nil {
			return nil, err
		}
		x, err := rc.ReadInt("x")
		if err != nil {
			return nil, err
		}
		if trig == 1 {
			if err := rc.Write("x", x+1); err != nil {
				return nil, err
			}
		}
		return x, nil
	})
	mustFlush(t, e)

	e.Write("trigger", 1)
	if err := e.Flush(); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected cycle error, got %v", err)
	}

	// The first advance was applied and bumped the version; the second
	// was rejected by the guard and must leave both value and version
	// where the applied write put them.
	v, err := e.Version("x")
	if err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	if v != 1 {
		t.Errorf("rejected write moved the version: got %d, want 1", v)
	}
	x, _ := e.Read("x")
	if x != 1 {
		t.Errorf("expected x = 1 from the applied advance, got %v", x)
	}
}
