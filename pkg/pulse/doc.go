// Package pulse provides a reactive dependency-tracking engine.
//
// The engine maintains a directed graph of cells (observable values) and
// computations (derived values). Reading a cell during a computation's run
// records a dependency edge; writing a cell marks its subscribers dirty.
// Writes never execute computations synchronously: they are collected and
// drained by Flush, which re-runs dirty computations in dependency order.
//
// # Core Types
//
// Cells are declared against a Scope and read/written by id:
//
//	e := pulse.NewEngine(pulse.DefaultConfig())
//	e.DeclareCell(e.Root(), "count", 0)
//	e.Write("count", 5)
//	e.Flush()
//	v, _ := e.Read("count") // untracked snapshot read
//
// Computations declare a body that receives an explicit RunContext. Reads
// through the context are tracked; the dependency set is replaced on every
// run, so conditional reads prune stale edges automatically:
//
//	e.DeclareComputation(e.Root(), "doubled", func(rc *pulse.RunContext) (any, error) {
//	    n, err := rc.Read("count")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return n.(int) * 2, nil
//	})
//
// # Flushing
//
// Multiple writes before a Flush collapse into a single run per affected
// computation. Within one flush, computations run in dependency order, so a
// downstream computation never observes a mix of stale and fresh upstream
// values. A computation whose output changes extends the flush to its own
// subscribers, allowing chains of derived values.
//
// # Cycle Guard
//
// A computation may write back to one of its own transitive inputs through
// RunContext.Write. Each flush carries a propagation frame that counts
// re-entrant advances per cell; exceeding Config.CycleBound aborts the frame
// with a CycleError instead of looping. Convergent write-backs that settle
// within the bound are permitted.
//
// # Concurrency
//
// The engine is single-threaded and cooperative: public methods serialize on
// an internal mutex and computations run to completion on the flushing
// goroutine. External writes that arrive during a flush are applied at the
// next flush boundary.
package pulse
