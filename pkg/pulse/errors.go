package pulse

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateID is returned when a cell or computation is declared with an
// id that is already live in the engine. The declaration fails; the graph is
// not modified.
var ErrDuplicateID = errors.New("pulse: duplicate id")

// ErrUnknownID is returned by reads and writes that target an id with no
// live cell or computation. The caller sees the error; the graph is not
// modified.
var ErrUnknownID = errors.New("pulse: unknown id")

// ErrCycleDetected is returned when a propagation frame exceeds the
// configured re-entrancy bound. The offending frame is aborted; cells keep
// their last successfully settled values.
var ErrCycleDetected = errors.New("pulse: cycle detected")

// ErrComputationFailed wraps a domain error raised by a computation body.
// The computation keeps its last good output and propagation continues for
// independent subgraphs.
var ErrComputationFailed = errors.New("pulse: computation failed")

// ErrScopeDisposed is returned when declaring against a scope that has
// already been destroyed.
var ErrScopeDisposed = errors.New("pulse: scope disposed")

// Condition is a reportable engine condition delivered to the host through
// Config.OnCondition. Conditions are also returned as errors where a caller
// is available to receive them.
type Condition interface {
	error
	condition()
}

// CycleError reports a propagation frame that exceeded the re-entrancy
// bound. Cells lists every cell advanced re-entrantly in the frame,
// including the offender, sorted by id.
type CycleError struct {
	Frame  uint64
	Cells  []string
	Passes int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("pulse: cycle detected in frame %d after %d passes (cells: %s)",
		e.Frame, e.Passes, strings.Join(e.Cells, ", "))
}

// Unwrap allows errors.Is(err, ErrCycleDetected).
func (e *CycleError) Unwrap() error { return ErrCycleDetected }

func (e *CycleError) condition() {}

// ComputationError reports a computation body that returned an error or
// panicked during a flush.
type ComputationError struct {
	ComputationID string
	Frame         uint64
	Err           error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("pulse: computation %q failed in frame %d: %v", e.ComputationID, e.Frame, e.Err)
}

// Unwrap allows errors.Is(err, ErrComputationFailed) and matching the
// underlying body error.
func (e *ComputationError) Unwrap() []error { return []error{ErrComputationFailed, e.Err} }

func (e *ComputationError) condition() {}

// UnknownIDError identifies the id that a read or write failed to resolve.
type UnknownIDError struct {
	ID string
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("pulse: unknown id %q", e.ID)
}

func (e *UnknownIDError) Unwrap() error { return ErrUnknownID }

// DuplicateIDError identifies the id that collided during declaration.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("pulse: duplicate id %q", e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }
