// Package reconcile maps UI descriptions produced by a computation onto
// live cells and renderer controls.
//
// A description is an ordered sequence of control specs. Applying a new
// description diffs it by id against the previous one: controls present in
// both keep their underlying cell and its current value, removed controls
// are torn down transitively through their scope, and new controls get a
// fresh cell seeded from the spec. When the engine already holds a cell
// with the control's id, the control adopts it instead of declaring one;
// adopted cells keep their value and outlive the control. A control whose
// kind changes is treated
// as remove+add, but the new cell is seeded from the old cell's last value
// (an untracked carry-over read) rather than the spec's declared initial.
//
// The renderer sink is treated as an idempotent side-effecting consumer:
// structural changes are append/remove-only and unchanged controls are
// never re-created.
package reconcile
