// Package runtime evaluates a dependency graph and keeps it up to date.
//
// # Evaluation Loop
//
// A Runtime owns one loop goroutine. Every write to a cell's value state
// happens on that goroutine, in scheduler order, so a cell never observes a
// dependency mid-update. Cell bodies run on the loop as well. When a body
// returns a cell.Awaitable or a cell.Generator, the waiting happens on a
// separate goroutine and the result is posted back to the loop; only the
// cells downstream of that one cell wait for it.
//
// # Reactivity
//
// Whenever a cell gets a new value (an await settles, a generator yields,
// Invalidate is called), the runtime asks the scheduler for the cells
// downstream of it and recomputes exactly those. Each recomputation bumps a
// per-cell epoch; results of older async work are dropped when they arrive.
//
// # Failure
//
// A body error or panic leaves that cell Errored. Cells reading an Errored or
// Disposed cell become Errored with cell.ErrFailedDependency and their bodies
// are not invoked. Unrelated cells are unaffected.
package runtime
