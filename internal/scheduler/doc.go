// Package scheduler decides the order in which cells are evaluated.
//
// # Ordering
//
// Order returns a topological order of the whole graph. When several cells
// are ready at once, the one with the smallest rank (module load order, then
// declaration order) goes first, so the same library always produces the
// same order.
//
// # Incremental runs
//
// Downstream returns the cells affected by a change: the changed cells and
// everything transitively reading them, ordered with the same tie-break.
// Cells outside that set keep their values. Upstream is the mirror image,
// used to explain what a single cell needs.
package scheduler
