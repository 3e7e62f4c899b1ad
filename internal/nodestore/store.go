// Package nodestore defines the interface for storing and observing the
// mutable value state of cells while a notebook runs.
//
// # Why Node Store Exists
//
// The store separates **mutable runtime state** (status, value, error) from
// the **immutable dependency graph** built by package dag. The runtime is the
// only writer; readers (getValue callers, subscribers, reports) never block
// evaluation.
//
// # State Transitions
//
// Cells follow this lifecycle:
//
//	Pending → Resolved (with a value) OR Errored (with an error)
//	Resolved → Pending → Resolved   (generators, invalidation)
//	any → Disposed                  (module disposed, generator torn down)
//
// Every Set produces a new Version and is delivered to the cell's observers
// in the order the writes happened.
package nodestore

import (
	"context"

	"github.com/specialistvlad/cellgrid/internal/cell"
)

// Status is the lifecycle state of a cell's value.
type Status int

const (
	// StatusPending means the value is not known yet.
	StatusPending Status = iota
	// StatusResolved means Value holds the current value.
	StatusResolved
	// StatusErrored means Err holds why no value is available.
	StatusErrored
	// StatusDisposed means the cell was torn down and will not run again.
	StatusDisposed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusErrored:
		return "errored"
	case StatusDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Snapshot is the state of one cell at one point in time.
type Snapshot struct {
	Status Status
	Value  any
	Err    error
	// Version increases with every write to the cell.
	Version uint64
}

// Observer receives every snapshot written for a cell.
type Observer func(id cell.ID, s Snapshot)

// Store is the interface for managing the mutable value state of cells.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for one writer and any number of concurrent
// readers. Observers are invoked synchronously from Set, in write order, and
// must not block.
type Store interface {
	// Get returns the current snapshot. Cells never written are Pending.
	Get(ctx context.Context, id cell.ID) (Snapshot, error)

	// Set records a new snapshot, assigns it the next version and notifies
	// observers. The stored snapshot is returned.
	Set(ctx context.Context, id cell.ID, s Snapshot) (Snapshot, error)

	// Subscribe registers fn for every future write to id. The returned func
	// removes the subscription and is safe to call more than once.
	Subscribe(ctx context.Context, id cell.ID, fn Observer) (func(), error)
}
