package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/dag"
	"github.com/specialistvlad/cellgrid/internal/nodestore"
)

// CellSnapshot pairs a cell with its current state.
type CellSnapshot struct {
	Cell *cell.Cell
	nodestore.Snapshot
}

// Value returns the current state of the cell defining name in module.
func (r *Runtime) Value(ctx context.Context, module cell.ModuleID, name string) (nodestore.Snapshot, error) {
	n, err := r.lookup(module, name)
	if err != nil {
		return nodestore.Snapshot{}, err
	}
	return r.store.Get(ctx, n.ID())
}

// Subscribe calls fn with every state written for the cell defining name in
// module, until the returned func is called. fn runs on the evaluation loop
// and must not block or call Dispose or Close.
func (r *Runtime) Subscribe(ctx context.Context, module cell.ModuleID, name string, fn func(nodestore.Snapshot)) (func(), error) {
	n, err := r.lookup(module, name)
	if err != nil {
		return nil, err
	}
	return r.store.Subscribe(ctx, n.ID(), func(_ cell.ID, s nodestore.Snapshot) { fn(s) })
}

// SubscribeAll calls fn for every state written to any cell, anonymous ones
// included. The returned func removes every subscription.
func (r *Runtime) SubscribeAll(ctx context.Context, fn func(c *cell.Cell, s nodestore.Snapshot)) (func(), error) {
	var cancels []func()
	for _, n := range r.graph.Nodes() {
		c := n.Cell
		cancel, err := r.store.Subscribe(ctx, n.ID(), func(_ cell.ID, s nodestore.Snapshot) { fn(c, s) })
		if err != nil {
			for _, cancel := range cancels {
				cancel()
			}
			return nil, err
		}
		cancels = append(cancels, cancel)
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}, nil
}

// Invalidate re-runs the cell defining name in module and everything
// downstream of it. It returns once the request is queued.
func (r *Runtime) Invalidate(module cell.ModuleID, name string) error {
	n, err := r.lookup(module, name)
	if err != nil {
		return err
	}
	id := n.ID()
	r.post(func() {
		ctxlog.FromContext(r.ctx).Debug("Cell invalidated.", "cell", n.Cell.Label())
		r.run(r.sched.Downstream(id))
	})
	return nil
}

// Dispose tears down every cell of module in reverse dependency order.
// Cells of other modules reading it become Errored. Later reads of the
// module fail with cell.ErrDisposed.
func (r *Runtime) Dispose(module cell.ModuleID) error {
	if r.isDisposed(module) {
		return cell.NewError(cell.ErrDisposed, "", fmt.Sprintf("module %q is already disposed", module))
	}
	if !r.graph.HasModule(module) {
		return cell.NewError(cell.ErrModuleNotFound, "", fmt.Sprintf("module %q is not loaded", module))
	}
	if !r.started.Load() {
		return ErrNotStarted
	}

	finished := make(chan struct{})
	r.post(func() {
		defer close(finished)
		r.dispose(module, true)
	})
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// dispose runs on the loop.
func (r *Runtime) dispose(module cell.ModuleID, propagate bool) {
	if r.isDisposed(module) {
		return
	}
	logger := ctxlog.FromContext(r.ctx)
	logger.Info("Disposing module.", "module", module)

	order := r.sched.Order()
	var ids []cell.ID
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		if n.Cell.ID.Module != module {
			continue
		}
		ids = append(ids, n.ID())
		r.teardown(n)
		r.set(n, nodestore.Snapshot{Status: nodestore.StatusDisposed})
	}

	r.disposedMu.Lock()
	r.disposed[module] = true
	r.disposedMu.Unlock()

	if !propagate {
		return
	}
	var affected []*dag.Node
	for _, n := range r.sched.Downstream(ids...) {
		if n.Cell.ID.Module != module {
			affected = append(affected, n)
		}
	}
	if len(affected) > 0 {
		logger.Debug("Re-running readers of disposed module.", "module", module, "cells", len(affected))
		r.run(affected)
	}
}

// Snapshots returns the state of every cell in evaluation order.
func (r *Runtime) Snapshots(ctx context.Context) []CellSnapshot {
	order := r.sched.Order()
	out := make([]CellSnapshot, 0, len(order))
	for _, n := range order {
		s, _ := r.store.Get(ctx, n.ID())
		out = append(out, CellSnapshot{Cell: n.Cell, Snapshot: s})
	}
	return out
}

// Failures returns the cells that failed on their own, excluding cells that
// were only skipped because an input failed, ordered by evaluation order.
func (r *Runtime) Failures(ctx context.Context) []CellSnapshot {
	return slices.DeleteFunc(r.Snapshots(ctx), func(s CellSnapshot) bool {
		return s.Status != nodestore.StatusErrored || errors.Is(s.Err, cell.ErrFailedDependency) || s.Cell.IsImport()
	})
}

func (r *Runtime) lookup(module cell.ModuleID, name string) (*dag.Node, error) {
	if r.isDisposed(module) {
		return nil, cell.NewError(cell.ErrDisposed, "", fmt.Sprintf("module %q is disposed", module))
	}
	return r.graph.Lookup(module, name)
}
