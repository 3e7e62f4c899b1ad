package runtime

import (
	"context"
	"fmt"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/dag"
	"github.com/specialistvlad/cellgrid/internal/nodestore"
)

// startAwait waits for aw off the loop. The cell stays Pending meanwhile.
func (r *Runtime) startAwait(ctx context.Context, n *dag.Node, epoch uint64, aw cell.Awaitable) {
	r.asyncStarted()
	ctxlog.FromContext(r.ctx).Debug("Cell awaiting deferred value.", "cell", n.Cell.Label())
	go func() {
		v, err := await(ctx, aw)
		r.post(func() {
			r.asyncFinished()
			r.settled(ctx, n, epoch, v, err)
		})
	}()
}

func (r *Runtime) settled(ctx context.Context, n *dag.Node, epoch uint64, v any, err error) {
	if r.stale(n, epoch) {
		return
	}
	if err != nil {
		r.fail(n, &cell.Error{Kind: cell.ErrEvaluation, Cell: n.Cell.Label(), Msg: "deferred value rejected", Cause: err})
		r.runAfter(n.ID())
		return
	}
	r.accept(ctx, n, epoch, v)
	if cur, _ := r.store.Get(r.ctx, n.ID()); cur.Status != nodestore.StatusPending {
		r.runAfter(n.ID())
	}
}

// startGenerator pulls values from g on a separate goroutine. Each value is
// applied on the loop before the next one is requested.
func (r *Runtime) startGenerator(ctx context.Context, n *dag.Node, epoch uint64, g cell.Generator) {
	st := r.state(n.ID())
	stopped := make(chan struct{})
	st.stopped = stopped
	r.asyncStarted()
	ctxlog.FromContext(r.ctx).Debug("Cell started a generator.", "cell", n.Cell.Label())
	go r.pump(ctx, n, epoch, g, stopped)
}

func (r *Runtime) pump(ctx context.Context, n *dag.Node, epoch uint64, g cell.Generator, stopped chan struct{}) {
	defer func() {
		if err := g.Close(); err != nil {
			ctxlog.FromContext(r.ctx).Warn("Generator close failed.", "cell", n.Cell.Label(), "error", err)
		}
		close(stopped)
		r.post(r.asyncFinished)
	}()

	for {
		v, ok, err := next(ctx, g)
		if ctx.Err() != nil {
			return
		}
		applied := make(chan struct{})
		r.post(func() {
			defer close(applied)
			r.generated(n, epoch, v, ok, err)
		})
		if !ok || err != nil {
			return
		}
		select {
		case <-applied:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runtime) generated(n *dag.Node, epoch uint64, v any, ok bool, err error) {
	if r.stale(n, epoch) {
		return
	}
	st := r.state(n.ID())
	if err != nil || !ok {
		// The pump is exiting; nothing is left to wait for.
		if st.cancel != nil {
			st.cancel()
		}
		st.cancel, st.stopped = nil, nil
	}
	if err != nil {
		r.fail(n, &cell.Error{Kind: cell.ErrEvaluation, Cell: n.Cell.Label(), Msg: "generator failed", Cause: err})
		r.runAfter(n.ID())
		return
	}

	cur, _ := r.store.Get(r.ctx, n.ID())
	if !ok {
		ctxlog.FromContext(r.ctx).Debug("Generator exhausted.", "cell", n.Cell.Label())
		if cur.Status == nodestore.StatusPending {
			r.set(n, nodestore.Snapshot{Status: nodestore.StatusResolved})
			r.runAfter(n.ID())
		}
		return
	}

	r.metrics.GeneratorItem()
	if cur.Status != nodestore.StatusPending {
		r.set(n, nodestore.Snapshot{Status: nodestore.StatusPending})
	}
	r.set(n, nodestore.Snapshot{Status: nodestore.StatusResolved, Value: v})
	r.runAfter(n.ID())
}

// stale reports whether a result belongs to an earlier evaluation of n.
func (r *Runtime) stale(n *dag.Node, epoch uint64) bool {
	if r.isDisposed(n.Cell.ID.Module) || r.state(n.ID()).epoch != epoch {
		ctxlog.FromContext(r.ctx).Debug("Dropping stale async result.", "cell", n.Cell.Label())
		r.metrics.StaleResult()
		return true
	}
	return false
}

func (r *Runtime) asyncStarted() {
	r.inflight++
	r.metrics.AsyncStarted()
}

func (r *Runtime) asyncFinished() {
	r.inflight--
	r.metrics.AsyncFinished()
}

func await(ctx context.Context, aw cell.Awaitable) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return aw.Await(ctx)
}

func next(ctx context.Context, g cell.Generator) (v any, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, ok, err = nil, false, fmt.Errorf("panic: %v", p)
		}
	}()
	return g.Next(ctx)
}
