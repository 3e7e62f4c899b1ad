package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/dag"
	"github.com/specialistvlad/cellgrid/internal/nodestore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cellgrid.runtime"

// run recomputes nodes, which must already be in evaluation order. Every
// node is first marked Pending, with its outstanding async work torn down,
// and then evaluated.
func (r *Runtime) run(nodes []*dag.Node) {
	live := nodes[:0:0]
	for _, n := range nodes {
		if r.isDisposed(n.Cell.ID.Module) {
			continue
		}
		r.teardown(n)
		r.markPending(n)
		live = append(live, n)
	}
	for _, n := range live {
		r.evaluate(n)
	}
}

// runAfter recomputes everything downstream of id, excluding id itself.
func (r *Runtime) runAfter(id cell.ID) {
	affected := r.sched.Downstream(id)
	rest := affected[:0:0]
	for _, n := range affected {
		if n.ID() != id {
			rest = append(rest, n)
		}
	}
	r.run(rest)
}

func (r *Runtime) markPending(n *dag.Node) {
	cur, _ := r.store.Get(r.ctx, n.ID())
	if cur.Status == nodestore.StatusPending {
		return
	}
	r.set(n, nodestore.Snapshot{Status: nodestore.StatusPending})
}

// teardown cancels the cell's outstanding await or generator and bumps its
// epoch so late results are dropped. A running generator is stopped and
// closed before teardown returns, and the cell passes through Disposed.
func (r *Runtime) teardown(n *dag.Node) {
	st := r.state(n.ID())
	st.epoch++
	if st.cancel == nil {
		return
	}
	st.cancel()
	st.cancel = nil
	if st.stopped == nil {
		return
	}
	r.waitStopped(n, st.stopped)
	st.stopped = nil
	r.set(n, nodestore.Snapshot{Status: nodestore.StatusDisposed})
}

func (r *Runtime) waitStopped(n *dag.Node, stopped <-chan struct{}) {
	t := time.NewTimer(r.teardownTimeout)
	defer t.Stop()
	select {
	case <-stopped:
	case <-t.C:
		ctxlog.FromContext(r.ctx).Warn("Generator did not stop in time.", "cell", n.Cell.Label(), "timeout", r.teardownTimeout)
	}
}

// evaluate computes one node from the current snapshots of its inputs.
func (r *Runtime) evaluate(n *dag.Node) {
	c := n.Cell
	logger := ctxlog.FromContext(r.ctx).With("cell", c.Label())

	if c.IsImport() {
		r.alias(n)
		return
	}

	inputs := make([]any, len(n.Bindings))
	var waiting []string
	for i, b := range n.Bindings {
		if b.Root {
			v, err := r.rootValue(b.Input)
			if err != nil {
				r.fail(n, &cell.Error{Kind: cell.ErrEvaluation, Cell: c.Label(), Msg: fmt.Sprintf("root %q", b.Input), Cause: err})
				return
			}
			inputs[i] = v
			continue
		}
		snap, _ := r.store.Get(r.ctx, b.Definer.ID())
		switch snap.Status {
		case nodestore.StatusResolved:
			inputs[i] = snap.Value
		case nodestore.StatusErrored:
			r.fail(n, failedDependency(c, b.Definer.Cell, snap.Err))
			return
		case nodestore.StatusDisposed:
			r.fail(n, failedDependency(c, b.Definer.Cell, cell.NewError(cell.ErrDisposed, b.Definer.Cell.Label(), "")))
			return
		default:
			waiting = append(waiting, b.Input)
		}
	}
	// A failed input wins over a pending one, whatever their order.
	if len(waiting) > 0 {
		logger.Debug("Cell waits for pending inputs.", "inputs", waiting)
		r.metrics.Evaluated(string(c.ID.Module), "pending", 0)
		return
	}

	st := r.state(n.ID())
	st.epoch++
	epoch := st.epoch
	ctx, cancel := context.WithCancel(r.ctx)
	st.cancel = cancel

	ctx, span := otel.Tracer(tracerName).Start(ctx, "cell.evaluate", trace.WithAttributes(
		attribute.String("cell.module", string(c.ID.Module)),
		attribute.String("cell.name", c.Name),
		attribute.Int("cell.index", c.ID.Index),
		attribute.String("session.id", r.session),
	))
	start := time.Now()
	value, err := compute(ctx, c.Body, inputs)
	took := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cell body failed")
		span.End()
		cancel()
		st.cancel = nil
		r.fail(n, &cell.Error{Kind: cell.ErrEvaluation, Cell: c.Label(), Cause: err})
		r.metrics.Evaluated(string(c.ID.Module), "errored", took)
		return
	}
	span.End()
	r.metrics.Evaluated(string(c.ID.Module), "resolved", took)
	logger.Debug("Cell evaluated.", "took", took)
	r.accept(ctx, n, epoch, value)
}

// accept stores a body result, starting async work for awaitables and
// generators.
func (r *Runtime) accept(ctx context.Context, n *dag.Node, epoch uint64, value any) {
	switch v := value.(type) {
	case cell.Generator:
		r.startGenerator(ctx, n, epoch, v)
	case cell.Awaitable:
		r.startAwait(ctx, n, epoch, v)
	default:
		r.set(n, nodestore.Snapshot{Status: nodestore.StatusResolved, Value: v})
	}
}

// alias copies the terminal definer's snapshot into an import cell.
func (r *Runtime) alias(n *dag.Node) {
	if len(n.Bindings) == 0 || n.Bindings[0].Definer == nil {
		return
	}
	src, _ := r.store.Get(r.ctx, n.Bindings[0].Definer.ID())
	switch src.Status {
	case nodestore.StatusPending:
		return
	case nodestore.StatusDisposed:
		r.fail(n, failedDependency(n.Cell, n.Bindings[0].Definer.Cell, cell.NewError(cell.ErrDisposed, n.Bindings[0].Definer.Cell.Label(), "")))
	default:
		r.set(n, nodestore.Snapshot{Status: src.Status, Value: src.Value, Err: src.Err})
	}
}

func (r *Runtime) rootValue(name string) (any, error) {
	if r.roots == nil {
		return nil, fmt.Errorf("no source for root %q", name)
	}
	return r.roots.Value(r.ctx, name)
}

func (r *Runtime) fail(n *dag.Node, err error) {
	logger := ctxlog.FromContext(r.ctx)
	if errors.Is(err, cell.ErrFailedDependency) {
		logger.Debug("Cell skipped.", "cell", n.Cell.Label(), "error", err)
		r.metrics.Evaluated(string(n.Cell.ID.Module), "failed_dependency", 0)
	} else {
		logger.Error("Cell failed.", "cell", n.Cell.Label(), "error", err)
	}
	r.set(n, nodestore.Snapshot{Status: nodestore.StatusErrored, Err: err})
}

func (r *Runtime) set(n *dag.Node, snap nodestore.Snapshot) {
	stored, err := r.store.Set(r.ctx, n.ID(), snap)
	if err != nil {
		ctxlog.FromContext(r.ctx).Error("Failed to store cell state.", "cell", n.Cell.Label(), "error", err)
		return
	}
	r.metrics.Transition(stored.Status.String())
}

// failedDependency builds the error of a cell skipped because upstream
// failed. Chains of skipped cells all point at the cell that failed first.
func failedDependency(c, upstream *cell.Cell, upstreamErr error) *cell.Error {
	var prev *cell.Error
	if errors.As(upstreamErr, &prev) && errors.Is(prev, cell.ErrFailedDependency) {
		return &cell.Error{Kind: cell.ErrFailedDependency, Cell: c.Label(), Msg: prev.Msg, Cause: prev.Cause}
	}
	return &cell.Error{
		Kind:  cell.ErrFailedDependency,
		Cell:  c.Label(),
		Msg:   fmt.Sprintf("skipped due to upstream failure of '%s'", upstream.Label()),
		Cause: upstreamErr,
	}
}

// compute invokes a body, turning a panic into an error.
func compute(ctx context.Context, body cell.Computable, inputs []any) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return body.Compute(ctx, inputs)
}
