package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/dag"
	"github.com/specialistvlad/cellgrid/internal/inmemorystore"
	"github.com/specialistvlad/cellgrid/internal/metrics"
	"github.com/specialistvlad/cellgrid/internal/nodestore"
	"github.com/specialistvlad/cellgrid/internal/scheduler"
)

var (
	// ErrNotStarted is returned by operations that need the loop running.
	ErrNotStarted = errors.New("runtime not started")
	// ErrClosed is returned once the runtime has been closed.
	ErrClosed = errors.New("runtime closed")
)

// RootSource supplies the values of external roots.
type RootSource interface {
	Value(ctx context.Context, name string) (any, error)
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithStore replaces the default in-memory value store.
func WithStore(s nodestore.Store) Option {
	return func(r *Runtime) { r.store = s }
}

// WithMetrics records evaluation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithSessionID sets the id attached to logs and spans. A random one is used
// otherwise.
func WithSessionID(id string) Option {
	return func(r *Runtime) { r.session = id }
}

// WithTeardownTimeout bounds how long the loop waits for a generator to stop
// after its context is cancelled.
func WithTeardownTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.teardownTimeout = d }
}

// Runtime evaluates a graph reactively.
type Runtime struct {
	graph           *dag.Graph
	sched           *scheduler.Scheduler
	roots           RootSource
	store           nodestore.Store
	metrics         *metrics.Metrics
	session         string
	teardownTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}

	// mailbox
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	disposedMu sync.RWMutex
	disposed   map[cell.ModuleID]bool

	// Loop-owned state.
	cells    map[cell.ID]*cellState
	inflight int
	waiters  []chan struct{}
}

// cellState is the loop-owned bookkeeping for one cell.
type cellState struct {
	epoch  uint64
	cancel context.CancelFunc
	// stopped is closed when the current generator's pump has exited.
	stopped chan struct{}
}

// New creates a runtime over g. roots may be nil when the graph has no
// external roots.
func New(g *dag.Graph, roots RootSource, opts ...Option) *Runtime {
	r := &Runtime{
		graph:           g,
		sched:           scheduler.New(g),
		roots:           roots,
		store:           inmemorystore.New(),
		teardownTimeout: 5 * time.Second,
		done:            make(chan struct{}),
		wake:            make(chan struct{}, 1),
		disposed:        make(map[cell.ModuleID]bool),
		cells:           make(map[cell.ID]*cellState),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.session == "" {
		r.session = uuid.NewString()[:12]
	}
	return r
}

// Session returns the id of this runtime's session.
func (r *Runtime) Session() string {
	return r.session
}

// Graph returns the graph being evaluated.
func (r *Runtime) Graph() *dag.Graph {
	return r.graph
}

// Scheduler returns the scheduler used for evaluation order.
func (r *Runtime) Scheduler() *scheduler.Scheduler {
	return r.sched
}

// Start launches the evaluation loop and schedules a full evaluation. The
// loop stops when ctx is cancelled or Close is called.
func (r *Runtime) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("runtime already started")
	}
	ctx = ctxlog.With(ctx, "session", r.session)
	r.ctx, r.cancel = context.WithCancel(ctx)

	logger := ctxlog.FromContext(r.ctx)
	logger.Info("Runtime starting.", "cells", r.graph.Len())

	r.post(func() { r.run(r.sched.Order()) })
	go r.loop()
	return nil
}

// Close disposes every module in reverse load order and stops the loop.
func (r *Runtime) Close() error {
	if !r.started.Load() {
		return nil
	}
	select {
	case <-r.done:
		return nil
	default:
	}

	finished := make(chan struct{})
	r.post(func() {
		defer close(finished)
		modules := r.moduleOrder()
		for i := len(modules) - 1; i >= 0; i-- {
			r.dispose(modules[i], false)
		}
	})
	select {
	case <-finished:
	case <-r.done:
	}
	r.cancel()
	<-r.done
	ctxlog.FromContext(r.ctx).Info("Runtime closed.")
	return nil
}

// Settle blocks until no await or generator is running and no work is
// queued, or until ctx is done.
func (r *Runtime) Settle(ctx context.Context) error {
	if !r.started.Load() {
		return ErrNotStarted
	}
	idle := make(chan struct{})
	r.post(func() { r.waiters = append(r.waiters, idle) })
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
}

func (r *Runtime) post(fn func()) {
	r.mu.Lock()
	r.queue = append(r.queue, fn)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runtime) next() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil
	}
	fn := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return fn
}

func (r *Runtime) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.stopAll()
			return
		case <-r.wake:
		}
		for fn := r.next(); fn != nil; fn = r.next() {
			fn()
		}
		if r.inflight == 0 && len(r.waiters) > 0 {
			for _, w := range r.waiters {
				close(w)
			}
			r.waiters = nil
		}
	}
}

// stopAll cancels outstanding async work when the loop exits.
func (r *Runtime) stopAll() {
	for _, st := range r.cells {
		if st.cancel != nil {
			st.cancel()
		}
	}
}

func (r *Runtime) state(id cell.ID) *cellState {
	st, ok := r.cells[id]
	if !ok {
		st = &cellState{}
		r.cells[id] = st
	}
	return st
}

func (r *Runtime) isDisposed(module cell.ModuleID) bool {
	r.disposedMu.RLock()
	defer r.disposedMu.RUnlock()
	return r.disposed[module]
}

// moduleOrder lists module ids in load order.
func (r *Runtime) moduleOrder() []cell.ModuleID {
	var out []cell.ModuleID
	seen := make(map[cell.ModuleID]bool)
	for _, n := range r.graph.Nodes() {
		if m := n.Cell.ID.Module; !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
