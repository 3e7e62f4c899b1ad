package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/nodestore"
	"github.com/specialistvlad/cellgrid/internal/publish"
	"github.com/specialistvlad/cellgrid/internal/report"
	"github.com/specialistvlad/cellgrid/internal/runtime"
)

// ErrCellsFailed is returned by Run when at least one cell failed on its own.
var ErrCellsFailed = errors.New("cells failed")

// Run executes the main application logic based on the app configuration:
// one evaluation, or a reload loop when watching.
func (a *App) Run(ctx context.Context) error {
	ctx = a.context(ctx)
	a.logger.Debug("App.Run method started.")

	shutdownTracing, err := setupTracing(ctx, a.config.Tracing, a.logW)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("Failed to flush traces.", "error", err)
		}
	}()

	if a.config.HealthcheckPort > 0 {
		a.healthCheckServer(ctx)
		defer a.closeHealthCheckServer(ctx)
	}

	if a.config.Watch {
		return a.watch(ctx)
	}

	res, err := a.Evaluate(ctx)
	if err != nil {
		return err
	}
	if err := report.WriteRun(a.outW, report.Format(a.config.Output), res); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	a.logger.Debug("App.Run method finished.")
	return a.check(res)
}

// Evaluate loads the notebooks, runs every cell until the runtime settles or
// the configured timeout passes, and returns the outcome of each cell. Cells
// still pending at the timeout are reported as pending.
func (a *App) Evaluate(ctx context.Context) (*report.Run, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)

	graph, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}

	rt := runtime.New(graph, a.registry, runtime.WithMetrics(a.metrics))
	logger = logger.With("session", rt.Session())

	if a.config.Publish.URL != "" {
		pub, err := publish.Dial(ctx, publish.Options{
			URL:                a.config.Publish.URL,
			Namespace:          a.config.Publish.Namespace,
			Event:              a.config.Publish.Event,
			InsecureSkipVerify: a.config.Publish.InsecureSkipVerify,
			ConnectTimeout:     a.config.Publish.ConnectTimeout,
			Session:            rt.Session(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start publisher: %w", err)
		}
		defer pub.Close()
		unsubscribe, err := rt.SubscribeAll(ctx, pub.Publish)
		if err != nil {
			return nil, err
		}
		defer unsubscribe()
	}

	if err := rt.Start(ctx); err != nil {
		return nil, err
	}
	defer rt.Close()

	settleCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.config.Timeout > 0 {
		settleCtx, cancel = context.WithTimeout(ctx, a.config.Timeout)
	}
	defer cancel()
	if err := rt.Settle(settleCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("evaluation interrupted: %w", err)
		}
		logger.Warn("Cells did not settle before the timeout, reporting current state.", "timeout", a.config.Timeout)
	}

	res := newRun(rt.Session(), rt.Snapshots(ctx), rt.Failures(ctx))
	counts := res.Counts()
	logger.Info("Evaluation finished.",
		"resolved", counts[nodestore.StatusResolved.String()],
		"errored", counts[nodestore.StatusErrored.String()],
		"pending", counts[nodestore.StatusPending.String()],
	)
	return res, nil
}

func (a *App) check(res *report.Run) error {
	failures := res.Failures()
	if len(failures) == 0 {
		return nil
	}
	for _, f := range failures {
		a.logger.Error("Cell failed.", "cell", f.Cell, "error", f.Error)
	}
	if a.config.KeepGoing {
		a.logger.Warn("Ignoring failed cells.", "count", len(failures))
		return nil
	}
	return fmt.Errorf("%w: %d cell(s) failed on their own", ErrCellsFailed, len(failures))
}

func newRun(session string, snaps, failures []runtime.CellSnapshot) *report.Run {
	rootCause := make(map[string]bool, len(failures))
	for _, f := range failures {
		rootCause[f.Cell.Label()] = true
	}
	res := &report.Run{Session: session, Entries: make([]report.Entry, 0, len(snaps))}
	for _, s := range snaps {
		e := report.Entry{
			Cell:      s.Cell.Label(),
			Module:    string(s.Cell.ID.Module),
			Name:      s.Cell.Name,
			Status:    s.Status.String(),
			RootCause: rootCause[s.Cell.Label()],
		}
		if s.Status == nodestore.StatusResolved {
			e.Value = s.Value
		}
		if s.Err != nil {
			e.Error = s.Err.Error()
		}
		res.Entries = append(res.Entries, e)
	}
	return res
}
