package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/cellgrid/internal/config"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/metrics"
	"github.com/specialistvlad/cellgrid/internal/notebookhcl"
	"github.com/specialistvlad/cellgrid/internal/registry"
	"github.com/specialistvlad/cellgrid/modules/globals"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logW     io.Writer
	logger   *slog.Logger
	config   *config.Config
	registry *registry.Registry
	loader   *notebookhcl.Loader
	metrics  *metrics.Metrics

	httpServer *http.Server
}

// NewApp is the constructor for the main application. Reports and printed
// values go to outW, logs to logW. With no modules the core modules are
// registered. It panics when the registry fails validation, since that is a
// mismatch between compiled-in modules and configuration.
func NewApp(outW, logW io.Writer, cfg *config.Config, modules ...registry.Module) *App {
	logger := newLogger(cfg, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules(outW)
	}
	modules = append(modules, &globals.Module{Extra: cfg.Roots})
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := reg.Validate(ctx); err != nil {
		panic(err)
	}

	return &App{
		outW:     outW,
		logW:     logW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		loader:   notebookhcl.NewLoader(reg.Functions()),
		metrics:  metrics.New(),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Metrics returns the collectors shared by every run of this app.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
