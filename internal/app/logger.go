package app

import (
	"io"
	"log/slog"

	"github.com/specialistvlad/cellgrid/internal/config"
)

// newLogger builds the run's logger from the validated log settings. It
// never touches the global logger.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	if cfg.Watch {
		logger = logger.With("mode", "watch")
	}
	return logger
}
