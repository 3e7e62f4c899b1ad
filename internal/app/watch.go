package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/notebookhcl"
	"github.com/specialistvlad/cellgrid/internal/report"
)

// watchDebounce coalesces bursts of file events into one reload.
const watchDebounce = 150 * time.Millisecond

// watch evaluates once, then reloads and re-evaluates every time a notebook
// file changes, until ctx is cancelled. Failures are logged, not returned.
func (a *App) watch(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	dirs, files, err := watchTargets(a.config.Paths)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	logger.Info("Watching notebooks for changes.", "directories", len(dirs))

	a.evaluateAndReport(ctx)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			logger.Info("Watch stopped.")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warn("Failed to watch new directory.", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !relevant(event, files) {
				continue
			}
			logger.Debug("Notebook changed.", "path", event.Name, "op", event.Op.String())
			reload = time.After(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)

		case <-reload:
			reload = nil
			logger.Info("Reloading notebooks.")
			a.evaluateAndReport(ctx)
		}
	}
}

func (a *App) evaluateAndReport(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	res, err := a.Evaluate(ctx)
	if err != nil {
		logger.Error("Evaluation failed.", "error", err)
		return
	}
	if err := report.WriteRun(a.outW, report.Format(a.config.Output), res); err != nil {
		logger.Error("Failed to write report.", "error", err)
		return
	}
	if err := a.check(res); err != nil {
		logger.Warn("Run finished with failures.", "error", err)
	}
}

// watchTargets returns every directory to watch and the explicitly named
// files among paths.
func watchTargets(paths []string) (dirs []string, files map[string]bool, err error) {
	files = make(map[string]bool)
	seen := make(map[string]bool)
	addDir := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			files[filepath.Clean(path)] = true
			addDir(filepath.Dir(filepath.Clean(path)))
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				addDir(filepath.Clean(p))
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return dirs, files, nil
}

func relevant(event fsnotify.Event, files map[string]bool) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	return files[name] || strings.HasSuffix(name, notebookhcl.Extension)
}
