package app

import (
	"context"
	"fmt"
	"path"
	"slices"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/dag"
	"github.com/specialistvlad/cellgrid/internal/resolve"
)

// Load reads every configured notebook and builds the checked dependency
// graph. Any structural, resolution or cycle error fails the whole load.
func (a *App) Load(ctx context.Context) (*dag.Graph, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading notebooks...", "paths", a.config.Paths)

	raws, err := a.loader.LoadPaths(ctx, a.config.Paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load notebooks: %w", err)
	}
	if len(a.config.Ignore) > 0 {
		var dropped []string
		raws, dropped = ignoreCells(raws, a.config.Ignore)
		logger.Info("Ignoring cells.", "patterns", a.config.Ignore, "cells", dropped)
	}

	lib := resolve.NewLibrary()
	for _, raw := range raws {
		m, err := cell.LoadModule(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to load notebook %q: %w", raw.ID, err)
		}
		if err := lib.Add(ctx, m); err != nil {
			return nil, err
		}
	}

	graph, err := dag.Build(ctx, lib, a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	logger.Info("Notebooks loaded.", "modules", len(raws), "cells", graph.Len())
	return graph, nil
}

// ignoreCells drops the named cells matching any pattern, by name or by
// module:name label. Anonymous cells are always kept. Readers of a dropped
// cell then fail to resolve it.
func ignoreCells(raws []cell.RawModule, patterns []string) ([]cell.RawModule, []string) {
	var dropped []string
	out := make([]cell.RawModule, len(raws))
	for i, raw := range raws {
		out[i] = cell.RawModule{ID: raw.ID}
		for _, v := range raw.Variables {
			label := raw.ID + ":" + v.Name
			if v.Name != "" && slices.ContainsFunc(patterns, func(p string) bool {
				return matchGlob(p, v.Name) || matchGlob(p, label)
			}) {
				dropped = append(dropped, label)
				continue
			}
			out[i].Variables = append(out[i].Variables, v)
		}
	}
	return out, dropped
}

func matchGlob(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
