package resolve

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
)

// Library is the set of loaded modules, kept in load order. It resolves
// imports between them.
type Library struct {
	mu      sync.RWMutex
	modules map[cell.ModuleID]*cell.Module
	order   []cell.ModuleID
	rank    map[cell.ModuleID]int
	// imports caches the terminal definer of each import cell.
	imports map[cell.ID]*cell.Cell
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		modules: make(map[cell.ModuleID]*cell.Module),
		rank:    make(map[cell.ModuleID]int),
		imports: make(map[cell.ID]*cell.Cell),
	}
}

// Add registers m as the next module in load order.
func (l *Library) Add(ctx context.Context, m *cell.Module) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.modules[m.ID]; ok {
		return cell.NewError(cell.ErrDuplicateModule, "", fmt.Sprintf("module %q is already loaded", m.ID))
	}
	l.rank[m.ID] = len(l.order)
	l.order = append(l.order, m.ID)
	l.modules[m.ID] = m
	clear(l.imports)

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Module added to library.", "module", m.ID, "cells", len(m.Cells), "load_order", l.rank[m.ID])
	for _, c := range Shadowed(m) {
		logger.Debug("Cell is redefined later in its module.", "cell", c.Label(), "index", c.ID.Index)
	}
	return nil
}

// Module returns the module loaded under id.
func (l *Library) Module(id cell.ModuleID) (*cell.Module, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.modules[id]
	return m, ok
}

// Modules returns every loaded module in load order.
func (l *Library) Modules() []*cell.Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*cell.Module, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.modules[id])
	}
	return out
}

// Rank returns the load position of a module, or -1 when it is not loaded.
func (l *Library) Rank(id cell.ModuleID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if r, ok := l.rank[id]; ok {
		return r
	}
	return -1
}

// Cell returns the cell with the given identity.
func (l *Library) Cell(id cell.ID) (*cell.Cell, bool) {
	m, ok := l.Module(id.Module)
	if !ok {
		return nil, false
	}
	c := m.Cell(id.Index)
	return c, c != nil
}

// ResolveImport follows the import chain starting at c until it reaches a
// cell that is not itself an import. A cell that is not an import resolves
// to itself.
func (l *Library) ResolveImport(c *cell.Cell) (*cell.Cell, error) {
	if !c.IsImport() {
		return c, nil
	}

	l.mu.RLock()
	cached, ok := l.imports[c.ID]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	l.mu.RLock()
	limit := len(l.order)
	for _, m := range l.modules {
		for _, mc := range m.Cells {
			if mc.IsImport() {
				limit++
			}
		}
	}
	l.mu.RUnlock()

	visited := make(map[cell.ID]int)
	var chain []string
	cur := c
	for hops := 0; cur.IsImport(); hops++ {
		if at, seen := visited[cur.ID]; seen {
			return nil, cell.CycleError(cell.ErrCyclicImport, chain[at:])
		}
		if hops > limit {
			return nil, cell.CycleError(cell.ErrCyclicImport, chain)
		}
		visited[cur.ID] = len(chain)
		chain = append(chain, cur.Label())

		src, ok := l.Module(cur.Import.Module)
		if !ok {
			return nil, cell.NewError(cell.ErrModuleNotFound, cur.Label(),
				fmt.Sprintf("module %q is not loaded", cur.Import.Module))
		}
		next, ok := Lookup(src, cur.Import.Remote)
		if !ok {
			return nil, cell.NewError(cell.ErrRemoteNotFound, cur.Label(),
				fmt.Sprintf("module %q does not define %q", cur.Import.Module, cur.Import.Remote))
		}
		cur = next
	}

	l.mu.Lock()
	l.imports[c.ID] = cur
	l.mu.Unlock()
	return cur, nil
}
