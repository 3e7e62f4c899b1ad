package dag

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/resolve"
)

// Build constructs a complete, validated dependency graph from every module
// in lib. Free names must be allowlisted by roots.
func Build(ctx context.Context, lib *resolve.Library, roots Roots) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	graph := New(lib)

	// First pass: one node per cell, ranked by load order then declaration order.
	rank := 0
	for _, m := range lib.Modules() {
		for _, c := range m.Cells {
			graph.AddNode(c, rank)
			rank++
		}
	}
	logger.Debug("Build: Node creation complete.", "node_count", graph.Len())

	// Second pass: bind every input to its terminal definer.
	var errs []error
	for _, m := range lib.Modules() {
		for _, c := range m.Cells {
			if err := graph.bind(lib, m, c, roots); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("error linking cells: %w", errors.Join(errs...))
	}
	logger.Debug("Build: Node linking complete.")

	if err := graph.DetectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")

	logger.Debug("Build: Graph construction successful.")
	return graph, nil
}

func (g *Graph) bind(lib *resolve.Library, m *cell.Module, c *cell.Cell, roots Roots) error {
	n, _ := g.Node(c.ID)

	if c.IsImport() {
		terminal, err := lib.ResolveImport(c)
		if err != nil {
			return err
		}
		return g.link(n, c.Name, terminal)
	}

	var errs []error
	for _, input := range c.Inputs {
		definer, ok := resolve.LookupAt(m, input, c.ID.Index)
		if !ok {
			if roots != nil && roots.Has(input) {
				n.Bindings = append(n.Bindings, Binding{Input: input, Root: true})
				continue
			}
			errs = append(errs, cell.NewError(cell.ErrUnresolvedName, c.Label(), fmt.Sprintf("input %q is not defined", input)))
			continue
		}
		terminal, err := lib.ResolveImport(definer)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := g.link(n, input, terminal); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Graph) link(n *Node, input string, terminal *cell.Cell) error {
	if terminal.ID == n.ID() {
		return cell.CycleError(cell.ErrCyclicDependency, []string{n.Cell.Label()})
	}
	definer, ok := g.Node(terminal.ID)
	if !ok {
		return fmt.Errorf("node not found: %s", terminal.ID)
	}
	n.Bindings = append(n.Bindings, Binding{Input: input, Definer: definer})
	return g.AddEdge(terminal.ID, n.ID())
}
