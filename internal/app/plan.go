package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/dag"
	"github.com/specialistvlad/cellgrid/internal/nodeid"
	"github.com/specialistvlad/cellgrid/internal/notebookhcl"
	"github.com/specialistvlad/cellgrid/internal/report"
	"github.com/specialistvlad/cellgrid/internal/scheduler"
)

// Plan loads the notebooks and returns the evaluation order without running
// anything. With a target address ("module:name" or "module#index") only
// the cells the target transitively reads are listed.
func (a *App) Plan(ctx context.Context, target string) (*report.Plan, error) {
	graph, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(graph)

	nodes := sched.Order()
	if target != "" {
		n, err := lookupAddress(graph, target)
		if err != nil {
			return nil, err
		}
		nodes = sched.Upstream(n.ID())
	}

	depth := make(map[cell.ID]int, len(nodes))
	plan := &report.Plan{Steps: make([]report.Step, 0, len(nodes))}
	for i, n := range nodes {
		d := 0
		for _, dep := range n.Deps() {
			d = max(d, depth[dep.ID()]+1)
		}
		depth[n.ID()] = d

		step := report.Step{Position: i + 1, Depth: d, Cell: n.Cell.Label(), Kind: kind(n.Cell)}
		if body, ok := n.Cell.Body.(*notebookhcl.Body); ok {
			step.Source = body.Source()
		}
		step.Inputs = planInputs(n)
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

func lookupAddress(graph *dag.Graph, raw string) (*dag.Node, error) {
	addr, err := nodeid.Parse(raw)
	if err != nil {
		return nil, err
	}
	if id, ok := addr.ID(); ok {
		if n, ok := graph.Node(id); ok {
			return n, nil
		}
		return nil, fmt.Errorf("no cell at %s", addr)
	}
	return graph.Lookup(addr.Module, addr.Name)
}

func planInputs(n *dag.Node) []report.Input {
	if len(n.Bindings) == 0 {
		return nil
	}
	out := make([]report.Input, 0, len(n.Bindings))
	for _, b := range n.Bindings {
		in := report.Input{Name: b.Input, Root: b.Root}
		if b.Definer != nil {
			in.From = b.Definer.Cell.Label()
		}
		out = append(out, in)
	}
	return out
}

func kind(c *cell.Cell) string {
	if c.IsImport() {
		return "import"
	}
	if body, ok := c.Body.(*notebookhcl.Body); ok {
		switch {
		case body.Generator():
			return "generator"
		case body.Delay() > 0:
			return "deferred"
		}
	}
	return "value"
}
