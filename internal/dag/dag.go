package dag

import (
	"fmt"
	"slices"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/resolve"
)

// New creates and returns an initialized, empty Graph over lib.
func New(lib *resolve.Library) *Graph {
	return &Graph{
		nodes: make(map[cell.ID]*Node),
		lib:   lib,
	}
}

// AddNode adds a node for c with the given rank. If a node for the same cell
// already exists, it is returned unchanged.
func (g *Graph) AddNode(c *cell.Cell, rank int) *Node {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n, ok := g.nodes[c.ID]; ok {
		return n
	}

	n := &Node{
		Cell:       c,
		Rank:       rank,
		deps:       make(map[cell.ID]*Node),
		dependents: make(map[cell.ID]*Node),
	}
	g.nodes[c.ID] = n
	i, _ := slices.BinarySearchFunc(g.ordered, rank, func(x *Node, r int) int { return x.Rank - r })
	g.ordered = slices.Insert(g.ordered, i, n)
	return n
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` reads the value of `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID cell.ID) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Node returns the node for id.
func (g *Graph) Node(id cell.ID) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node sorted by rank.
func (g *Graph) Nodes() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return slices.Clone(g.ordered)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// ModuleNodes returns the nodes of one module sorted by rank.
func (g *Graph) ModuleNodes(module cell.ModuleID) []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	var out []*Node
	for _, n := range g.ordered {
		if n.Cell.ID.Module == module {
			out = append(out, n)
		}
	}
	return out
}

// HasModule reports whether module was loaded into the graph's library.
func (g *Graph) HasModule(module cell.ModuleID) bool {
	_, ok := g.lib.Module(module)
	return ok
}

// Lookup returns the node currently defining name in module, following the
// same rule as resolve.Lookup.
func (g *Graph) Lookup(module cell.ModuleID, name string) (*Node, error) {
	m, ok := g.lib.Module(module)
	if !ok {
		return nil, cell.NewError(cell.ErrModuleNotFound, "", fmt.Sprintf("module %q is not loaded", module))
	}
	c, ok := resolve.Lookup(m, name)
	if !ok {
		return nil, cell.NewError(cell.ErrUnresolvedName, "", fmt.Sprintf("module %q does not define %q", module, name))
	}
	n, ok := g.Node(c.ID)
	if !ok {
		return nil, fmt.Errorf("node not found: %s", c.ID)
	}
	return n, nil
}

// Dependencies returns the nodes the given node reads, sorted by rank.
func (g *Graph) Dependencies(id cell.ID) ([]*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedByRank(n.deps), nil
}

// Dependents returns the nodes reading the given node, sorted by rank.
func (g *Graph) Dependents(id cell.ID) ([]*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedByRank(n.dependents), nil
}

// InDegree returns how many distinct nodes n reads.
func (n *Node) InDegree() int {
	return len(n.deps)
}

// Deps returns the nodes n reads, sorted by rank. Only safe once the graph
// is no longer being modified.
func (n *Node) Deps() []*Node {
	return sortedByRank(n.deps)
}

// Dependents returns the nodes reading n, sorted by rank. Only safe once the
// graph is no longer being modified.
func (n *Node) Dependents() []*Node {
	return sortedByRank(n.dependents)
}

// DetectCycles checks the graph for cycles. The returned error is a
// *cell.Error of kind ErrCyclicDependency whose Path lists every cell on the
// first cycle found, walking dependencies from the lowest-ranked node.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// permanent: fully visited nodes known not to sit on a cycle.
	// onStack: position of nodes in the current recursion stack.
	permanent := make(map[cell.ID]bool)
	onStack := make(map[cell.ID]int)
	var stack []*Node

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID()] {
			return nil
		}
		if at, ok := onStack[n.ID()]; ok {
			path := make([]string, 0, len(stack)-at)
			for _, s := range stack[at:] {
				path = append(path, s.Cell.Label())
			}
			return cell.CycleError(cell.ErrCyclicDependency, path)
		}

		onStack[n.ID()] = len(stack)
		stack = append(stack, n)

		for _, dep := range sortedByRank(n.deps) {
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, n.ID())
		permanent[n.ID()] = true
		return nil
	}

	for _, n := range g.ordered {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

func sortedByRank(set map[cell.ID]*Node) []*Node {
	out := make([]*Node, 0, len(set))
	for _, n := range set {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *Node) int { return a.Rank - b.Rank })
	return out
}
