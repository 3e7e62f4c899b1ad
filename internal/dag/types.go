package dag

import (
	"sync"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/resolve"
)

// Graph is the dependency graph of every cell in a Library. Edges point from
// a definer to the cells reading it. All operations are concurrency-safe.
type Graph struct {
	// mutex protects the maps below during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by cell identity.
	nodes map[cell.ID]*Node
	// ordered holds nodes sorted by Rank.
	ordered []*Node
	// lib is the library the graph was built from, used for name lookups.
	lib *resolve.Library
}

// Node is a single vertex: one cell plus the bindings of its inputs.
type Node struct {
	Cell *cell.Cell
	// Rank is the position in (module load order, declaration order). Lower
	// ranks win scheduling ties.
	Rank int
	// Bindings has one entry per input of the cell, in input order. Import
	// cells have a single binding to their terminal definer.
	Bindings []Binding

	// deps holds the nodes this node reads from (predecessors).
	deps map[cell.ID]*Node
	// dependents holds the nodes reading this node (successors).
	dependents map[cell.ID]*Node
}

// ID is shorthand for n.Cell.ID.
func (n *Node) ID() cell.ID {
	return n.Cell.ID
}

// Binding is the resolution of one input name.
type Binding struct {
	Input string
	// Definer is the terminal, non-import cell providing the value. Nil when
	// the input is an external root.
	Definer *Node
	// Root is set when the input is supplied from outside the graph.
	Root bool
}

// Roots reports which free names are supplied from outside the graph.
type Roots interface {
	Has(name string) bool
}
