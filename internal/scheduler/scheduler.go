package scheduler

import (
	"container/heap"
	"sync"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/dag"
)

// Scheduler computes evaluation orders over an immutable graph.
type Scheduler struct {
	graph *dag.Graph

	once  sync.Once
	order []*dag.Node
	pos   map[cell.ID]int
}

// New creates a scheduler over g.
func New(g *dag.Graph) *Scheduler {
	return &Scheduler{graph: g}
}

// Order returns every node in topological order. It is computed once; later
// calls return a copy of the same order.
func (s *Scheduler) Order() []*dag.Node {
	s.once.Do(func() {
		nodes := s.graph.Nodes()
		s.order = topo(nodes)
		s.pos = make(map[cell.ID]int, len(s.order))
		for i, n := range s.order {
			s.pos[n.ID()] = i
		}
	})
	out := make([]*dag.Node, len(s.order))
	copy(out, s.order)
	return out
}

// Position returns the index of id in Order, or -1.
func (s *Scheduler) Position(id cell.ID) int {
	s.Order()
	if p, ok := s.pos[id]; ok {
		return p
	}
	return -1
}

// Downstream returns the given cells plus every cell transitively reading
// them, in evaluation order. Unknown ids are ignored.
func (s *Scheduler) Downstream(ids ...cell.ID) []*dag.Node {
	return s.closure(ids, (*dag.Node).Dependents)
}

// Upstream returns the given cells plus every cell they transitively read,
// in evaluation order. Unknown ids are ignored.
func (s *Scheduler) Upstream(ids ...cell.ID) []*dag.Node {
	return s.closure(ids, (*dag.Node).Deps)
}

func (s *Scheduler) closure(ids []cell.ID, next func(*dag.Node) []*dag.Node) []*dag.Node {
	seen := make(map[cell.ID]bool)
	var subset []*dag.Node
	var queue []*dag.Node
	for _, id := range ids {
		if n, ok := s.graph.Node(id); ok && !seen[id] {
			seen[id] = true
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		subset = append(subset, n)
		for _, m := range next(n) {
			if !seen[m.ID()] {
				seen[m.ID()] = true
				queue = append(queue, m)
			}
		}
	}
	return topo(subset)
}

// topo orders nodes with Kahn's algorithm, counting only edges inside the
// given set and always releasing the lowest-ranked ready node first.
func topo(nodes []*dag.Node) []*dag.Node {
	in := make(map[cell.ID]bool, len(nodes))
	for _, n := range nodes {
		in[n.ID()] = true
	}

	indegree := make(map[cell.ID]int, len(nodes))
	ready := &rankHeap{}
	for _, n := range nodes {
		for _, d := range n.Deps() {
			if in[d.ID()] {
				indegree[n.ID()]++
			}
		}
		if indegree[n.ID()] == 0 {
			heap.Push(ready, n)
		}
	}

	out := make([]*dag.Node, 0, len(nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(*dag.Node)
		out = append(out, n)
		for _, d := range n.Dependents() {
			if !in[d.ID()] {
				continue
			}
			indegree[d.ID()]--
			if indegree[d.ID()] == 0 {
				heap.Push(ready, d)
			}
		}
	}
	return out
}

// rankHeap is a min-heap of nodes keyed by rank.
type rankHeap []*dag.Node

func (h rankHeap) Len() int           { return len(h) }
func (h rankHeap) Less(i, j int) bool { return h[i].Rank < h[j].Rank }
func (h rankHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rankHeap) Push(x any)        { *h = append(*h, x.(*dag.Node)) }
func (h *rankHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
