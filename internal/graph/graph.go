// Package graph orders stages by their upstream edges.
package graph

import (
	"container/heap"
	"sort"
)

// Node is one stage and every upstream stage it reads, required or optional.
type Node struct {
	ID   string
	Deps []string
}

// Graph is an indexed, validated view over a node list. Node order is the
// canonical order used to break ties.
type Graph struct {
	ids      []string
	index    map[string]int
	outgoing [][]int // upstream -> dependents, ascending
	incoming [][]int // dependent -> upstream, declaration order
	indeg    []int
}

// New indexes nodes and checks that every edge points at a known node.
// It does not check for cycles; Sort does.
func New(nodes []Node) (*Graph, error) {
	g := &Graph{
		ids:      make([]string, len(nodes)),
		index:    make(map[string]int, len(nodes)),
		outgoing: make([][]int, len(nodes)),
		incoming: make([][]int, len(nodes)),
		indeg:    make([]int, len(nodes)),
	}
	for i, n := range nodes {
		if n.ID == "" {
			return nil, invalidf("node %d has an empty id", i+1)
		}
		if _, dup := g.index[n.ID]; dup {
			return nil, invalidf("duplicate stage %q", n.ID)
		}
		g.ids[i] = n.ID
		g.index[n.ID] = i
	}
	for i, n := range nodes {
		seen := make(map[int]bool, len(n.Deps))
		for _, d := range n.Deps {
			j, ok := g.index[d]
			if !ok {
				return nil, invalidf("stage %q depends on unknown stage %q", n.ID, d)
			}
			if seen[j] {
				continue
			}
			seen[j] = true
			g.incoming[i] = append(g.incoming[i], j)
			g.outgoing[j] = insertSorted(g.outgoing[j], i)
			g.indeg[i]++
		}
	}
	return g, nil
}

func insertSorted(s []int, v int) []int {
	i := len(s)
	for i > 0 && s[i-1] > v {
		i--
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// Sort builds the graph and returns a topological order of its ids.
func Sort(nodes []Node) ([]string, error) {
	g, err := New(nodes)
	if err != nil {
		return nil, err
	}
	return g.Sort()
}

// Sort returns a deterministic topological order, or an *Error wrapping
// ErrCycleDetected with one cycle path.
func (g *Graph) Sort() ([]string, error) {
	order := g.topoOrder()
	if len(order) != len(g.ids) {
		return nil, cycleError(g.findCycle())
	}
	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = g.ids[idx]
	}
	return out, nil
}

// Dependents returns the direct dependents of id in canonical order.
func (g *Graph) Dependents(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.outgoing[i]))
	for _, j := range g.outgoing[i] {
		out = append(out, g.ids[j])
	}
	return out
}

// Downstream returns every transitive dependent of id, excluding id, in
// canonical order.
func (g *Graph) Downstream(id string) []string {
	start, ok := g.index[id]
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.ids))
	queue := append([]int(nil), g.outgoing[start]...)
	var found []int
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		found = append(found, n)
		queue = append(queue, g.outgoing[n]...)
	}
	sort.Ints(found)
	ids := make([]string, 0, len(found))
	for _, idx := range found {
		ids = append(ids, g.ids[idx])
	}
	return ids
}

// Upstream returns the direct upstream ids of id in declaration order.
func (g *Graph) Upstream(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.incoming[i]))
	for _, j := range g.incoming[i] {
		out = append(out, g.ids[j])
	}
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with a min-heap ready queue so ties resolve
// by declaration order.
func (g *Graph) topoOrder() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle walks upstream edges depth-first and returns the first back edge
// as a closed path in dependency order, e.g. [a b c a] where b reads a.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.ids))
	parent := make([]int, len(g.ids))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.ids {
		if color[i] == white && dfs(i) {
			break
		}
	}

	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, g.ids[cycle[i]])
	}
	return out
}
