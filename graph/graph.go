// Package graph models the dependency structure of a set of components:
// which ids feed which, how each edge is consumed, and where the cycles are.
//
// Unlike a DAG builder it accepts cycles; reference-holding cycles are a
// supported wiring, and the point of this package is to find and classify
// them, not to forbid them. Lazy edges defer their resolution past
// construction, so the structural queries (HasCycle, StronglyConnected,
// TopologicalSort, CycleWithin, HasEdge) ignore them.
package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// ── Edges ─────────────────────────────────────────────────────────────────────

// EdgeKind distinguishes how a dependency is consumed by its dependent.
type EdgeKind uint8

const (
	// EdgePopulate edges are attached after the dependent has been
	// instantiated. Inside a cycle they are the edges staged exposure can
	// satisfy.
	EdgePopulate EdgeKind = iota

	// EdgeArgument edges are consumed by the dependent's factory and must be
	// resolved before it runs.
	EdgeArgument
)

func (k EdgeKind) String() string {
	switch k {
	case EdgePopulate:
		return "populate"
	case EdgeArgument:
		return "argument"
	default:
		return "unknown"
	}
}

// Edge is one outgoing dependency of a vertex.
type Edge struct {
	To   string
	Kind EdgeKind
	Lazy bool
}

// Vertex is one component in the graph. Out preserves declaration order.
type Vertex struct {
	ID  string
	Out []Edge
}

// ── Graph ─────────────────────────────────────────────────────────────────────

// Graph is a directed dependency graph over component ids.
type Graph struct {
	vertices map[string]*Vertex
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{vertices: make(map[string]*Vertex)}
}

// AddVertex adds a component id to the graph.
func (g *Graph) AddVertex(id string) error {
	if _, exists := g.vertices[id]; exists {
		return fmt.Errorf("graph: vertex %q already exists", id)
	}
	g.vertices[id] = &Vertex{ID: id}
	return nil
}

// AddEdge records that from depends on to. Both vertices must exist.
// Self-edges and cycle-forming edges are accepted.
func (g *Graph) AddEdge(from, to string, kind EdgeKind, lazy bool) error {
	fromV, ok := g.vertices[from]
	if !ok {
		return fmt.Errorf("graph: vertex %q does not exist", from)
	}
	if _, ok := g.vertices[to]; !ok {
		return fmt.Errorf("graph: vertex %q does not exist", to)
	}
	fromV.Out = append(fromV.Out, Edge{To: to, Kind: kind, Lazy: lazy})
	return nil
}

// Contains reports whether id is a vertex of the graph.
func (g *Graph) Contains(id string) (ok bool) {
	_, ok = g.vertices[id]
	return
}

// Vertices returns all ids in sorted order, for deterministic traversal.
func (g *Graph) Vertices() []string {
	out := make([]string, 0, len(g.vertices))
	for id := range g.vertices {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// EdgesFrom returns the outgoing edges of id in declaration order, lazy edges
// included.
func (g *Graph) EdgesFrom(id string) []Edge {
	v, ok := g.vertices[id]
	if !ok {
		return nil
	}
	out := make([]Edge, len(v.Out))
	copy(out, v.Out)
	return out
}

// HasEdge reports a non-lazy edge from one id to another.
func (g *Graph) HasEdge(from, to string) bool {
	v, ok := g.vertices[from]
	if !ok {
		return false
	}
	for _, e := range v.Out {
		if !e.Lazy && e.To == to {
			return true
		}
	}
	return false
}

// ── Cycles ────────────────────────────────────────────────────────────────────

// CycleError reports a dependency cycle with its path.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "graph: dependency cycle: " + formatCycle(e.Cycle)
}

func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

// HasCycle reports whether the non-lazy subgraph contains a cycle, returning
// one closed path when it does: ["a", "b", "a"].
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	var path []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, e := range g.vertices[id].Out {
			if e.Lazy {
				continue
			}
			if !visited[e.To] {
				if dfs(e.To) {
					return true
				}
			} else if recStack[e.To] {
				path = append(path, e.To)
				return true
			}
		}

		recStack[id] = false
		path = path[:len(path)-1]
		return false
	}

	for _, id := range g.Vertices() {
		if visited[id] {
			continue
		}
		path = path[:0]
		if dfs(id) {
			// Trim the lead-in so the path starts at the repeated id.
			start := 0
			for i, v := range path[:len(path)-1] {
				if v == path[len(path)-1] {
					start = i
					break
				}
			}
			return true, path[start:]
		}
	}
	return false, nil
}

// StronglyConnected returns the strongly connected components of the
// non-lazy subgraph. Members are sorted, components ordered by first member.
// A component of more than one id, or one id with a self-edge, is a cycle
// cluster.
func (g *Graph) StronglyConnected() [][]string {
	index := 0
	indices := make(map[string]int)
	low := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var out [][]string

	var connect func(v string)
	connect = func(v string) {
		indices[v] = index
		low[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.vertices[v].Out {
			if e.Lazy {
				continue
			}
			w := e.To
			if _, seen := indices[w]; !seen {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], indices[w])
			}
		}

		if low[v] == indices[v] {
			var members []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				members = append(members, w)
				if w == v {
					break
				}
			}
			slices.Sort(members)
			out = append(out, members)
		}
	}

	for _, v := range g.Vertices() {
		if _, seen := indices[v]; !seen {
			connect(v)
		}
	}
	slices.SortFunc(out, func(a, b []string) int { return cmp.Compare(a[0], b[0]) })
	return out
}

// CycleWithin returns a closed cycle path through the given members, which
// must form a cycle cluster as returned by StronglyConnected. Nil if no cycle
// exists among them.
func (g *Graph) CycleWithin(members []string) []string {
	if len(members) == 0 {
		return nil
	}
	in := make(map[string]bool, len(members))
	for _, m := range members {
		in[m] = true
	}
	start := slices.Min(members)

	visited := map[string]bool{start: true}
	var path []string
	var dfs func(v string) bool
	dfs = func(v string) bool {
		path = append(path, v)
		for _, e := range g.vertices[v].Out {
			if e.Lazy || !in[e.To] {
				continue
			}
			if e.To == start {
				path = append(path, start)
				return true
			}
			if !visited[e.To] {
				visited[e.To] = true
				if dfs(e.To) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if dfs(start) {
		return path
	}
	return nil
}

// ── Ordering ──────────────────────────────────────────────────────────────────

// TopologicalSort returns the ids with every dependency ahead of its
// dependents, considering non-lazy edges. Fails with a CycleError when the
// non-lazy subgraph is cyclic. The order is deterministic.
func (g *Graph) TopologicalSort() ([]string, error) {
	if cyclic, cycle := g.HasCycle(); cyclic {
		return nil, &CycleError{Cycle: cycle}
	}

	visited := make(map[string]bool)
	var order []string

	var dfs func(id string)
	dfs = func(id string) {
		visited[id] = true

		targets := make([]string, 0, len(g.vertices[id].Out))
		for _, e := range g.vertices[id].Out {
			if !e.Lazy {
				targets = append(targets, e.To)
			}
		}
		slices.Sort(targets)

		for _, t := range targets {
			if !visited[t] {
				dfs(t)
			}
		}
		order = append(order, id)
	}

	for _, id := range g.Vertices() {
		if !visited[id] {
			dfs(id)
		}
	}
	return order, nil
}

// Reverse returns the graph with every edge inverted, answering "who depends
// on me" instead of "whom do I depend on". Edge kinds and laziness carry
// over.
func (g *Graph) Reverse() *Graph {
	reverse := New()
	for id := range g.vertices {
		_ = reverse.AddVertex(id)
	}
	for id, v := range g.vertices {
		for _, e := range v.Out {
			_ = reverse.AddEdge(e.To, id, e.Kind, e.Lazy)
		}
	}
	return reverse
}
