package graph_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/km-arc/go-container/graph"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func mustAdd(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
}

// twoCycle builds a graph where a and b hold references to each other and b
// additionally needs c as a factory argument.
func twoCycle(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, id := range []string{"a", "b", "c"} {
		mustAdd(t, g.AddVertex(id))
	}
	mustAdd(t, g.AddEdge("a", "b", graph.EdgePopulate, false))
	mustAdd(t, g.AddEdge("b", "a", graph.EdgePopulate, false))
	mustAdd(t, g.AddEdge("b", "c", graph.EdgeArgument, false))
	return g
}

// ── Construction ──────────────────────────────────────────────────────────────

func TestAddVertex_Duplicate(t *testing.T) {
	g := graph.New()
	mustAdd(t, g.AddVertex("a"))
	if err := g.AddVertex("a"); err == nil {
		t.Error("duplicate AddVertex succeeded, want error")
	}
}

func TestAddEdge_UnknownVertex(t *testing.T) {
	g := graph.New()
	mustAdd(t, g.AddVertex("a"))

	if err := g.AddEdge("a", "b", graph.EdgePopulate, false); err == nil {
		t.Error("edge to unknown vertex accepted, want error")
	}
	if err := g.AddEdge("b", "a", graph.EdgePopulate, false); err == nil {
		t.Error("edge from unknown vertex accepted, want error")
	}
}

func TestVertices_Sorted(t *testing.T) {
	g := graph.New()
	for _, id := range []string{"c", "a", "b"} {
		mustAdd(t, g.AddVertex(id))
	}
	want := []string{"a", "b", "c"}
	if got := g.Vertices(); !slices.Equal(got, want) {
		t.Errorf("Vertices: got %v, want %v", got, want)
	}
	if !g.Contains("b") || g.Contains("z") {
		t.Error("Contains misreported membership")
	}
}

func TestEdgeKind_String(t *testing.T) {
	tests := []struct {
		kind graph.EdgeKind
		want string
	}{
		{graph.EdgePopulate, "populate"},
		{graph.EdgeArgument, "argument"},
		{graph.EdgeKind(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EdgeKind(%d).String(): got %q, want %q", tt.kind, got, tt.want)
		}
	}
}

// ── Cycle detection ───────────────────────────────────────────────────────────

func TestHasCycle_FindsClosedPath(t *testing.T) {
	g := twoCycle(t)
	cyclic, path := g.HasCycle()
	if !cyclic {
		t.Fatal("HasCycle: got false, want true")
	}
	want := []string{"a", "b", "a"}
	if !slices.Equal(path, want) {
		t.Errorf("path: got %v, want %v", path, want)
	}
}

func TestHasCycle_AcyclicGraph(t *testing.T) {
	g := graph.New()
	for _, id := range []string{"a", "b", "c"} {
		mustAdd(t, g.AddVertex(id))
	}
	mustAdd(t, g.AddEdge("a", "b", graph.EdgeArgument, false))
	mustAdd(t, g.AddEdge("b", "c", graph.EdgeArgument, false))

	if cyclic, path := g.HasCycle(); cyclic {
		t.Errorf("HasCycle: got cycle %v, want none", path)
	}
}

func TestHasCycle_SelfEdge(t *testing.T) {
	g := graph.New()
	mustAdd(t, g.AddVertex("a"))
	mustAdd(t, g.AddEdge("a", "a", graph.EdgePopulate, false))

	cyclic, path := g.HasCycle()
	if !cyclic {
		t.Fatal("HasCycle: got false, want true for self-edge")
	}
	want := []string{"a", "a"}
	if !slices.Equal(path, want) {
		t.Errorf("path: got %v, want %v", path, want)
	}
}

func TestHasCycle_LazyEdgesIgnored(t *testing.T) {
	g := graph.New()
	mustAdd(t, g.AddVertex("a"))
	mustAdd(t, g.AddVertex("b"))
	mustAdd(t, g.AddEdge("a", "b", graph.EdgePopulate, true))
	mustAdd(t, g.AddEdge("b", "a", graph.EdgePopulate, false))

	if cyclic, path := g.HasCycle(); cyclic {
		t.Errorf("HasCycle: got cycle %v, want none once lazy edges are ignored", path)
	}
	if g.HasEdge("a", "b") {
		t.Error("HasEdge reported the lazy edge")
	}
	if !g.HasEdge("b", "a") {
		t.Error("HasEdge missed the non-lazy edge")
	}
	if edges := g.EdgesFrom("a"); len(edges) != 1 || !edges[0].Lazy {
		t.Errorf("EdgesFrom should include lazy edges, got %v", edges)
	}
}

func TestStronglyConnected_ClassifiesClusters(t *testing.T) {
	g := twoCycle(t)
	want := [][]string{{"a", "b"}, {"c"}}
	got := g.StronglyConnected()
	if len(got) != len(want) {
		t.Fatalf("components: got %v, want %v", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("component %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCycleWithin_ReturnsClosedPath(t *testing.T) {
	g := twoCycle(t)
	want := []string{"a", "b", "a"}
	if got := g.CycleWithin([]string{"a", "b"}); !slices.Equal(got, want) {
		t.Errorf("CycleWithin: got %v, want %v", got, want)
	}
	if got := g.CycleWithin([]string{"c"}); got != nil {
		t.Errorf("CycleWithin single acyclic member: got %v, want nil", got)
	}
}

// ── Ordering ──────────────────────────────────────────────────────────────────

func TestTopologicalSort_DependenciesFirst(t *testing.T) {
	g := graph.New()
	for _, id := range []string{"app", "db", "cfg"} {
		mustAdd(t, g.AddVertex(id))
	}
	mustAdd(t, g.AddEdge("app", "db", graph.EdgeArgument, false))
	mustAdd(t, g.AddEdge("db", "cfg", graph.EdgeArgument, false))

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if !(pos["cfg"] < pos["db"] && pos["db"] < pos["app"]) {
		t.Errorf("order %v does not place dependencies first", order)
	}
}

func TestTopologicalSort_CycleError(t *testing.T) {
	g := twoCycle(t)
	_, err := g.TopologicalSort()
	var cycleErr *graph.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("got %v, want CycleError", err)
	}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("message: got %q, want cycle path", err.Error())
	}
}

func TestReverse_InvertsEdges(t *testing.T) {
	g := graph.New()
	for _, id := range []string{"a", "b", "c"} {
		mustAdd(t, g.AddVertex(id))
	}
	mustAdd(t, g.AddEdge("a", "b", graph.EdgeArgument, false))
	mustAdd(t, g.AddEdge("b", "c", graph.EdgePopulate, true))

	r := g.Reverse()
	ba := r.EdgesFrom("b")
	if len(ba) != 1 || ba[0].To != "a" || ba[0].Kind != graph.EdgeArgument || ba[0].Lazy {
		t.Errorf("reversed b: got %v, want argument edge to a", ba)
	}
	cb := r.EdgesFrom("c")
	if len(cb) != 1 || cb[0].To != "b" || cb[0].Kind != graph.EdgePopulate || !cb[0].Lazy {
		t.Errorf("reversed c: got %v, want lazy populate edge to b", cb)
	}
}
