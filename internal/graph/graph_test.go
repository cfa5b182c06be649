package graph

import (
	"strings"
	"testing"
)

func batchesToNames(idx Index, batches [][]NodeID) [][]string {
	out := make([][]string, len(batches))
	for i, batch := range batches {
		out[i] = idx.Names(batch)
	}
	return out
}

func TestBuildIndexIncludesDeps(t *testing.T) {
	nodes := []Node{
		{Name: "Shop.Order", Deps: []string{"Shop.Customer", "Geo.Region"}},
		{Name: "Shop.Customer"},
	}
	idx := BuildIndex(nodes)

	wantNames := []string{"Geo.Region", "Shop.Customer", "Shop.Order"}
	if len(idx.IDToName) != len(wantNames) {
		t.Fatalf("unexpected node count: %d", len(idx.IDToName))
	}
	for i, want := range wantNames {
		if got := idx.IDToName[i]; got != want {
			t.Fatalf("idx.IDToName[%d] = %q, want %q", i, got, want)
		}
		if id, ok := idx.NameToID[want]; !ok || int(id) != i {
			t.Fatalf("idx.NameToID[%q] = %v, want %d", want, id, i)
		}
	}
}

func TestBuildGraphIgnoresAbsentAndSelf(t *testing.T) {
	nodes := []Node{
		{Name: "A", Deps: []string{"B", "B", "A", "Missing"}},
		{Name: "B"},
	}
	idx := BuildIndex(nodes)
	g := BuildGraph(idx, nodes)

	a, b := idx.NameToID["A"], idx.NameToID["B"]
	if len(g.Edges[int(b)]) != 1 || g.Edges[int(b)][0] != a {
		t.Fatalf("B edges = %v, want [A]", g.Edges[int(b)])
	}
	if g.Indeg[int(a)] != 1 || g.Indeg[int(b)] != 0 {
		t.Fatalf("indeg = %v", g.Indeg)
	}
	if g.Present[idx.NameToID["Missing"]] {
		t.Fatalf("dependency-only name must not be present")
	}
}

func TestToposortKahnBatches(t *testing.T) {
	nodes := []Node{
		{Name: "b", Deps: []string{"c"}},
		{Name: "a"},
		{Name: "c"},
		{Name: "d", Deps: []string{"b", "a"}},
	}
	idx := BuildIndex(nodes)
	topo := ToposortKahn(BuildGraph(idx, nodes))
	if topo.Cyclic {
		t.Fatalf("expected acyclic graph")
	}

	if got := strings.Join(idx.Names(topo.Order), ","); got != "a,c,b,d" {
		t.Fatalf("order = %s, want a,c,b,d", got)
	}
	batches := batchesToNames(idx, topo.Batches)
	wantBatches := [][]string{{"a", "c"}, {"b"}, {"d"}}
	if len(batches) != len(wantBatches) {
		t.Fatalf("batches len = %d, want %d", len(batches), len(wantBatches))
	}
	for i := range wantBatches {
		if strings.Join(batches[i], ",") != strings.Join(wantBatches[i], ",") {
			t.Fatalf("batch[%d] = %v, want %v", i, batches[i], wantBatches[i])
		}
	}
}

func TestCyclesAndDownstream(t *testing.T) {
	nodes := []Node{
		{Name: "a", Deps: []string{"b"}},
		{Name: "b", Deps: []string{"c"}},
		{Name: "c", Deps: []string{"a"}},
		{Name: "d", Deps: []string{"c"}},
		{Name: "e"},
	}
	idx := BuildIndex(nodes)
	g := BuildGraph(idx, nodes)

	topo := ToposortKahn(g)
	if !topo.Cyclic || strings.Join(idx.Names(topo.Cycles), ",") != "a,b,c,d" {
		t.Fatalf("left over = %v", idx.Names(topo.Cycles))
	}

	sccs := StronglyConnected(g)
	if len(sccs) != 1 || strings.Join(idx.Names(sccs[0]), ",") != "a,b,c" {
		t.Fatalf("sccs = %v", sccs)
	}
	path := idx.Names(CyclePath(g, sccs[0]))
	if strings.Join(path, " -> ") != "a -> b -> c -> a" {
		t.Fatalf("cycle path = %v", path)
	}
}

func TestStronglyConnectedTwoLoops(t *testing.T) {
	nodes := []Node{
		{Name: "x", Deps: []string{"y"}},
		{Name: "y", Deps: []string{"x"}},
		{Name: "p", Deps: []string{"q"}},
		{Name: "q", Deps: []string{"p"}},
		{Name: "z", Deps: []string{"z"}},
	}
	idx := BuildIndex(nodes)
	sccs := StronglyConnected(BuildGraph(idx, nodes))
	if len(sccs) != 2 {
		t.Fatalf("sccs = %d, want 2", len(sccs))
	}
	if strings.Join(idx.Names(sccs[0]), ",") != "p,q" || strings.Join(idx.Names(sccs[1]), ",") != "x,y" {
		t.Fatalf("sccs = %v, %v", idx.Names(sccs[0]), idx.Names(sccs[1]))
	}
}

func TestComponentsFollowOrder(t *testing.T) {
	nodes := []Node{
		{Name: "a"},
		{Name: "b", Deps: []string{"a"}},
		{Name: "c"},
		{Name: "d", Deps: []string{"c"}},
		{Name: "e", Deps: []string{"b"}},
	}
	idx := BuildIndex(nodes)
	g := BuildGraph(idx, nodes)
	topo := ToposortKahn(g)
	comps := Components(g, topo.Order)
	if len(comps) != 2 {
		t.Fatalf("components = %d, want 2", len(comps))
	}
	if got := strings.Join(idx.Names(comps[0]), ","); got != "a,b,e" {
		t.Fatalf("component 0 = %s", got)
	}
	if got := strings.Join(idx.Names(comps[1]), ","); got != "c,d" {
		t.Fatalf("component 1 = %s", got)
	}
}
