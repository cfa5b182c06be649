// Package graph orders types by dependency: Kahn batches, cycle detection and
// the split into independent components.
package graph

import (
	"slices"
)

// Graph edges run from a dependency to its dependents, so a topological order
// lists dependencies first.
type Graph struct {
	Edges   [][]NodeID // Edges[dep] = []dependent
	Deps    [][]NodeID // Deps[node] = []dep (только присутствующие)
	Indeg   []int      // входящие степени для Kahn (учитывает только присутствующие узлы)
	Present []bool     // узел реально участвует (а не только упоминается как зависимость)
}

// Node is one named vertex with the names it depends on.
type Node struct {
	Name string
	Deps []string
}

// BuildGraph wires nodes over idx. Dependencies on names that are not nodes
// are ignored, as are self references and duplicates.
func BuildGraph(idx Index, nodes []Node) Graph {
	count := len(idx.IDToName)
	g := Graph{
		Edges:   make([][]NodeID, count),
		Deps:    make([][]NodeID, count),
		Indeg:   make([]int, count),
		Present: make([]bool, count),
	}
	for _, n := range nodes {
		if id, ok := idx.NameToID[n.Name]; ok {
			g.Present[int(id)] = true
		}
	}

	for _, n := range nodes {
		to, ok := idx.NameToID[n.Name]
		if !ok {
			continue
		}
		seen := make(map[NodeID]struct{}, len(n.Deps))
		for _, dep := range n.Deps {
			from, ok := idx.NameToID[dep]
			if !ok || from == to || !g.Present[int(from)] {
				continue
			}
			if _, dup := seen[from]; dup {
				continue
			}
			seen[from] = struct{}{}
			g.Edges[int(from)] = append(g.Edges[int(from)], to)
			g.Deps[int(to)] = append(g.Deps[int(to)], from)
			g.Indeg[int(to)]++
		}
	}
	for i := range g.Edges {
		if len(g.Edges[i]) > 1 {
			slices.Sort(g.Edges[i])
		}
		if len(g.Deps[i]) > 1 {
			slices.Sort(g.Deps[i])
		}
	}
	return g
}
