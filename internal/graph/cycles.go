package graph

import "slices"

// StronglyConnected returns the components of g that form cycles (two or more
// nodes), each sorted, ordered by their smallest id. Tarjan без рекурсии.
func StronglyConnected(g Graph) [][]NodeID {
	n := len(g.Edges)
	const unvisited = -1
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = unvisited
	}
	var (
		stack  []NodeID
		out    [][]NodeID
		next   int
		frames []frame
	)

	for root := range n {
		if !g.Present[root] || index[root] != unvisited {
			continue
		}
		frames = append(frames, frame{node: nodeID(root)})
		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := int(f.node)
			if f.edge == 0 && index[v] == unvisited {
				index[v], low[v] = next, next
				next++
				stack = append(stack, f.node)
				onStack[v] = true
			}
			if f.edge < len(g.Edges[v]) {
				w := int(g.Edges[v][f.edge])
				f.edge++
				if !g.Present[w] {
					continue
				}
				if index[w] == unvisited {
					frames = append(frames, frame{node: nodeID(w)})
				} else if onStack[w] {
					low[v] = min(low[v], index[w])
				}
				continue
			}
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := int(frames[len(frames)-1].node)
				low[parent] = min(low[parent], low[v])
			}
			if low[v] != index[v] {
				continue
			}
			var comp []NodeID
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[int(top)] = false
				comp = append(comp, top)
				if int(top) == v {
					break
				}
			}
			if len(comp) > 1 {
				slices.Sort(comp)
				out = append(out, comp)
			}
		}
	}
	slices.SortFunc(out, func(a, b []NodeID) int { return int(a[0]) - int(b[0]) })
	return out
}

type frame struct {
	node NodeID
	edge int
}

// CyclePath returns one dependency loop through the smallest member of scc,
// closed by repeating its first node: each node depends on the next one.
func CyclePath(g Graph, scc []NodeID) []NodeID {
	if len(scc) == 0 {
		return nil
	}
	in := make(map[NodeID]bool, len(scc))
	for _, id := range scc {
		in[id] = true
	}
	start := scc[0]
	path := []NodeID{start}
	seen := map[NodeID]int{start: 0}
	cur := start
	for {
		var step NodeID
		found := false
		for _, d := range g.Deps[int(cur)] {
			if in[d] {
				step, found = d, true
				break
			}
		}
		if !found {
			return append(path, start)
		}
		if at, ok := seen[step]; ok {
			// замкнулись не в start: оставляем только сам цикл
			loop := append([]NodeID(nil), path[at:]...)
			return append(loop, step)
		}
		seen[step] = len(path)
		path = append(path, step)
		cur = step
	}
}
