package graph

// Components splits the present nodes into weakly connected components.
// Members of a component follow order; components are ordered by their
// first member's position in order.
func Components(g Graph, order []NodeID) [][]NodeID {
	parent := make([]int, len(g.Edges))
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for from, tos := range g.Edges {
		if !g.Present[from] {
			continue
		}
		for _, to := range tos {
			if !g.Present[int(to)] {
				continue
			}
			a, b := find(from), find(int(to))
			if a != b {
				parent[max(a, b)] = min(a, b)
			}
		}
	}

	byRoot := make(map[int]int)
	var out [][]NodeID
	for _, id := range order {
		if !g.Present[int(id)] {
			continue
		}
		root := find(int(id))
		i, ok := byRoot[root]
		if !ok {
			i = len(out)
			byRoot[root] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], id)
	}
	return out
}
