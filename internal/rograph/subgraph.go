package rograph

// GeneratedSubgraph returns the subgraph reached by directed traversal from
// seeds. Only the outgoing edges of frontier vertices are copied. The
// frontier is closed under outgoing edges, so every such edge already lies
// inside it and strict gives the same result as non-strict; edges entering
// the frontier from a vertex outside it are not copied in either mode.
func (g *Graph[V]) GeneratedSubgraph(seeds []V, strict bool) *Graph[V] {
	frontier := make(map[V]bool)
	for _, s := range seeds {
		if !g.Has(s) {
			continue
		}
		frontier[s] = true
		_ = g.EachBFS(s, classBFS, func(e Edge[V], kind EdgeKind) bool {
			frontier[e.Dst] = true
			return false
		})
	}

	out := NewGraph[V](g.Name+"#subgraph", g.Strong)
	for v := range frontier {
		out.Insert(v)
	}
	for v := range frontier {
		for _, e := range g.out[v] {
			if strict && !frontier[e.dst] {
				continue
			}
			out.SetEdge(v, e.dst, e.info)
		}
	}
	return out
}

// Neighborhood returns every edge within depth hops of start, in either
// direction (spec.md §4.1 defines it over "edges within a given hop
// count" without restricting to outgoing-only).
func (g *Graph[V]) Neighborhood(start V, depth int) []Edge[V] {
	if depth <= 0 || !g.Has(start) {
		return nil
	}

	type frame struct {
		v     V
		level int
	}
	visited := map[V]bool{start: true}
	queue := []frame{{start, 0}}
	var edges []Edge[V]
	seenEdge := make(map[[2]V]bool)

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.level >= depth {
			continue
		}
		all := append(append([]edge[V]{}, g.out[f.v]...), g.in[f.v]...)
		for i, e := range all {
			var src, dst V
			var info any
			if i < len(g.out[f.v]) {
				src, dst, info = f.v, e.dst, e.info
			} else {
				src, dst, info = e.dst, f.v, e.info
			}
			key := [2]V{src, dst}
			if !seenEdge[key] {
				seenEdge[key] = true
				edges = append(edges, Edge[V]{Src: src, Dst: dst, Info: info})
			}
			other := dst
			if other == f.v {
				other = src
			}
			if !visited[other] {
				visited[other] = true
				queue = append(queue, frame{other, f.level + 1})
			}
		}
	}
	return edges
}
