package rograph

// viewMode selects how a View derives adjacency from the underlying graph.
type viewMode int

const (
	modeReverse viewMode = iota
	modeUndirected
)

// View is a read-only, always-live projection of a Graph: reverse flips
// edge direction, undirected treats every edge as bidirectional. Graph.
// Reverse() and Graph.Undirected() memoize and return the same *View
// instance on every call (spec.md §4.1: "return cached singleton views
// with identical object identity"), so repeated callers observe both the
// same pointer and the underlying graph's latest mutations.
type View[V comparable] struct {
	g    *Graph[V]
	mode viewMode
}

// Reverse returns the cached reverse view of g.
func (g *Graph[V]) Reverse() *View[V] {
	if g.reverse == nil {
		g.reverse = &View[V]{g: g, mode: modeReverse}
	}
	return g.reverse
}

// Undirected returns the cached undirected view of g.
func (g *Graph[V]) Undirected() *View[V] {
	if g.undirected == nil {
		g.undirected = &View[V]{g: g, mode: modeUndirected}
	}
	return g.undirected
}

func (v *View[V]) next(at V) []edge[V] {
	switch v.mode {
	case modeReverse:
		return v.g.in[at]
	default: // modeUndirected
		combined := make([]edge[V], 0, len(v.g.out[at])+len(v.g.in[at]))
		combined = append(combined, v.g.out[at]...)
		combined = append(combined, v.g.in[at]...)
		return combined
	}
}

// Has reports whether at is a vertex of the underlying graph.
func (v *View[V]) Has(at V) bool { return v.g.Has(at) }

// Linked reports whether src->dst holds in this view's orientation.
func (v *View[V]) Linked(src, dst V) bool {
	for _, e := range v.next(src) {
		if e.dst == dst {
			return true
		}
	}
	return false
}

// EachBFS traverses the view the same way Graph.EachBFS does, but walking
// edges in the view's orientation.
func (v *View[V]) EachBFS(start V, mask EdgeClass, visit VisitFunc[V]) error {
	if mask&^classBFS != 0 {
		return &InvalidEdgeClassError{}
	}
	if !v.Has(start) {
		return nil
	}
	visited := map[V]bool{start: true}
	queue := []V{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range v.next(cur) {
			edgeVal := Edge[V]{Src: cur, Dst: e.dst, Info: e.info}
			firstVisit := !visited[e.dst]
			kind := NON_TREE
			if firstVisit {
				kind = TREE
			}
			if mask.has(kind) {
				visit(edgeVal, kind)
			}
			if firstVisit {
				visited[e.dst] = true
				queue = append(queue, e.dst)
			}
		}
	}
	return nil
}

// Reachable reports whether dst is reachable from src within this view.
func (v *View[V]) Reachable(src, dst V) bool {
	if src == dst {
		return true
	}
	found := false
	_ = v.EachBFS(src, ClassAll&classBFS, func(e Edge[V], kind EdgeKind) bool {
		if e.Dst == dst {
			found = true
		}
		return false
	})
	return found
}

// Ancestors returns every vertex reachable from start by following this
// view's edges; on a Reverse() view these are the vertices that can reach
// start in the underlying graph (used by exception propagation to walk a
// strong dependency relation's Reverse() view upward from an origin task).
func (v *View[V]) Ancestors(start V) []V {
	var out []V
	_ = v.EachBFS(start, classBFS, func(e Edge[V], kind EdgeKind) bool {
		if kind == TREE {
			out = append(out, e.Dst)
		}
		return false
	})
	return out
}
