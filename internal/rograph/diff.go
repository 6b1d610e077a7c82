package rograph

// Difference compares the edges incident to vertices (a subset of g's
// vertices) against the corresponding edges of other, translating g's
// vertices into other's address space via mapping. It returns edges that
// exist only in g, edges that exist only in other, and edges that exist in
// both but carry a different payload.
//
// This underlies Transaction diffing: g is the plan-side relation, other is
// the transaction-side relation, and mapping resolves a plan object to its
// transaction proxy (or the identity, for objects with no proxy yet).
func (g *Graph[V]) Difference(other *Graph[V], vertices []V, mapping func(V) V) (onlyInSelf, onlyInOther, changed []Edge[V]) {
	matched := make(map[[2]V]bool)

	for _, v := range vertices {
		mv := mapping(v)
		for _, e := range g.out[v] {
			md := mapping(e.dst)
			otherInfo, ok := other.Info(mv, md)
			key := [2]V{mv, md}
			matched[key] = true
			if !ok {
				onlyInSelf = append(onlyInSelf, Edge[V]{Src: v, Dst: e.dst, Info: e.info})
				continue
			}
			if !payloadEqual(e.info, otherInfo) {
				changed = append(changed, Edge[V]{Src: v, Dst: e.dst, Info: e.info})
			}
		}
	}

	for _, v := range vertices {
		mv := mapping(v)
		if !other.Has(mv) {
			continue
		}
		for _, e := range other.out[mv] {
			key := [2]V{mv, e.dst}
			if matched[key] {
				continue
			}
			onlyInOther = append(onlyInOther, Edge[V]{Src: mv, Dst: e.dst, Info: e.info})
		}
	}

	return onlyInSelf, onlyInOther, changed
}

// payloadEqual compares two edge payloads with ==, which works for the
// plain values (ids, strings, small structs) relations typically carry.
// Payloads of non-comparable dynamic type (slices, maps, funcs) are always
// reported as different rather than panicking.
func payloadEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
