package roconfig

import (
	stderrors "errors"

	"github.com/roby-engine/roby/internal/rograph"
)

// dependencyCycle builds a throwaway dependency graph from def's
// dependency-type relations and reports the task IDs involved if it isn't
// acyclic, reusing rograph.Graph's own topological sort rather than
// re-implementing cycle detection here.
func dependencyCycle(def *PlanDefinition) []string {
	g := rograph.NewGraph[string]("dependency", true)
	for _, task := range def.Tasks {
		g.Insert(task.ID)
	}
	for _, rel := range def.Relations {
		if rel.Type != "dependency" {
			continue
		}
		_ = g.Link(rel.From, rel.To, rel.Payload)
	}

	if _, err := g.TopologicalSort(nil); err != nil {
		var cycleErr *rograph.CycleError
		if stderrors.As(err, &cycleErr) {
			// TopologicalSort doesn't expose the cycle's member set, only
			// that the sort couldn't order every vertex; report every
			// dependency-relation vertex rather than a precise cycle.
			return g.Vertices()
		}
	}
	return nil
}
