package roengine

import (
	"context"
	stderrors "errors"

	"github.com/roby-engine/roby/internal/rograph"
	"github.com/roby-engine/roby/internal/roplan"
	"github.com/roby-engine/roby/pkg/roerr"
)

// ExecutionException is a raw exception wrapped with the origin and trace
// it has accumulated while being propagated up the dependency graph
// (spec.md §4.5.3). Propagated is false for an exception that must be
// handled at its origin task only and never walks the ancestor graph
// (step 8).
type ExecutionException struct {
	Cause      error
	Origin     string
	Trace      []string
	Propagated bool
}

// PropagateException walks cause upward from originID through the strong
// dependency relation's ancestors (spec.md §4.5.3): task handlers run in
// reverse declaration order at every ancestor, forking at tasks with
// multiple parents and merging traces back together where branches
// reconverge. restrictedParents, if non-nil, limits the walk to that set;
// entries not actually reachable from origin are dropped with a warning.
// When propagated is false, the walk is skipped entirely: only originID's
// own handler cascade runs (step 8). It returns every exception that
// reached the top of its branch with no handler anywhere (task, plan, or
// engine level) — these are fatal.
func (e *Engine) PropagateException(ctx context.Context, originID string, cause error, restrictedParents []string, propagated bool) []ExecutionException {
	dep := e.plan.Relation(roplan.DependencyRelation)

	if !propagated {
		origin := ExecutionException{Cause: cause, Origin: originID, Trace: []string{originID}, Propagated: false}
		subgraph := map[string]bool{originID: true}
		if f := e.processNode(ctx, dep, subgraph, originID, origin, map[string][]ExecutionException{}); f != nil {
			return []ExecutionException{*f}
		}
		return nil
	}

	subgraph := e.propagationSubgraph(ctx, dep, originID, restrictedParents)

	remaining := make(map[string]int, len(subgraph))
	for node := range subgraph {
		count := 0
		for _, edge := range dep.Out(node) {
			if subgraph[edge.Dst] {
				count++
			}
		}
		remaining[node] = count
	}

	incoming := make(map[string][]ExecutionException, len(subgraph))
	incoming[originID] = []ExecutionException{{Cause: cause, Origin: originID, Trace: []string{originID}, Propagated: true}}

	queue := []string{originID}
	visited := make(map[string]bool, len(subgraph))
	var fatal []ExecutionException

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node] {
			continue
		}
		visited[node] = true

		if contributions := incoming[node]; len(contributions) > 0 {
			merged := mergeExceptions(node, contributions)
			if f := e.processNode(ctx, dep, subgraph, node, merged, incoming); f != nil {
				fatal = append(fatal, *f)
			}
		}
		e.bubbleUp(dep, subgraph, remaining, node, &queue)
	}

	return fatal
}

func (e *Engine) propagationSubgraph(ctx context.Context, dep *rograph.Graph[string], originID string, restrictedParents []string) map[string]bool {
	ancestors := dep.Reverse().Ancestors(originID)
	if restrictedParents != nil {
		reachable := make(map[string]bool, len(ancestors))
		for _, a := range ancestors {
			reachable[a] = true
		}
		var filtered []string
		for _, id := range restrictedParents {
			if !reachable[id] {
				e.logger.Warn(ctx, "restricted parent is not an ancestor of exception origin", "task_id", id, "origin", originID)
				continue
			}
			filtered = append(filtered, id)
		}
		ancestors = filtered
	}

	subgraph := make(map[string]bool, len(ancestors)+1)
	subgraph[originID] = true
	for _, a := range ancestors {
		subgraph[a] = true
	}
	return subgraph
}

// processNode runs node's own exception handler cascade (task, then
// mission/permanent classification, then plan- and engine-level
// handlers). If nothing consumes the exception, it forwards to node's
// in-subgraph parents (queuing a ChildFailedError-wrapped copy for each)
// and returns nil; if node has no parents left to forward to, it returns
// the unhandled exception as fatal.
func (e *Engine) processNode(ctx context.Context, dep *rograph.Graph[string], subgraph map[string]bool, node string, merged ExecutionException, incoming map[string][]ExecutionException) *ExecutionException {
	task, hasTask := e.plan.Task(node)
	if hasTask {
		handled, raised := task.HandleException(ctx, merged.Cause)
		if raised != nil {
			return &ExecutionException{Cause: raised, Origin: node, Trace: merged.Trace, Propagated: merged.Propagated}
		}
		if handled {
			return nil
		}
	}

	cause := merged.Cause
	if hasTask && e.plan.IsPermanent(node) {
		// Non-fatal by policy: reported once, does not propagate further.
		e.AddFrameworkError(roerr.NewPermanentTaskError(roerr.Origin{TaskID: node}, cause))
		return nil
	}
	if hasTask && e.plan.IsMission(node) {
		cause = roerr.NewMissionFailedError(roerr.Origin{TaskID: node}, cause)
	}

	if handled, err := e.plan.HandleException(ctx, cause); err != nil {
		return &ExecutionException{Cause: err, Origin: node, Trace: merged.Trace, Propagated: merged.Propagated}
	} else if handled {
		return nil
	}

	if handled, err := e.handleAtEngineLevel(ctx, cause); err != nil {
		return &ExecutionException{Cause: err, Origin: node, Trace: merged.Trace, Propagated: merged.Propagated}
	} else if handled {
		return nil
	}

	merged.Cause = cause
	parents := parentsOf(dep, subgraph, node)
	if len(parents) == 0 {
		return &merged
	}
	for _, parent := range parents {
		trace := append(append([]string{}, merged.Trace...), parent)
		incoming[parent] = append(incoming[parent], ExecutionException{
			Cause:      roerr.NewChildFailedError(roerr.Origin{TaskID: parent}, node, merged.Cause),
			Origin:     node,
			Trace:      trace,
			Propagated: true,
		})
	}
	return nil
}

func (e *Engine) bubbleUp(dep *rograph.Graph[string], subgraph map[string]bool, remaining map[string]int, node string, queue *[]string) {
	for _, parent := range parentsOf(dep, subgraph, node) {
		remaining[parent]--
		if remaining[parent] == 0 {
			*queue = append(*queue, parent)
		}
	}
}

func parentsOf(dep *rograph.Graph[string], subgraph map[string]bool, node string) []string {
	var parents []string
	for _, edge := range dep.In(node) {
		if subgraph[edge.Src] {
			parents = append(parents, edge.Src)
		}
	}
	return parents
}

func mergeExceptions(node string, contributions []ExecutionException) ExecutionException {
	causes := make([]error, 0, len(contributions))
	seen := make(map[string]bool, len(contributions)*2)
	var trace []string
	for _, c := range contributions {
		causes = append(causes, c.Cause)
		for _, t := range c.Trace {
			if !seen[t] {
				seen[t] = true
				trace = append(trace, t)
			}
		}
	}
	if !seen[node] {
		trace = append(trace, node)
	}
	var cause error
	if len(causes) == 1 {
		cause = causes[0]
	} else {
		cause = stderrors.Join(causes...)
	}
	return ExecutionException{Cause: cause, Origin: node, Trace: trace, Propagated: true}
}

func (e *Engine) handleAtEngineLevel(ctx context.Context, cause error) (bool, error) {
	e.mu.Lock()
	handlers := make([]PlanWideExceptionHandler, len(e.exceptionHandlers))
	copy(handlers, e.exceptionHandlers)
	e.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if !h.Matches(cause) {
			continue
		}
		handled, err := h.Handle(ctx, cause)
		if err != nil {
			return false, err
		}
		if handled {
			return true, nil
		}
	}
	return false, nil
}
