package roplan

import (
	"context"

	"github.com/roby-engine/roby/internal/roevent"
)

// StructureViolation is one candidate exception raised by a structure
// check, together with the tasks it implicates. NonPropagating marks an
// exception that must be handled at its origin task only (spec.md §4.5.3
// step 8: "propagated? == false" bypasses ancestor traversal entirely).
type StructureViolation struct {
	Exception      error
	AffectedTasks  []string
	NonPropagating bool
}

// StructureCheck is a plan-wide predicate run every cycle after event
// propagation (spec.md §4.4).
type StructureCheck func(p *Plan) []StructureViolation

// AddStructureCheck appends check to the ordered list run each cycle.
func (p *Plan) AddStructureCheck(check StructureCheck) {
	p.structureChecks = append(p.structureChecks, check)
}

// CheckStructure runs every registered structure check and concatenates
// their violations, in registration order.
func (p *Plan) CheckStructure() []StructureViolation {
	var all []StructureViolation
	for _, check := range p.structureChecks {
		all = append(all, check(p)...)
	}
	return all
}

// PlanExceptionHandler pairs a matcher with a plan-level handler,
// consulted when no task in the propagation chain handles an exception.
type PlanExceptionHandler struct {
	Matches func(err error) bool
	Handle  func(ctx context.Context, execErr error) (handled bool, raised error)
}

// OnException registers a plan-level exception handler (spec.md §4.4).
func (p *Plan) OnException(matches func(err error) bool, handle func(ctx context.Context, execErr error) (handled bool, raised error)) {
	p.exceptionHandlers = append(p.exceptionHandlers, PlanExceptionHandler{matches, handle})
}

// HandleException tries every plan-level handler in reverse declaration
// order, the same semantics a task applies to its own handlers.
func (p *Plan) HandleException(ctx context.Context, execErr error) (handled bool, raised error) {
	for i := len(p.exceptionHandlers) - 1; i >= 0; i-- {
		h := p.exceptionHandlers[i]
		if !h.Matches(execErr) {
			continue
		}
		ok, err := h.Handle(ctx, execErr)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// AddRepair registers repairTaskID as covering triggerEvent (the full
// generator name, e.g. "failed:t1").
func (p *Plan) AddRepair(triggerEvent, repairTaskID string) {
	p.repairs[triggerEvent] = repairTaskID
}

// RemoveRepair drops the repair registered for triggerEvent.
func (p *Plan) RemoveRepair(triggerEvent string) {
	delete(p.repairs, triggerEvent)
}

// RepairsFor returns the repairs covering eventName or any
// terminal-equivalent event of its task (spec.md §4.4, §12): repairing
// the failed event also covers stop, because failed always forwards
// into it. The map is keyed by each repair's own registered trigger
// event name.
func (p *Plan) RepairsFor(eventName string) map[string]string {
	result := make(map[string]string)
	for _, equivalent := range p.terminalEquivalents(eventName) {
		if repairTaskID, ok := p.repairs[equivalent]; ok {
			result[equivalent] = repairTaskID
		}
	}
	return result
}

// terminalEquivalents returns eventName together with every event on the
// same task that forwards (directly or transitively) into it — the
// "most general matching event" resolution from spec.md §12 falls out of
// querying by the general event (e.g. stop) and finding the specific
// ones (success, failed) that feed it.
func (p *Plan) terminalEquivalents(eventName string) []string {
	taskID := taskIDFromEventName(eventName)
	task, ok := p.tasks[taskID]
	if !ok {
		return []string{eventName}
	}

	byFullName := make(map[string]*roevent.Generator)
	for _, g := range task.Events() {
		byFullName[g.Name()] = g
	}
	if _, ok := byFullName[eventName]; !ok {
		return []string{eventName}
	}

	equivalents := []string{eventName}
	for fullName, g := range byFullName {
		if fullName == eventName {
			continue
		}
		if forwardsInto(g, eventName, byFullName, nil) {
			equivalents = append(equivalents, fullName)
		}
	}
	return equivalents
}

// forwardsInto reports whether from forwards, directly or transitively,
// into the generator named targetFullName.
func forwardsInto(from *roevent.Generator, targetFullName string, byFullName map[string]*roevent.Generator, visited map[string]bool) bool {
	if visited == nil {
		visited = make(map[string]bool)
	}
	if visited[from.Name()] {
		return false
	}
	visited[from.Name()] = true
	for _, fwd := range from.ForwardTargets() {
		if fwd.Name() == targetFullName {
			return true
		}
		if next, ok := byFullName[fwd.Name()]; ok && forwardsInto(next, targetFullName, byFullName, visited) {
			return true
		}
	}
	return false
}
