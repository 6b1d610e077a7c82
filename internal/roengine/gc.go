package roengine

import (
	"context"
	"fmt"

	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/internal/rotask"
)

// GarbageCollect runs one GC pass (spec.md §4.5.4) over every collectable
// task: pending/failed-to-start/terminal tasks are finalized immediately;
// running tasks with a controllable stop event are asked to stop within
// the current pass; running tasks that cannot be stopped are quarantined
// with a warning; a quarantined task is finalized once it reaches a
// terminal state. Free events that are neither permanent nor reachable
// from a live task's signal/forward graph are dropped as well.
//
// A forced stop can keep failing pass after pass (the same uncontrollable
// command erroring every time); spec.md §4.5.3 step 9 and §7 inhibit
// repeats of the same error class for the same task after the first is
// reported, so one misbehaving task cannot flood the framework-error set.
func (e *Engine) GarbageCollect(ctx context.Context, pass *roevent.Pass) error {
	var errs []error
	for _, t := range e.plan.Tasks() {
		if !e.plan.Collectable(t.ID) {
			continue
		}

		state := t.State()
		if state == rotask.Pending || state.Terminal() {
			e.plan.RemoveTask(t.ID)
			e.clearGCInhibition(t.ID)
			continue
		}

		if t.Quarantined() {
			// Already asked to quarantine; wait for it to terminate on
			// its own, nothing more to do this pass.
			continue
		}

		if t.StopEvent().Controllable() {
			if err := t.StopEvent().Call(ctx, pass, nil); err != nil {
				if e.reportGCError(t.ID, err) {
					errs = append(errs, err)
				}
			}
			continue
		}

		t.Quarantine()
		e.logger.Warn(ctx, "quarantining uninterruptible task selected for collection", "task_id", t.ID)
	}

	e.collectFreeEvents()
	return joinErrs(errs)
}

// reportGCError reports whether err should be added to this pass's error
// set for task id's forced stop: the first error of a given class during
// one task's forced-stop sequence is reported, matching errors of the
// same class on later passes are inhibited (spec.md §4.5.3 step 9).
func (e *Engine) reportGCError(id string, err error) bool {
	class := fmt.Sprintf("%T", err)

	e.mu.Lock()
	defer e.mu.Unlock()
	seen := e.gcInhibited[id]
	if seen == nil {
		seen = make(map[string]bool)
		e.gcInhibited[id] = seen
	}
	if seen[class] {
		return false
	}
	seen[class] = true
	return true
}

// clearGCInhibition drops id's inhibited-class set once it is finalized,
// so a later task reusing the same ID starts with a clean slate.
func (e *Engine) clearGCInhibition(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.gcInhibited, id)
}

// collectFreeEvents drops every non-permanent free event whose generator
// is not reachable, via signal/forward edges, from any live (non-
// collectable) task's own events.
func (e *Engine) collectFreeEvents() {
	live := make(map[*roevent.Generator]bool)
	for _, t := range e.plan.Tasks() {
		if e.plan.Collectable(t.ID) {
			continue
		}
		for _, g := range t.Events() {
			live[g] = true
		}
	}

	reachable := make(map[*roevent.Generator]bool, len(live))
	var visit func(g *roevent.Generator)
	visit = func(g *roevent.Generator) {
		if reachable[g] {
			return
		}
		reachable[g] = true
		for _, target := range g.SignalTargets() {
			visit(target)
		}
		for _, target := range g.ForwardTargets() {
			visit(target)
		}
	}
	for g := range live {
		visit(g)
	}

	for _, fe := range e.plan.FreeEvents() {
		if fe.Permanent {
			continue
		}
		if fe.Generator != nil && reachable[fe.Generator] {
			continue
		}
		e.plan.RemoveFreeEvent(fe.Name)
	}
}
