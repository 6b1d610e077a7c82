package roengine

import (
	"context"

	"github.com/roby-engine/roby/internal/roevent"
)

// selectNext picks the next generator to dispatch from pass, honoring the
// ordering rule of spec.md §4.5.2:
//
//  1. If a not-yet-visited (still pending) generator has a precedence edge
//     into a candidate, the candidate is skipped for now.
//  2. Among the remaining eligible candidates, prefer one with a signalling
//     presence (non-empty CallContexts) over one with only forwarded
//     contexts, tie-broken by the highest (most recent) StepID.
//
// It returns nil if every pending generator is blocked by precedence (a
// precedence cycle among currently-pending generators; the caller should
// treat this as drained to avoid looping forever).
func selectNext(e *Engine, pass *roevent.Pass) *roevent.PendingEntry {
	pending := pass.Pending()
	if len(pending) == 0 {
		return nil
	}

	pendingNames := make(map[string]bool, len(pending))
	for _, g := range pending {
		pendingNames[g.Name()] = true
	}

	var best *roevent.PendingEntry
	var bestGen *roevent.Generator
	for _, g := range pending {
		if e.blockedByPrecedence(g, pendingNames) {
			continue
		}
		entry, ok := pass.Peek(g)
		if !ok {
			continue
		}
		if best == nil || higherPriority(entry, g, best, bestGen) {
			best = entry
			bestGen = g
		}
	}
	return best
}

// blockedByPrecedence reports whether some other still-pending generator
// must be visited before g.
func (e *Engine) blockedByPrecedence(g *roevent.Generator, pendingNames map[string]bool) bool {
	if !e.precedence.Has(g.Name()) {
		return false
	}
	for _, edge := range e.precedence.In(g.Name()) {
		if edge.Src == g.Name() {
			continue
		}
		if pendingNames[edge.Src] {
			return true
		}
	}
	return false
}

// higherPriority reports whether candidate should be dispatched before
// current: signalled beats forwarded-only, then highest StepID wins.
func higherPriority(candidate *roevent.PendingEntry, candidateGen *roevent.Generator, current *roevent.PendingEntry, currentGen *roevent.Generator) bool {
	candidateSignalled := len(candidate.CallContexts) > 0
	currentSignalled := len(current.CallContexts) > 0
	if candidateSignalled != currentSignalled {
		return candidateSignalled
	}
	return candidate.StepID > current.StepID
}

// drainPass runs the propagation fixpoint (spec.md §4.5.1 phase 3): repeatedly
// select the next eligible generator and dispatch it until the pass is
// empty or every remaining generator is deadlocked by precedence.
func drainPass(ctx context.Context, e *Engine, pass *roevent.Pass) error {
	var errs []error
	for !pass.Empty() {
		entry := selectNext(e, pass)
		if entry == nil {
			break
		}
		taken, ok := pass.Take(entry.Generator)
		if !ok {
			break
		}
		if err := taken.Generator.Dispatch(ctx, pass, taken); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrs(errs)
}
