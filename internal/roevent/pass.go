package roevent

// Pass is one propagation pass (spec.md §4.5.1 phase 3): the set of
// generators queued to be dispatched before the fixpoint is considered
// drained. A generator is visited at most once as "already-queued" per
// pass; re-queuing it merges the new context into the existing entry
// instead of creating a second one.
type Pass struct {
	order   []*Generator
	entries map[*Generator]*PendingEntry
	step    uint64
}

// PendingEntry is the merged record for one generator within a pass.
// CallContexts accumulates contexts queued through a signal (the
// generator's command will be invoked once with all of them merged);
// EmitContexts accumulates contexts queued through a forward or a direct
// Emit call (the generator will be emitted once with all of them merged).
type PendingEntry struct {
	Generator    *Generator
	StepID       uint64
	CallContexts []any
	EmitContexts []any
}

// NewPass creates an empty propagation pass.
func NewPass() *Pass {
	return &Pass{entries: make(map[*Generator]*PendingEntry)}
}

func (p *Pass) nextStep() uint64 {
	p.step++
	return p.step
}

func (p *Pass) entryFor(g *Generator) *PendingEntry {
	e, ok := p.entries[g]
	if !ok {
		e = &PendingEntry{Generator: g, StepID: p.nextStep()}
		p.entries[g] = e
		p.order = append(p.order, g)
	}
	return e
}

// QueueCall queues g to have its command invoked, merging ctx into any
// existing not-yet-dispatched entry for g.
func (p *Pass) QueueCall(g *Generator, ctx any) {
	e := p.entryFor(g)
	e.CallContexts = append(e.CallContexts, ctx)
}

// QueueEmit queues g to be emitted directly, merging ctx into any
// existing not-yet-dispatched entry for g.
func (p *Pass) QueueEmit(g *Generator, ctx any) {
	e := p.entryFor(g)
	e.EmitContexts = append(e.EmitContexts, ctx)
}

// Pending returns the generators with a not-yet-dispatched entry, in the
// order they were first queued this pass.
func (p *Pass) Pending() []*Generator {
	out := make([]*Generator, len(p.order))
	copy(out, p.order)
	return out
}

// Peek returns the pending entry for g without removing it.
func (p *Pass) Peek(g *Generator) (*PendingEntry, bool) {
	e, ok := p.entries[g]
	return e, ok
}

// Take removes and returns the pending entry for g, clearing its
// already-queued flag so a later re-queue within the same pass starts a
// fresh entry.
func (p *Pass) Take(g *Generator) (*PendingEntry, bool) {
	e, ok := p.entries[g]
	if !ok {
		return nil, false
	}
	delete(p.entries, g)
	for i, v := range p.order {
		if v == g {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return e, true
}

// Empty reports whether the pass has no pending entries left.
func (p *Pass) Empty() bool {
	return len(p.order) == 0
}

// Drain dispatches every pending generator in FIFO order until the pass
// is empty, without applying any precedence-based reordering (that layer
// belongs to the execution engine, which owns the task/event precedence
// relation). It is primarily useful for tests and for composite
// generators exercised outside a full engine cycle.
func (p *Pass) Drain(ctx Context) error {
	var errs []error
	for !p.Empty() {
		next := p.order[0]
		entry, _ := p.Take(next)
		if err := next.Dispatch(ctx, p, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func mergeContexts(ctxs []any) any {
	if len(ctxs) == 0 {
		return nil
	}
	if len(ctxs) == 1 {
		return ctxs[0]
	}
	merged := make([]any, len(ctxs))
	copy(merged, ctxs)
	return merged
}
