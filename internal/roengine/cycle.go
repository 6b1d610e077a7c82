package roengine

import (
	"context"
	"time"

	"github.com/roby-engine/roby/internal/ports"
	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/internal/roplan"
	"github.com/roby-engine/roby/pkg/roerr"
)

// RunCycle runs the nine phases of spec.md §4.5.1 once: once-blocks and
// due timers, external-events handlers, the propagation fixpoint,
// structure checks, exception propagation, garbage collection, framework
// error bookkeeping, and at_cycle_end callbacks. Sleeping to the cycle
// boundary (phase 9) is the caller's responsibility (see RunForever);
// RunCycle itself returns as soon as phase 8 completes so tests can drive
// individual cycles deterministically.
func (e *Engine) RunCycle(ctx context.Context) error {
	e.mu.Lock()
	e.cycleCount++
	cycle := e.cycleCount
	e.mu.Unlock()

	ctx = ports.WithCorrelationID(ctx, ports.GenerateCorrelationID())
	e.logger.Debug(ctx, "cycle begin", "cycle", cycle)

	for _, fn := range e.atCycleBeginSnapshot() {
		if err := fn(ctx); err != nil {
			e.AddFrameworkError(err)
		}
	}

	if e.Quitting() {
		e.driveQuitGC(ctx)
	}

	pass := roevent.NewPass()

	// Phase 1.
	e.runExecRequests(ctx)
	if err := e.runOnceBlocks(ctx); err != nil {
		e.AddFrameworkError(err)
	}
	if err := e.runDueTimers(ctx, pass); err != nil {
		e.AddFrameworkError(err)
	}

	// Phase 2.
	if err := e.runExternalEventsPhase(ctx, pass); err != nil {
		e.AddFrameworkError(err)
	}

	// Phase 3.
	if err := e.runPropagationPhase(ctx, pass); err != nil {
		e.AddFrameworkError(err)
	}

	// Phase 4.
	violations := e.plan.CheckStructure()

	// Phase 5.
	for _, v := range violations {
		origin := originTaskOf(v)
		for _, fatal := range e.PropagateException(ctx, origin, v.Exception, nil, !v.NonPropagating) {
			if roerr.Fatal(fatal.Cause) {
				e.AddFrameworkError(fatal.Cause)
			}
		}
	}

	// Phase 6.
	if err := e.GarbageCollect(ctx, pass); err != nil {
		e.AddFrameworkError(err)
	}
	if !pass.Empty() {
		if err := drainPass(ctx, e, pass); err != nil {
			e.AddFrameworkError(err)
		}
	}

	// Phase 7 is implicit: every AddFrameworkError call above already
	// recorded its error against this cycle.

	// Phase 8.
	for _, fn := range e.atCycleEndSnapshot() {
		if err := fn(ctx); err != nil {
			e.AddFrameworkError(err)
		}
	}

	e.wakeWaiters()
	e.reapWaitingWork(ctx)

	e.logger.Debug(ctx, "cycle end", "cycle", cycle)
	return nil
}

// RunForever drives RunCycle repeatedly, sleeping to period between
// cycles (phase 9), until ctx is cancelled or the engine finishes
// quitting (Done).
func (e *Engine) RunForever(ctx context.Context, period time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.RunCycle(ctx); err != nil {
			return err
		}
		if e.Done() {
			return nil
		}
		e.clock.Sleep(period)
	}
}

func originTaskOf(v roplan.StructureViolation) string {
	if len(v.AffectedTasks) == 0 {
		return ""
	}
	return v.AffectedTasks[0]
}

func (e *Engine) atCycleBeginSnapshot() []func(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]func(ctx context.Context) error, len(e.atCycleBegin))
	copy(out, e.atCycleBegin)
	return out
}

func (e *Engine) atCycleEndSnapshot() []func(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]func(ctx context.Context) error, len(e.atCycleEnd))
	copy(out, e.atCycleEnd)
	return out
}

func (e *Engine) handlersOfType(t HandlerType) []*PropagationHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*PropagationHandler
	for _, h := range e.handlers {
		if h.Type == t && !h.disabled {
			out = append(out, h)
		}
	}
	return out
}

func (e *Engine) runHandler(ctx context.Context, pass *roevent.Pass, h *PropagationHandler) error {
	if h.disabled {
		return nil
	}
	err := h.Fn(ctx, pass)
	if err == nil {
		return nil
	}
	switch h.OnError {
	case OnErrorIgnore:
		return nil
	case OnErrorDisable:
		h.disabled = true
		return err
	default:
		return err
	}
}

// runExternalEventsPhase runs every non-late ExternalEvents handler in
// registration order, then every late one (spec.md §4.5.1 phase 2).
func (e *Engine) runExternalEventsPhase(ctx context.Context, pass *roevent.Pass) error {
	var nonLate, late []*PropagationHandler
	for _, h := range e.handlersOfType(ExternalEvents) {
		if h.Late {
			late = append(late, h)
		} else {
			nonLate = append(nonLate, h)
		}
	}

	var errs []error
	for _, h := range nonLate {
		if err := e.runHandler(ctx, pass, h); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range late {
		if err := e.runHandler(ctx, pass, h); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrs(errs)
}

// runPropagationPhase drains the propagation fixpoint, re-running every
// Propagation-type handler once per inner round as long as either the
// pass still has pending entries or a handler queued something new
// (spec.md §4.5.1 phase 3).
func (e *Engine) runPropagationPhase(ctx context.Context, pass *roevent.Pass) error {
	var errs []error
	for {
		if err := drainPass(ctx, e, pass); err != nil {
			errs = append(errs, err)
		}

		progressed := false
		for _, h := range e.handlersOfType(Propagation) {
			before := len(pass.Pending())
			if err := e.runHandler(ctx, pass, h); err != nil {
				errs = append(errs, err)
			}
			if len(pass.Pending()) > before {
				progressed = true
			}
		}

		if !progressed && pass.Empty() {
			break
		}
	}
	return joinErrs(errs)
}
