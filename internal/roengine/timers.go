package roengine

import (
	"context"

	"github.com/roby-engine/roby/internal/roevent"
)

// runOnceBlocks runs and clears every block scheduled via Once (spec.md
// §4.5.1 phase 1).
func (e *Engine) runOnceBlocks(ctx context.Context) error {
	e.mu.Lock()
	blocks := e.onceBlocks
	e.onceBlocks = nil
	e.mu.Unlock()

	var errs []error
	for _, fn := range blocks {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrs(errs)
}

// runDueTimers runs every `every`/`delayed` block due at the engine
// clock's current time, and queues the command invocation for any
// delayed signal whose activation time has arrived, dropping those whose
// target has since become unreachable (spec.md §4.5.5).
func (e *Engine) runDueTimers(ctx context.Context, pass *roevent.Pass) error {
	now := e.clock.Now()

	e.mu.Lock()
	var dueEvery []*everyBlock
	for _, b := range e.everyBlocks {
		if !now.Before(b.nextAt) {
			dueEvery = append(dueEvery, b)
			b.nextAt = b.nextAt.Add(b.period)
		}
	}

	var dueDelayed, remainingDelayed []*delayedBlock
	for _, b := range e.delayedBlocks {
		if now.Before(b.at) {
			remainingDelayed = append(remainingDelayed, b)
		} else {
			dueDelayed = append(dueDelayed, b)
		}
	}
	e.delayedBlocks = remainingDelayed

	var dueSignals, remainingSignals []*delayedSignal
	for _, s := range e.delaySignals {
		if s.target.Unreachable() {
			continue
		}
		if now.Before(s.dueAt) {
			remainingSignals = append(remainingSignals, s)
		} else {
			dueSignals = append(dueSignals, s)
		}
	}
	e.delaySignals = remainingSignals
	e.mu.Unlock()

	var errs []error
	for _, b := range dueEvery {
		if err := b.fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, b := range dueDelayed {
		if err := b.fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range dueSignals {
		pass.QueueCall(s.target, s.ec)
	}

	return joinErrs(errs)
}
