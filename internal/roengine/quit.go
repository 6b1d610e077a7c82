package roengine

import "context"

// Quit sets the quitting flag (spec.md §4.5.6): subsequent cycles drive
// every live task toward termination, finalize everything, then the
// caller should stop invoking RunCycle (see Done). A second call within
// the dead-zone window upgrades to a forced quit.
func (e *Engine) Quit(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	if e.quitting && now.Sub(e.quitRequestedAt) < e.deadZone {
		e.forcedExit = true
		e.logger.Warn(ctx, "second quit request within dead zone, upgrading to force quit")
		return
	}
	e.quitting = true
	e.quitRequestedAt = now
}

// ForceQuit sets both quitting and forcedExit: Done reports true right
// away, without waiting for tasks to be finalized, so RunForever stops
// after the current cycle. GC itself does not check forcedExit and runs
// as in any other cycle.
func (e *Engine) ForceQuit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quitting = true
	e.forcedExit = true
}

// Quitting reports whether Quit or ForceQuit has been called.
func (e *Engine) Quitting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quitting
}

// ForcedExit reports whether ForceQuit (or a second Quit within the dead
// zone) has been called.
func (e *Engine) ForcedExit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.forcedExit
}

// Reset clears the quitting/forced-exit flags (spec.md §6: "reset").
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quitting = false
	e.forcedExit = false
}

// Done reports whether the engine has finished quitting: quitting was
// requested and every task has been finalized.
func (e *Engine) Done() bool {
	e.mu.Lock()
	quitting := e.quitting
	forced := e.forcedExit
	e.mu.Unlock()
	if !quitting {
		return false
	}
	if forced {
		return true
	}
	return len(e.plan.Tasks()) == 0
}

// driveQuitGC unmarks every mission/permanent task so GC can reclaim the
// whole plan, and warns about the remaining dead-zone time. Called once
// per cycle while quitting, at the start of the cycle (spec.md §4.5.6).
// It only unmarks: GC still runs in phase 6, after propagation, so its
// stop calls are not moved ahead of other event processing.
func (e *Engine) driveQuitGC(ctx context.Context) {
	e.mu.Lock()
	forced := e.forcedExit
	remaining := e.deadZone - e.clock.Now().Sub(e.quitRequestedAt)
	e.mu.Unlock()

	for _, t := range e.plan.Tasks() {
		e.plan.UnmarkMission(t.ID)
		e.plan.UnmarkPermanent(t.ID)
	}

	if !forced && remaining > 0 {
		e.logger.Warn(ctx, "engine is quitting, send a second quit to force exit", "remaining", remaining)
	}
}
