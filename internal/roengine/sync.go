package roengine

import (
	"context"

	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/pkg/roerr"
)

// waiter is a parked WaitUntil call, resolved by wakeWaiters once its
// generator emits or becomes unreachable.
type waiter struct {
	gen    *roevent.Generator
	result chan error
}

// WaitUntil blocks the calling goroutine until gen emits or becomes
// unreachable, returning the unreachability reason in the latter case
// (spec.md §4.5.6, §5: "wait_until(event) { … } runs the block inside a
// cycle and blocks the caller until the named event has emitted or
// become unreachable"). The engine must still be driven by RunCycle from
// its own goroutine; this only parks the caller.
func (e *Engine) WaitUntil(ctx context.Context, gen *roevent.Generator) error {
	if gen.Emitted() {
		return nil
	}
	if gen.Unreachable() {
		return roerr.NewUnreachableEvent(roerr.Origin{EventID: gen.Name()}, unreachableReason(gen))
	}

	result := make(chan error, 1)
	w := &waiter{gen: gen, result: result}

	e.mu.Lock()
	e.waiters = append(e.waiters, w)
	e.mu.Unlock()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unreachableReason(gen *roevent.Generator) string {
	if r := gen.UnreachableReason(); r != nil {
		return r.Error()
	}
	return "unreachable"
}

// wakeWaiters resolves every parked WaitUntil caller whose generator has
// now emitted or become unreachable. Called at the end of each cycle.
func (e *Engine) wakeWaiters() {
	e.mu.Lock()
	var remaining []*waiter
	for _, w := range e.waiters {
		switch {
		case w.gen.Emitted():
			w.result <- nil
		case w.gen.Unreachable():
			w.result <- roerr.NewUnreachableEvent(roerr.Origin{EventID: w.gen.Name()}, unreachableReason(w.gen))
		default:
			remaining = append(remaining, w)
		}
	}
	e.waiters = remaining
	e.mu.Unlock()
}

type execRequest struct {
	fn     func(ctx context.Context) (any, error)
	result chan execResult
}

type execResult struct {
	value any
	err   error
}

// Execute runs fn on the engine thread and blocks the calling goroutine
// until it completes, returning fn's result or its error (spec.md §5:
// "execute(&block) runs a block on the engine from another thread and
// blocks the caller until completion"). Requests are picked up at the
// start of the next cycle, alongside once-blocks.
func (e *Engine) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	req := execRequest{fn: fn, result: make(chan execResult, 1)}
	select {
	case e.execRequests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runExecRequests drains and runs every queued Execute request inline on
// the engine thread (spec.md §4.5.1 phase 1).
func (e *Engine) runExecRequests(ctx context.Context) {
	for {
		select {
		case req := <-e.execRequests:
			value, err := req.fn(ctx)
			req.result <- execResult{value: value, err: err}
		default:
			return
		}
	}
}
