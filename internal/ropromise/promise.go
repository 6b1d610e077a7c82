// Package ropromise implements the promise (spec.md §4.6): a pipeline of
// body -> success steps -> optional error handlers, each step opting into
// running on the engine thread or a bounded pool, threading each step's
// return value into the next and reporting an unhandled rejection as a
// framework error.
package ropromise

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// State is a promise's lifecycle state (spec.md §4.6).
type State int

const (
	Unscheduled State = iota
	Pending
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Unscheduled:
		return "unscheduled"
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Complete reports whether s is a terminal state.
func (s State) Complete() bool { return s == Fulfilled || s == Rejected }

// Location is where a pipeline step runs (spec.md §5: "a separate thread
// pool for promise body/on_success/on_error steps that opt in").
type Location int

const (
	InEngine Location = iota
	InPool
)

// Pool bounds concurrent pool-thread promise steps across every promise
// sharing it.
type Pool struct {
	group *errgroup.Group
}

// NewPool creates a pool allowing at most limit concurrent steps (0 or
// negative means unbounded).
func NewPool(limit int) *Pool {
	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &Pool{group: g}
}

func (p *Pool) submit(fn func()) {
	p.group.Go(func() error {
		fn()
		return nil
	})
}

// FrameworkErrorSink lets a Promise report an unhandled rejection without
// this package depending on the engine (spec.md §4.6: "a rejected promise
// without an error handler in the chain contributes a framework error").
type FrameworkErrorSink interface {
	AddFrameworkError(err error)
}

type successStep struct {
	fn func(ctx context.Context, value any) (any, error)
	in Location
}

type errorHandler struct {
	fn func(ctx context.Context, reason error)
	in Location
}

type stepResult struct {
	value any
	err   error
}

// Promise is one body -> success-steps -> error-handlers pipeline.
type Promise struct {
	mu sync.Mutex

	body   func(ctx context.Context) (any, error)
	bodyIn Location

	successSteps  []successStep
	errorHandlers []errorHandler

	pool    *Pool
	errSink FrameworkErrorSink

	state  State
	value  any
	reason error
	cursor int

	results chan stepResult
}

// New creates an unscheduled promise running body, reporting an unhandled
// rejection to errSink (may be nil), dispatching InPool steps through
// pool (may be nil, in which case InPool steps run inline).
func New(pool *Pool, errSink FrameworkErrorSink, body func(ctx context.Context) (any, error)) *Promise {
	return &Promise{
		body:    body,
		pool:    pool,
		errSink: errSink,
		cursor:  -1,
		results: make(chan stepResult, 1),
	}
}

// InEngineBody marks the body step to run on the engine thread (the
// default); InPoolBody marks it to run on the pool.
func (p *Promise) InEngineBody() *Promise { p.bodyIn = InEngine; return p }
func (p *Promise) InPoolBody() *Promise   { p.bodyIn = InPool; return p }

// OnSuccess appends a pipeline step receiving the previous step's value.
func (p *Promise) OnSuccess(in Location, fn func(ctx context.Context, value any) (any, error)) *Promise {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successSteps = append(p.successSteps, successStep{fn: fn, in: in})
	return p
}

// Then is OnSuccess running on the engine thread (spec.md §4.6: "then").
func (p *Promise) Then(fn func(ctx context.Context, value any) (any, error)) *Promise {
	return p.OnSuccess(InEngine, fn)
}

// Before prepends a step ahead of every step already registered (spec.md
// §4.6: "before (prepends)").
func (p *Promise) Before(in Location, fn func(ctx context.Context, value any) (any, error)) *Promise {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successSteps = append([]successStep{{fn: fn, in: in}}, p.successSteps...)
	return p
}

// OnError registers an error handler invoked with the rejection reason.
// Every registered handler is invoked independently, once, as an
// unordered broadcast (spec.md §9 resolution, SPEC_FULL.md §12: a
// dependency-chain pipeline model doesn't fit "each handler sees the
// original reason", so the handler list is a fan-out set, not a chain).
func (p *Promise) OnError(in Location, fn func(ctx context.Context, reason error)) *Promise {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorHandlers = append(p.errorHandlers, errorHandler{fn: fn, in: in})
	return p
}

// Execute schedules the body, transitioning the promise from unscheduled
// to pending. It is a no-op if already scheduled.
func (p *Promise) Execute(ctx context.Context) *Promise {
	p.mu.Lock()
	if p.state != Unscheduled {
		p.mu.Unlock()
		return p
	}
	p.state = Pending
	body := p.body
	bodyIn := p.bodyIn
	p.mu.Unlock()

	p.dispatch(bodyIn, func() (any, error) {
		if body == nil {
			return nil, nil
		}
		return body(ctx)
	})
	return p
}

func (p *Promise) dispatch(in Location, fn func() (any, error)) {
	run := func() {
		value, err := fn()
		p.results <- stepResult{value: value, err: err}
	}
	if in == InPool && p.pool != nil {
		p.pool.submit(run)
		return
	}
	run()
}

// Poll drains every step result available without blocking and advances
// the pipeline accordingly. It is meant to be called once per engine
// cycle (spec.md §4.6: engine.waiting_work polling).
func (p *Promise) Poll(ctx context.Context) {
	for {
		select {
		case res := <-p.results:
			p.advance(ctx, res)
		default:
			return
		}
	}
}

func (p *Promise) advance(ctx context.Context, res stepResult) {
	if res.err != nil {
		p.reject(ctx, res.err)
		return
	}

	p.mu.Lock()
	p.cursor++
	if p.cursor >= len(p.successSteps) {
		p.state = Fulfilled
		p.value = res.value
		p.mu.Unlock()
		return
	}
	step := p.successSteps[p.cursor]
	p.mu.Unlock()

	value := res.value
	p.dispatch(step.in, func() (any, error) {
		return step.fn(ctx, value)
	})
}

func (p *Promise) reject(ctx context.Context, err error) {
	p.mu.Lock()
	p.state = Rejected
	p.reason = err
	handlers := make([]errorHandler, len(p.errorHandlers))
	copy(handlers, p.errorHandlers)
	sink := p.errSink
	p.mu.Unlock()

	if len(handlers) == 0 {
		if sink != nil {
			sink.AddFrameworkError(err)
		}
		return
	}

	for _, h := range handlers {
		handler := h
		if handler.in == InPool && p.pool != nil {
			p.pool.submit(func() { handler.fn(ctx, err) })
			continue
		}
		handler.fn(ctx, err)
	}
}

// State returns the promise's current lifecycle state.
func (p *Promise) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Complete reports whether the promise has fulfilled or rejected (spec.md
// §4.6: `complete?`), satisfying the engine's WaitingWork interface.
func (p *Promise) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Complete()
}

// Value returns nil if the promise rejected, or the last step's return
// value if it fulfilled (spec.md §4.6: `value`).
func (p *Promise) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Rejected {
		return nil
	}
	return p.value
}

// Reason returns the rejection cause, or nil if the promise has not
// rejected (spec.md §4.6: `value!` raises this; Go callers check it
// explicitly instead of panicking).
func (p *Promise) Reason() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}
