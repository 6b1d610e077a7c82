// Package roengine implements the execution engine (spec.md §4.5): the
// cycle loop that drives event propagation, exception propagation,
// garbage collection, timers, and the quit protocol over a plan.
package roengine

import (
	"context"
	"sync"
	"time"

	"github.com/roby-engine/roby/internal/ports"
	"github.com/roby-engine/roby/internal/rograph"
	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/internal/roplan"
)

// OnErrorPolicy controls what a propagation handler error does to the
// handler's future participation (spec.md §4.5.1 phase 2).
type OnErrorPolicy int

const (
	// OnErrorRaise surfaces the handler's error as a framework error every
	// time it fails; the handler keeps running in later cycles.
	OnErrorRaise OnErrorPolicy = iota
	// OnErrorDisable drops the handler permanently after its first error.
	OnErrorDisable
	// OnErrorIgnore swallows the handler's errors silently.
	OnErrorIgnore
)

// HandlerType distinguishes the two propagation handler phases (spec.md
// §4.5.1 phase 2 vs phase 3).
type HandlerType int

const (
	// ExternalEvents handlers run once per cycle, before the propagation
	// fixpoint.
	ExternalEvents HandlerType = iota
	// Propagation handlers rerun on every inner round of the fixpoint.
	Propagation
)

// PropagationHandler is a registered callback driven by the cycle loop.
type PropagationHandler struct {
	Type     HandlerType
	Late     bool
	OnError  OnErrorPolicy
	Fn       func(ctx context.Context, pass *roevent.Pass) error
	disabled bool
}

type everyBlock struct {
	period time.Duration
	nextAt time.Time
	fn     func(ctx context.Context) error
}

type delayedBlock struct {
	at time.Time
	fn func(ctx context.Context) error
}

type delayedSignal struct {
	source, target *roevent.Generator
	dueAt          time.Time
	fired          bool
	ec             any
}

// WaitingWork is anything the engine must keep polling until complete
// (spec.md §4.6: a promise remains in engine.waiting_work while pending).
type WaitingWork interface {
	Complete() bool
	Poll(ctx context.Context)
}

// FrameworkError pairs an error with the cycle it surfaced in.
type FrameworkError struct {
	Cycle uint64
	Err   error
}

// Engine is the cycle-driving execution engine over one plan.
type Engine struct {
	mu sync.Mutex

	plan   *roplan.Plan
	clock  ports.Clock
	logger ports.Logger

	// precedence is an event-name relation: an edge a->b means a must be
	// visited before b within a propagation pass (spec.md §4.5.2).
	precedence *rograph.Graph[string]

	cycleCount uint64

	onceBlocks    []func(ctx context.Context) error
	everyBlocks   []*everyBlock
	delayedBlocks []*delayedBlock
	delaySignals  []*delayedSignal

	atCycleBegin []func(ctx context.Context) error
	atCycleEnd   []func(ctx context.Context) error

	handlers []*PropagationHandler

	exceptionHandlers []PlanWideExceptionHandler

	frameworkErrors []FrameworkError

	waitingWork map[WaitingWork]struct{}

	// gcInhibited tracks, per task ID being forcibly collected, the set of
	// error type names already reported for it (spec.md §4.5.3 step 9).
	gcInhibited map[string]map[string]bool

	quitting        bool
	forcedExit      bool
	quitRequestedAt time.Time
	deadZone        time.Duration

	waiters []*waiter

	execRequests chan execRequest
}

// PlanWideExceptionHandler mirrors roplan.PlanExceptionHandler; the engine
// keeps its own copy so add_framework_error-style callers can register
// directly on the engine (spec.md §6: "Execution Engine API ... on_exception").
type PlanWideExceptionHandler struct {
	Matches func(err error) bool
	Handle  func(ctx context.Context, execErr error) (handled bool, raised error)
}

// Options configures a new Engine.
type Options struct {
	Clock    ports.Clock
	Logger   ports.Logger
	DeadZone time.Duration // default 10s, spec.md §4.5.6
}

// New creates an engine driving plan.
func New(plan *roplan.Plan, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = ports.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	deadZone := opts.DeadZone
	if deadZone == 0 {
		deadZone = 10 * time.Second
	}
	return &Engine{
		plan:         plan,
		clock:        clock,
		logger:       logger,
		deadZone:     deadZone,
		precedence:   rograph.NewGraph[string]("precedence", true),
		waitingWork:  make(map[WaitingWork]struct{}),
		gcInhibited:  make(map[string]map[string]bool),
		execRequests: make(chan execRequest, 16),
	}
}

// Precedence returns the event-name precedence relation consulted by the
// ordering rule (spec.md §4.5.2): an edge a->b means a generator named a,
// if pending, must be dispatched before a generator named b.
func (e *Engine) Precedence() *rograph.Graph[string] { return e.precedence }

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...interface{})  {}
func (noopLogger) Error(ctx context.Context, msg string, fields ...interface{}) {}
func (noopLogger) With(fields ...interface{}) ports.Logger                     { return noopLogger{} }

// Plan returns the plan this engine drives.
func (e *Engine) Plan() *roplan.Plan { return e.plan }

// CycleCount returns the number of completed cycles.
func (e *Engine) CycleCount() uint64 { return e.cycleCount }

// Once schedules fn to run once, in the next cycle's phase 1.
func (e *Engine) Once(fn func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onceBlocks = append(e.onceBlocks, fn)
}

// Every schedules fn to run every period, ticks aligned to cycle
// boundaries using the engine clock (spec.md §4.5.5).
func (e *Engine) Every(period time.Duration, fn func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.everyBlocks = append(e.everyBlocks, &everyBlock{
		period: period,
		nextAt: e.clock.Now().Add(period),
		fn:     fn,
	})
}

// Delayed schedules fn to run once after delay has elapsed in engine time.
func (e *Engine) Delayed(delay time.Duration, fn func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delayedBlocks = append(e.delayedBlocks, &delayedBlock{
		at: e.clock.Now().Add(delay),
		fn: fn,
	})
}

// SignalWithDelay registers a delayed signal edge (spec.md §4.5.5): when
// source emits, target's command is queued for the first cycle at or
// after delay has elapsed, unless target has since become unreachable.
func (e *Engine) SignalWithDelay(source, target *roevent.Generator, delay time.Duration) {
	source.On(func(ctx roevent.Context, pass *roevent.Pass, ec any) error {
		e.mu.Lock()
		e.delaySignals = append(e.delaySignals, &delayedSignal{
			source: source,
			target: target,
			dueAt:  e.clock.Now().Add(delay),
			ec:     ec,
		})
		e.mu.Unlock()
		return nil
	})
}

// AtCycleBegin registers a callback run at the very start of every cycle.
func (e *Engine) AtCycleBegin(fn func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.atCycleBegin = append(e.atCycleBegin, fn)
}

// AtCycleEnd registers a callback run after propagation/exceptions/GC,
// before the cycle sleeps (spec.md §4.5.1 phase 8).
func (e *Engine) AtCycleEnd(fn func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.atCycleEnd = append(e.atCycleEnd, fn)
}

// AddPropagationHandler registers h, run according to its Type/Late/OnError
// fields every cycle (spec.md §4.5.1 phases 2-3, §6).
func (e *Engine) AddPropagationHandler(h PropagationHandler) *PropagationHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := h
	e.handlers = append(e.handlers, &stored)
	return &stored
}

// OnException registers an engine-level exception handler, consulted when
// no task or plan-level handler consumes an exception.
func (e *Engine) OnException(matches func(err error) bool, handle func(ctx context.Context, execErr error) (bool, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exceptionHandlers = append(e.exceptionHandlers, PlanWideExceptionHandler{matches, handle})
}

// AddFrameworkError records err against the current cycle (spec.md §4.5.1
// phase 7, §6: "add_framework_error").
func (e *Engine) AddFrameworkError(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frameworkErrors = append(e.frameworkErrors, FrameworkError{Cycle: e.cycleCount, Err: err})
}

// FrameworkErrors returns every framework error recorded so far.
func (e *Engine) FrameworkErrors() []FrameworkError {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]FrameworkError, len(e.frameworkErrors))
	copy(out, e.frameworkErrors)
	return out
}

// RegisterWaitingWork adds w to the set the engine keeps polling until
// complete (spec.md §4.6).
func (e *Engine) RegisterWaitingWork(w WaitingWork) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waitingWork[w] = struct{}{}
}

// WaitingWorkCount reports how many registered WaitingWork items are not
// yet complete.
func (e *Engine) WaitingWorkCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.waitingWork)
}

// JoinAllWaitingWork blocks, driving cycles, until every registered
// WaitingWork item is complete (spec.md §4.6: "join_all_waiting_work").
func (e *Engine) JoinAllWaitingWork(ctx context.Context) error {
	for {
		if e.WaitingWorkCount() == 0 {
			return nil
		}
		if err := e.RunCycle(ctx); err != nil {
			return err
		}
	}
}

func (e *Engine) reapWaitingWork(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for w := range e.waitingWork {
		w.Poll(ctx)
		if w.Complete() {
			delete(e.waitingWork, w)
		}
	}
}

// InsideControl always reports true: this module has no separate engine
// goroutine of its own — RunCycle is called directly by whichever
// goroutine owns the plan (spec.md §5 names this inside_control?/
// outside_control?; with a synchronous engine the caller of RunCycle
// always is inside_control).
func (e *Engine) InsideControl() bool { return true }
