// Package rotask implements the task lifecycle (spec.md §4.3): a flat
// struct of instance state plus a small set of generators (start,
// success, stop, failed, and any model-declared custom events) wired
// together the way a task model declares.
package rotask

import (
	"context"
	"fmt"

	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/pkg/roerr"
)

// State is a task's lifecycle state (spec.md §4.3 diagram).
type State int

const (
	Pending State = iota
	Starting
	Running
	Succeeded
	Stopped
	Failed
	FailedToStart
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	case FailedToStart:
		return "failed_to_start"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one the task does not leave.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Stopped, Failed, FailedToStart:
		return true
	default:
		return false
	}
}

// ExceptionOutcome is what an exception handler decided.
type ExceptionOutcome int

const (
	// Pass means this handler did not consume the exception; traversal
	// continues to the next matching handler.
	Pass ExceptionOutcome = iota
	// Handled means the exception was consumed here.
	Handled
)

// ExceptionHandlerFunc is a task or model exception handler.
type ExceptionHandlerFunc func(ctx context.Context, execErr error) (ExceptionOutcome, error)

// ExceptionHandler pairs a matcher with the handler it guards.
type ExceptionHandler struct {
	Matches func(err error) bool
	Handle  ExceptionHandlerFunc
}

// Task is one instance of a task model: lifecycle state, named event
// generators, arguments, and exception handlers.
type Task struct {
	ID    string
	Model string

	state       State
	quarantined bool
	abstract    bool

	events map[string]*roevent.Generator

	start       *roevent.Generator
	success     *roevent.Generator
	stop        *roevent.Generator
	failed      *roevent.Generator
	updatedData *roevent.Generator

	needs []*roevent.Generator

	arguments map[string]argument

	exceptionHandlers []ExceptionHandler

	onStateChange func(from, to State)
}

type argument struct {
	value   any
	delayed Delayed
}

// New creates a task with the four standard lifecycle events wired:
// start is controllable (startCommand, or a default that emits start
// immediately if nil); success and failed both forward into stop, so
// stop doubles as "some terminal event has fired" (this is how
// repairs_for's terminal-equivalence, spec.md §12, is realized: a repair
// keyed on failed also covers stop, because failed always forwards into
// it).
func New(id, model string, startCommand roevent.Command) *Task {
	t := &Task{
		ID:        id,
		Model:     model,
		events:    make(map[string]*roevent.Generator),
		arguments: make(map[string]argument),
	}

	if startCommand == nil {
		startCommand = func(ctx roevent.Context, pass *roevent.Pass, ec any) error {
			return t.start.Emit(ctx, pass, ec)
		}
	}
	t.start = roevent.NewControllable("start:"+id, startCommand)
	t.success = roevent.NewGenerator("success:" + id)
	t.stop = roevent.NewGenerator("stop:" + id)
	t.failed = roevent.NewGenerator("failed:" + id)
	t.updatedData = roevent.NewGenerator("updated_data:" + id)

	t.success.ForwardTo(t.stop)
	t.failed.ForwardTo(t.stop)

	t.start.On(func(ctx roevent.Context, pass *roevent.Pass, ec any) error {
		t.transition(Running)
		return t.updatedData.Emit(ctx, pass, ec)
	})
	t.success.On(func(ctx roevent.Context, pass *roevent.Pass, ec any) error {
		t.transition(Succeeded)
		return nil
	})
	t.stop.On(func(ctx roevent.Context, pass *roevent.Pass, ec any) error {
		t.transition(Stopped)
		return nil
	})
	t.failed.On(func(ctx roevent.Context, pass *roevent.Pass, ec any) error {
		t.transition(Failed)
		return nil
	})

	for _, ev := range []*roevent.Generator{t.start, t.success, t.stop, t.failed, t.updatedData} {
		t.events[eventShortName(ev.Name(), id)] = ev
	}
	// Only start is gated by quarantine: a quarantined task can never be
	// (re)started, but its terminal events must still be free to fire so it
	// can be finalized naturally (spec.md §4.5.4, scenario S6).
	t.start.SetExecutableCheck(func() error {
		if t.quarantined {
			return fmt.Errorf("task %s is quarantined", t.ID)
		}
		return nil
	})

	return t
}

func eventShortName(fullName, id string) string {
	return fullName[:len(fullName)-len(id)-1]
}

func (t *Task) origin() roerr.Origin { return roerr.Origin{TaskID: t.ID} }

// State returns the task's current lifecycle state.
func (t *Task) State() State { return t.state }

// OnStateChange installs a callback invoked whenever the task's state
// changes, synchronously with the event emission that caused it (used by
// the plan to keep its state index atomically up to date, spec.md §4.3).
func (t *Task) OnStateChange(fn func(from, to State)) { t.onStateChange = fn }

func (t *Task) transition(to State) {
	if t.state.Terminal() {
		return
	}
	from := t.state
	t.state = to
	if t.onStateChange != nil {
		t.onStateChange(from, to)
	}
}

// StartEvent, SuccessEvent, StopEvent, FailedEvent, and UpdatedData
// return the task's standard generators.
func (t *Task) StartEvent() *roevent.Generator       { return t.start }
func (t *Task) SuccessEvent() *roevent.Generator     { return t.success }
func (t *Task) StopEvent() *roevent.Generator        { return t.stop }
func (t *Task) FailedEvent() *roevent.Generator      { return t.failed }
func (t *Task) UpdatedDataEvent() *roevent.Generator { return t.updatedData }

// Event looks up a named event generator (standard or model-declared).
func (t *Task) Event(name string) (*roevent.Generator, bool) {
	ev, ok := t.events[name]
	return ev, ok
}

// AddEvent registers a custom, model-declared event generator under name.
func (t *Task) AddEvent(name string, ev *roevent.Generator) {
	t.events[name] = ev
}

// Events returns every named event generator on this task (standard and
// model-declared custom events), keyed by short name.
func (t *Task) Events() map[string]*roevent.Generator {
	out := make(map[string]*roevent.Generator, len(t.events))
	for k, v := range t.events {
		out[k] = v
	}
	return out
}

// SetAbstract marks the task abstract: it can never become executable.
func (t *Task) SetAbstract(abstract bool) { t.abstract = abstract }

// Executable reports whether start! is currently permitted.
func (t *Task) Executable() bool {
	return !t.abstract && !t.quarantined
}

// Needs declares event generators that must have emitted before the
// start command is invoked.
func (t *Task) Needs(gens ...*roevent.Generator) {
	t.needs = append(t.needs, gens...)
}

func (t *Task) unmetNeeds() []string {
	var missing []string
	for _, g := range t.needs {
		if !g.Emitted() {
			missing = append(missing, g.Name())
		}
	}
	return missing
}

// Start implements start!(context): requires pending? and executable?.
func (t *Task) Start(ctx context.Context, pass *roevent.Pass, ec any) error {
	if t.state != Pending {
		return roerr.NewTaskNotExecutable(t.origin(), "task is not pending")
	}
	if !t.Executable() {
		return roerr.NewTaskNotExecutable(t.origin(), "task is not executable")
	}
	if missing := t.unmetNeeds(); len(missing) > 0 {
		return roerr.NewEventPreconditionFailed(t.origin(), missing)
	}
	t.transition(Starting)
	return t.start.Call(ctx, pass, ec)
}

// FailToStart transitions a pending task directly to failed_to_start,
// bypassing the normal start/running path (used when the task could not
// even begin, e.g. a missing resource discovered before start! is ever
// attempted).
func (t *Task) FailToStart(reason error) error {
	if t.state != Pending {
		return roerr.NewTaskNotExecutable(t.origin(), "task is not pending")
	}
	t.transition(FailedToStart)
	return nil
}

// SetStopCommand upgrades stop into a controllable event backed by cmd, so
// the garbage collector can request stop! instead of quarantining the task
// (spec.md §4.5.4: "if running with a controllable stop event: request
// stop!").
func (t *Task) SetStopCommand(cmd roevent.Command) {
	t.stop.SetCommand(cmd)
}

// Quarantine sets the quarantine bit (quarantined!, spec.md §4.3). A
// pending or already-finished quarantined task is eligible for immediate
// finalization by the garbage collector; a running quarantined task is
// left to finish naturally.
func (t *Task) Quarantine() {
	t.quarantined = true
}

// Quarantined reports whether quarantined! has been called.
func (t *Task) Quarantined() bool { return t.quarantined }

// OnException registers a task-level exception handler. Handlers are
// tried in reverse declaration order (handle_exception, spec.md §4.3).
func (t *Task) OnException(matches func(err error) bool, handle ExceptionHandlerFunc) {
	t.exceptionHandlers = append(t.exceptionHandlers, ExceptionHandler{matches, handle})
}

// HandleException runs the task's exception handlers in reverse
// declaration order against execErr. handled is true if some handler
// consumed it; raised is non-nil if a handler itself raised instead of
// returning Handled/Pass.
func (t *Task) HandleException(ctx context.Context, execErr error) (handled bool, raised error) {
	for i := len(t.exceptionHandlers) - 1; i >= 0; i-- {
		h := t.exceptionHandlers[i]
		if !h.Matches(execErr) {
			continue
		}
		outcome, err := h.Handle(ctx, execErr)
		if err != nil {
			return false, roerr.NewEventHandlerError(t.origin(), err)
		}
		if outcome == Handled {
			return true, nil
		}
	}
	return false, nil
}

// SetArgument sets key to value. It fails with ArgumentAlreadySet if the
// key is already set to a non-delayed value.
func (t *Task) SetArgument(key string, value any) error {
	if existing, ok := t.arguments[key]; ok && existing.delayed == nil {
		return roerr.NewArgumentAlreadySet(t.origin(), key)
	}
	t.arguments[key] = argument{value: value}
	return nil
}

// SetDelayedArgument sets key to a delayed-argument object, evaluated on
// read. It fails with ArgumentAlreadySet under the same rule as
// SetArgument.
func (t *Task) SetDelayedArgument(key string, d Delayed) error {
	if existing, ok := t.arguments[key]; ok && existing.delayed == nil {
		return roerr.NewArgumentAlreadySet(t.origin(), key)
	}
	t.arguments[key] = argument{delayed: d}
	return nil
}

// ArgumentSet reports whether key holds a concrete, non-delayed value.
func (t *Task) ArgumentSet(key string) bool {
	a, ok := t.arguments[key]
	return ok && a.delayed == nil
}

// StaticArguments reports whether every set argument is non-delayed.
func (t *Task) StaticArguments() bool {
	for _, a := range t.arguments {
		if a.delayed != nil {
			return false
		}
	}
	return true
}

// Argument resolves key: a concrete value is returned as-is; a delayed
// value is evaluated against this task. ok is false if key is unset or
// the delayed evaluation has no value yet.
func (t *Task) Argument(key string) (value any, ok bool) {
	a, present := t.arguments[key]
	if !present {
		return nil, false
	}
	if a.delayed == nil {
		return a.value, true
	}
	return a.delayed.Evaluate(t)
}
