// Package roevent implements the event generator (spec.md §4.2): the
// publish primitive underlying both task events and free events. A
// generator can be controllable (has a command, invoked through call)
// and/or forwarded/signalled to other generators; emitting it records an
// occurrence and, within the current propagation pass, fans out to
// signal and forward targets before running its own handlers.
package roevent

import (
	stdcontext "context"
	stderrors "errors"

	"github.com/roby-engine/roby/pkg/roerr"
)

// Context is the standard library context, re-exported so callers of this
// package don't need a second import for plumbing cancellation/deadlines
// through commands and handlers.
type Context = stdcontext.Context

// Command is the function backing a controllable generator. It may call
// Emit on its own generator (or any other) to actually publish an
// occurrence; returning an error fails the call with CommandFailed.
type Command func(ctx Context, pass *Pass, ec any) error

// Handler observes emissions. It receives the pass the emission happened
// in, so it may itself queue further emissions (this is how task event
// handlers and composite generators react to a source).
type Handler func(ctx Context, pass *Pass, ec any) error

// UnreachableHandler runs once when a generator becomes unreachable.
type UnreachableHandler func(reason error)

// Record is one recorded occurrence in a generator's history.
type Record struct {
	StepID  uint64
	Context any
}

// ExecutableCheck reports why a generator cannot currently execute (owner
// task not running, proxy, etc). A nil return means executable.
type ExecutableCheck func() error

// Generator is the spec.md §4.2 event generator.
type Generator struct {
	name         string
	controllable bool
	command      Command

	handlers            []Handler
	unreachableHandlers []UnreachableHandler

	signalTargets  []*Generator
	forwardTargets []*Generator

	history  []Record
	lastStep uint64

	unreachable       bool
	unreachableReason error

	executable ExecutableCheck
}

// NewGenerator creates an uncontrollable generator (no command); it can
// still be emitted directly, signalled, and forwarded.
func NewGenerator(name string) *Generator {
	return &Generator{name: name}
}

// NewControllable creates a generator whose call() invokes cmd.
func NewControllable(name string, cmd Command) *Generator {
	return &Generator{name: name, controllable: true, command: cmd}
}

// Name returns the generator's identifying name, used as its error origin.
func (g *Generator) Name() string { return g.name }

// Controllable reports whether Call is valid on this generator.
func (g *Generator) Controllable() bool { return g.controllable }

// SetCommand installs cmd and marks the generator controllable, letting a
// task model upgrade a standard event (e.g. stop) into a controllable one
// after construction.
func (g *Generator) SetCommand(cmd Command) {
	g.command = cmd
	g.controllable = true
}

func (g *Generator) origin() roerr.Origin { return roerr.Origin{EventID: g.name} }

// SetExecutableCheck installs the hook used to decide whether this
// generator can currently be called/emitted (typically wired by the
// owning task to its own lifecycle state).
func (g *Generator) SetExecutableCheck(check ExecutableCheck) {
	g.executable = check
}

// Signals adds an outgoing signal edge: when g emits, target's command is
// queued for invocation within the current propagation pass.
func (g *Generator) Signals(target *Generator) {
	g.signalTargets = append(g.signalTargets, target)
}

// ForwardTo adds an outgoing forward edge: when g emits, target is queued
// to be emitted directly (its command, if any, is not invoked).
func (g *Generator) ForwardTo(target *Generator) {
	g.forwardTargets = append(g.forwardTargets, target)
}

// SignalTargets returns the generators this one signals, in edge order.
func (g *Generator) SignalTargets() []*Generator {
	out := make([]*Generator, len(g.signalTargets))
	copy(out, g.signalTargets)
	return out
}

// ForwardTargets returns the generators this one forwards to, in edge order.
func (g *Generator) ForwardTargets() []*Generator {
	out := make([]*Generator, len(g.forwardTargets))
	copy(out, g.forwardTargets)
	return out
}

// On registers a handler invoked synchronously, in registration order,
// every time g is emitted.
func (g *Generator) On(h Handler) {
	g.handlers = append(g.handlers, h)
}

// WhenUnreachable registers a one-shot callback fired when g becomes
// unreachable (and dropped immediately after firing).
func (g *Generator) WhenUnreachable(h UnreachableHandler) {
	if g.unreachable {
		h(g.unreachableReason)
		return
	}
	g.unreachableHandlers = append(g.unreachableHandlers, h)
}

// Unreachable reports whether the generator has been marked unreachable.
func (g *Generator) Unreachable() bool { return g.unreachable }

// UnreachableReason returns the reason passed to the call that marked the
// generator unreachable, or nil if it is still reachable.
func (g *Generator) UnreachableReason() error { return g.unreachableReason }

// MarkUnreachable marks the generator unreachable and fires every
// registered when_unreachable callback exactly once. It is a no-op if the
// generator is already unreachable.
func (g *Generator) MarkUnreachable(reason error) {
	if g.unreachable {
		return
	}
	g.unreachable = true
	g.unreachableReason = reason
	handlers := g.unreachableHandlers
	g.unreachableHandlers = nil
	for _, h := range handlers {
		h(reason)
	}
}

// Emitted reports whether the generator has ever been emitted.
func (g *Generator) Emitted() bool { return g.lastStep != 0 }

// History returns the generator's recorded occurrences, oldest first.
func (g *Generator) History() []Record {
	out := make([]Record, len(g.history))
	copy(out, g.history)
	return out
}

// checkExecutable reports the reason a generator cannot currently be
// called or emitted, or nil if it can.
func (g *Generator) checkExecutable() error {
	if g.unreachable {
		reason := "generator is unreachable"
		if g.unreachableReason != nil {
			reason = g.unreachableReason.Error()
		}
		return roerr.NewEventNotExecutable(g.origin(), reason)
	}
	if g.executable != nil {
		if err := g.executable(); err != nil {
			return roerr.NewEventNotExecutable(g.origin(), err.Error())
		}
	}
	return nil
}

// Call runs the generator's command synchronously with ec. It is used
// both for direct invocation (once-blocks, task.start!, tests) and, by
// Dispatch, for signal-triggered invocations queued via a Pass.
func (g *Generator) Call(ctx Context, pass *Pass, ec any) error {
	if !g.controllable {
		return roerr.NewEventNotControllable(g.origin())
	}
	if err := g.checkExecutable(); err != nil {
		return err
	}
	if err := g.command(ctx, pass, ec); err != nil {
		return roerr.NewCommandFailed(g.origin(), err)
	}
	return nil
}

// Emit queues the generator to be emitted within pass. If pass is
// currently being drained, the emission is picked up and dispatched
// (recorded, fanned out, handlers run) on a later iteration of the same
// drain loop; multiple Emit calls on the same generator within one pass
// merge into a single recorded occurrence (spec.md §4.2, scenario S1).
func (g *Generator) Emit(ctx Context, pass *Pass, ec any) error {
	if err := g.checkExecutable(); err != nil {
		return err
	}
	pass.QueueEmit(g, ec)
	return nil
}

// doEmit performs the actual recording, fan-out, and handler invocation
// for a single merged emission. It is only reachable through Dispatch.
func (g *Generator) doEmit(ctx Context, pass *Pass, ec any) error {
	step := pass.nextStep()
	g.history = append(g.history, Record{StepID: step, Context: ec})
	g.lastStep = step

	for _, target := range g.signalTargets {
		pass.QueueCall(target, ec)
	}
	for _, target := range g.forwardTargets {
		pass.QueueEmit(target, ec)
	}

	var errs []error
	for _, h := range g.handlers {
		if err := h(ctx, pass, ec); err != nil {
			errs = append(errs, roerr.NewEventHandlerError(g.origin(), err))
		}
	}
	return joinErrors(errs)
}

// Dispatch processes one pending entry: if it carries call contexts (the
// generator was signalled), its command is invoked once with them merged;
// if it carries emit contexts (the generator was forwarded to, or Emit
// was called on it directly), it is emitted once with them merged.
func (g *Generator) Dispatch(ctx Context, pass *Pass, entry *PendingEntry) error {
	var errs []error
	if len(entry.CallContexts) > 0 {
		if err := g.Call(ctx, pass, mergeContexts(entry.CallContexts)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(entry.EmitContexts) > 0 {
		if err := g.doEmit(ctx, pass, mergeContexts(entry.EmitContexts)); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return stderrors.Join(errs...)
}
