// Package roerr implements the engine's error taxonomy (spec §7). Every
// error raised inside the execution engine is, or wraps, one of these types
// so that callers can use errors.As to recover the origin task/event.
package roerr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Origin identifies the task or event an error is localized to. Exactly one
// of Task/Event is expected to be non-empty for a given error; both may be
// empty for plan-level errors with no single anchor.
type Origin struct {
	TaskID  string
	EventID string
}

func (o Origin) String() string {
	switch {
	case o.EventID != "":
		return o.EventID
	case o.TaskID != "":
		return o.TaskID
	default:
		return "<plan>"
	}
}

// LocalizedError is the base of the taxonomy: every engine error carries an
// Origin and, where available, the underlying cause.
type LocalizedError struct {
	Origin Origin
	Cause  error
}

func (e *LocalizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Origin, e.Cause)
	}
	return fmt.Sprintf("%s: localized error", e.Origin)
}

func (e *LocalizedError) Unwrap() error { return e.Cause }

// CommandFailed wraps an error returned by a controllable event's command.
type CommandFailed struct{ LocalizedError }

func NewCommandFailed(origin Origin, cause error) error {
	return &CommandFailed{LocalizedError{Origin: origin, Cause: cause}}
}

func (e *CommandFailed) Error() string {
	return fmt.Sprintf("command failed on %s: %v", e.Origin, e.Cause)
}

// EmissionFailed wraps an error raised while running emit() handlers/body.
type EmissionFailed struct{ LocalizedError }

func NewEmissionFailed(origin Origin, cause error) error {
	return &EmissionFailed{LocalizedError{Origin: origin, Cause: cause}}
}

func (e *EmissionFailed) Error() string {
	return fmt.Sprintf("emission failed on %s: %v", e.Origin, e.Cause)
}

// EventHandlerError wraps an error returned from an `on` handler.
type EventHandlerError struct{ LocalizedError }

func NewEventHandlerError(origin Origin, cause error) error {
	return &EventHandlerError{LocalizedError{Origin: origin, Cause: cause}}
}

func (e *EventHandlerError) Error() string {
	return fmt.Sprintf("event handler failed on %s: %v", e.Origin, e.Cause)
}

// EventPreconditionFailed is raised when a task's `needs` events have not
// all emitted before the start command is invoked.
type EventPreconditionFailed struct {
	LocalizedError
	Missing []string
}

func NewEventPreconditionFailed(origin Origin, missing []string) error {
	return &EventPreconditionFailed{LocalizedError{Origin: origin}, missing}
}

func (e *EventPreconditionFailed) Error() string {
	return fmt.Sprintf("event precondition failed on %s: missing %v", e.Origin, e.Missing)
}

// EventNotExecutable is API misuse: calling/emitting a generator that cannot
// currently execute (unreachable, owner task terminated, proxy, etc).
type EventNotExecutable struct {
	LocalizedError
	Reason string
}

func NewEventNotExecutable(origin Origin, reason string) error {
	return &EventNotExecutable{LocalizedError{Origin: origin}, reason}
}

func (e *EventNotExecutable) Error() string {
	return fmt.Sprintf("event not executable on %s: %s", e.Origin, e.Reason)
}

// EventNotControllable is raised by call() on a generator with no command.
type EventNotControllable struct{ LocalizedError }

func NewEventNotControllable(origin Origin) error {
	return &EventNotControllable{LocalizedError{Origin: origin}}
}

func (e *EventNotControllable) Error() string {
	return fmt.Sprintf("event not controllable: %s", e.Origin)
}

// ArgumentAlreadySet is raised by a task argument's []= when the key is
// already set to a non-delayed value.
type ArgumentAlreadySet struct {
	LocalizedError
	Key string
}

func NewArgumentAlreadySet(origin Origin, key string) error {
	return &ArgumentAlreadySet{LocalizedError{Origin: origin}, key}
}

func (e *ArgumentAlreadySet) Error() string {
	return fmt.Sprintf("argument %q already set on %s", e.Key, e.Origin)
}

// TaskNotExecutable is raised by start!() when the task is not pending or
// lacks an executable start command.
type TaskNotExecutable struct {
	LocalizedError
	Reason string
}

func NewTaskNotExecutable(origin Origin, reason string) error {
	return &TaskNotExecutable{LocalizedError{Origin: origin}, reason}
}

func (e *TaskNotExecutable) Error() string {
	return fmt.Sprintf("task not executable %s: %s", e.Origin, e.Reason)
}

// UnreachableEvent is raised to callers of wait_until when the awaited
// generator became unreachable instead of emitting.
type UnreachableEvent struct {
	LocalizedError
	Reason string
}

func NewUnreachableEvent(origin Origin, reason string) error {
	return &UnreachableEvent{LocalizedError{Origin: origin}, reason}
}

func (e *UnreachableEvent) Error() string {
	return fmt.Sprintf("event unreachable %s: %s", e.Origin, e.Reason)
}

// CodeError wraps an arbitrary error raised from user code that does not
// already have a more specific class. It preserves a capture point via
// github.com/pkg/errors so framework logging can print a stack trace without
// the engine inventing its own trace format.
type CodeError struct {
	LocalizedError
}

func NewCodeError(origin Origin, cause error) error {
	return &CodeError{LocalizedError{Origin: origin, Cause: errors.WithStack(cause)}}
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("code error on %s: %v", e.Origin, e.Cause)
}

// ChildFailedError is synthesized when a dependency's failure propagates to
// a parent task that required it.
type ChildFailedError struct {
	LocalizedError
	ChildID string
}

func NewChildFailedError(origin Origin, childID string, cause error) error {
	return &ChildFailedError{LocalizedError{Origin: origin, Cause: cause}, childID}
}

func (e *ChildFailedError) Error() string {
	return fmt.Sprintf("child %s failed, propagated to %s: %v", e.ChildID, e.Origin, e.Cause)
}

// MissionFailedError is synthesized when a failure reaches a mission task.
// It is fatal: a mission cannot silently swallow a dependency failure.
type MissionFailedError struct{ LocalizedError }

func NewMissionFailedError(origin Origin, cause error) error {
	return &MissionFailedError{LocalizedError{Origin: origin, Cause: cause}}
}

func (e *MissionFailedError) Error() string {
	return fmt.Sprintf("mission %s failed: %v", e.Origin, e.Cause)
}

// PermanentTaskError is synthesized when a failure reaches a permanent task.
// Permanent variants are non-fatal by policy: the plan keeps running.
type PermanentTaskError struct{ LocalizedError }

func NewPermanentTaskError(origin Origin, cause error) error {
	return &PermanentTaskError{LocalizedError{Origin: origin, Cause: cause}}
}

func (e *PermanentTaskError) Error() string {
	return fmt.Sprintf("permanent task %s failed (non-fatal): %v", e.Origin, e.Cause)
}

// Fatal reports whether an error class is fatal-by-default when it reaches
// the top of exception propagation with no handler. PermanentTaskError is
// the one class that is non-fatal by policy (spec §7).
func Fatal(err error) bool {
	var permanent *PermanentTaskError
	return !stderrors.As(err, &permanent)
}
