package rotask

import (
	"github.com/roby-engine/roby/internal/roevent"
)

// eventSpec is one model-declared custom event (event :name, controllable:
// bool, terminal: bool in the Ruby task model API, spec.md §6).
type eventSpec struct {
	name         string
	controllable bool
	terminal     bool
	command      roevent.Command
}

type forwardSpec struct {
	from, to string
}

// Model is the spec.md §9 redesign of a dynamically-reopened task class:
// a flat builder that records event/forward/argument/exception-handler
// declarations, then stamps out instances with Instantiate. Refining a
// model after tasks have been instantiated from it does not retroactively
// affect them, matching "refined running state" being resolved entirely
// at model-creation time.
type Model struct {
	name              string
	startCommand      roevent.Command
	events            []eventSpec
	forwards          []forwardSpec
	argumentDefaults  map[string]any
	exceptionHandlers []ExceptionHandler
}

// NewModel creates an empty task model named name.
func NewModel(name string) *Model {
	return &Model{name: name, argumentDefaults: make(map[string]any)}
}

// StartCommand overrides the default start command (which, left unset,
// emits start immediately with no side effect).
func (m *Model) StartCommand(cmd roevent.Command) *Model {
	m.startCommand = cmd
	return m
}

// Event declares a custom named event on every task instantiated from
// this model.
func (m *Model) Event(name string, controllable, terminal bool, command roevent.Command) *Model {
	m.events = append(m.events, eventSpec{name, controllable, terminal, command})
	return m
}

// Forward declares a model-level forward edge between two event names
// (standard or custom), applied to every instance at construction time.
func (m *Model) Forward(from, to string) *Model {
	m.forwards = append(m.forwards, forwardSpec{from, to})
	return m
}

// Argument declares a default value assigned to every instance.
// Instantiate sets it through SetArgument as a concrete value, so the
// instance's argument is already set and a later SetArgument on the same
// key fails with ArgumentAlreadySet.
func (m *Model) Argument(name string, def any) *Model {
	m.argumentDefaults[name] = def
	return m
}

// OnException declares a model-level exception handler, copied onto
// every instance ahead of any instance-specific handlers (so
// instance-added handlers are tried first, per the reverse declaration
// order rule).
func (m *Model) OnException(matches func(err error) bool, handle ExceptionHandlerFunc) *Model {
	m.exceptionHandlers = append(m.exceptionHandlers, ExceptionHandler{matches, handle})
	return m
}

// Instantiate stamps out a new Task named id from the model: the
// standard lifecycle events plus every model-declared custom event and
// forward, default arguments, and inherited exception handlers.
func (m *Model) Instantiate(id string) *Task {
	t := New(id, m.name, m.startCommand)

	for _, es := range m.events {
		var ev *roevent.Generator
		if es.controllable {
			cmd := es.command
			if cmd == nil {
				cmd = func(ctx roevent.Context, pass *roevent.Pass, ec any) error {
					return nil
				}
			}
			ev = roevent.NewControllable(es.name+":"+id, cmd)
		} else {
			ev = roevent.NewGenerator(es.name + ":" + id)
		}
		if es.terminal {
			ev.ForwardTo(t.stop)
		}
		t.AddEvent(es.name, ev)
	}

	for _, fw := range m.forwards {
		src, ok := t.Event(fw.from)
		if !ok {
			continue
		}
		dst, ok := t.Event(fw.to)
		if !ok {
			continue
		}
		src.ForwardTo(dst)
	}

	for key, def := range m.argumentDefaults {
		_ = t.SetArgument(key, def)
	}

	t.exceptionHandlers = append(t.exceptionHandlers, m.exceptionHandlers...)

	return t
}
