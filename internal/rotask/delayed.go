package rotask

// Delayed is the spec.md §9 redesign of Roby's duck-typed delayed-argument
// objects: a uniform evaluate(task) -> (value, ok) contract, realized here
// as a small tagged variant instead of runtime duck typing.
type Delayed interface {
	// Evaluate resolves the delayed value against task. ok is false if
	// the value is not available yet.
	Evaluate(task *Task) (value any, ok bool)
}

// FromArgument resolves to another task's argument value once set.
type FromArgument struct {
	Source *Task
	Key    string
}

func (d FromArgument) Evaluate(task *Task) (any, bool) {
	return d.Source.Argument(d.Key)
}

// FromState resolves to true once Source has reached State, and stays
// unresolved (ok=false) until then.
type FromState struct {
	Source *Task
	State  State
}

func (d FromState) Evaluate(task *Task) (any, bool) {
	if d.Source.State() == d.State {
		return true, true
	}
	return nil, false
}

// Custom resolves via an arbitrary user callback.
type Custom struct {
	Fn func(task *Task) (any, bool)
}

func (d Custom) Evaluate(task *Task) (any, bool) {
	return d.Fn(task)
}
