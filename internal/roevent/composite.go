package roevent

// AndGenerator emits once every currently-subscribed source has emitted
// at least once since the last Reset. It becomes unreachable iff some
// source that has not emitted since the last Reset becomes unreachable.
type AndGenerator struct {
	*Generator

	order     []*Generator
	sources   map[*Generator]bool
	satisfied map[*Generator]any
}

// NewAndGenerator creates an empty AndGenerator with no sources.
func NewAndGenerator(name string) *AndGenerator {
	return &AndGenerator{
		Generator: NewGenerator(name),
		sources:   make(map[*Generator]bool),
		satisfied: make(map[*Generator]any),
	}
}

// Subscribe adds src as a source. Its emissions and unreachability are
// observed through handlers installed on src itself.
func (a *AndGenerator) Subscribe(src *Generator) {
	if a.sources[src] {
		return
	}
	a.sources[src] = true
	a.order = append(a.order, src)

	src.On(func(ctx Context, pass *Pass, ec any) error {
		a.satisfied[src] = ec
		a.checkSatisfied(ctx, pass)
		return nil
	})
	src.WhenUnreachable(func(reason error) {
		if _, done := a.satisfied[src]; done {
			return
		}
		a.MarkUnreachable(reason)
	})
}

// RemoveSource drops src from the subscribed set. If the remaining
// sources are already all satisfied, this may trigger an emission.
func (a *AndGenerator) RemoveSource(ctx Context, pass *Pass, src *Generator) {
	if !a.sources[src] {
		return
	}
	delete(a.sources, src)
	delete(a.satisfied, src)
	for i, v := range a.order {
		if v == src {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.checkSatisfied(ctx, pass)
}

func (a *AndGenerator) checkSatisfied(ctx Context, pass *Pass) {
	if len(a.sources) == 0 || len(a.satisfied) != len(a.sources) {
		return
	}
	contexts := make([]any, 0, len(a.order))
	for _, src := range a.order {
		contexts = append(contexts, a.satisfied[src])
	}
	_ = a.Generator.Emit(ctx, pass, contexts)
	a.Reset()
}

// Reset clears the since-last-reset emitted set, so every source must
// emit again before the next And emission.
func (a *AndGenerator) Reset() {
	a.satisfied = make(map[*Generator]any)
}

// OrGenerator emits on the first emission of any subscribed source, once
// per reset. It becomes unreachable only when every source is
// unreachable with none having emitted since the last reset.
type OrGenerator struct {
	*Generator

	sources       map[*Generator]bool
	unreachable   map[*Generator]bool
	emittedThisRound bool
}

// NewOrGenerator creates an empty OrGenerator with no sources.
func NewOrGenerator(name string) *OrGenerator {
	return &OrGenerator{
		Generator:   NewGenerator(name),
		sources:     make(map[*Generator]bool),
		unreachable: make(map[*Generator]bool),
	}
}

// Subscribe adds src as a source.
func (o *OrGenerator) Subscribe(src *Generator) {
	if o.sources[src] {
		return
	}
	o.sources[src] = true

	src.On(func(ctx Context, pass *Pass, ec any) error {
		if o.emittedThisRound {
			return nil
		}
		o.emittedThisRound = true
		return o.Generator.Emit(ctx, pass, ec)
	})
	src.WhenUnreachable(func(reason error) {
		o.unreachable[src] = true
		if o.emittedThisRound {
			return
		}
		if len(o.unreachable) == len(o.sources) {
			o.MarkUnreachable(reason)
		}
	})
}

// Reset allows the Or generator to emit again on the next source emission.
func (o *OrGenerator) Reset() {
	o.emittedThisRound = false
	o.unreachable = make(map[*Generator]bool)
}
