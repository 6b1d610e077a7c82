// Package rotrsc implements the transaction (spec.md §4.7): an overlay
// plan that proxies a subset of the underlying plan, stages every edit
// (additions, removals, relation changes, argument updates, mission/
// permanent overlays) and replays the whole diff into the plan atomically
// on commit, or drops it entirely on discard.
package rotrsc

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/internal/roplan"
	"github.com/roby-engine/roby/internal/rotask"
	"github.com/roby-engine/roby/pkg/roerr"
)

type relationEdit struct {
	relation string
	src, dst string
	payload  any
	add      bool
}

type wireKind int

const (
	wireSignal wireKind = iota
	wireForward
)

type wireEdit struct {
	kind     wireKind
	src, dst *roevent.Generator
}

// Transaction stages edits against plan without touching it until Commit.
type Transaction struct {
	plan *roplan.Plan

	taskProxies  map[string]*TaskProxy
	eventProxies map[*roevent.Generator]*EventProxy

	addedTasks   map[string]*rotask.Task
	removedTasks map[string]bool

	relationEdits []relationEdit
	wireEdits     []wireEdit

	missionOverlay   map[string]bool
	permanentOverlay map[string]bool

	argOverlay map[string]map[string]any

	done bool
	sf   singleflight.Group
}

// New creates a transaction staging edits against plan.
func New(plan *roplan.Plan) *Transaction {
	return &Transaction{
		plan:             plan,
		taskProxies:      make(map[string]*TaskProxy),
		eventProxies:     make(map[*roevent.Generator]*EventProxy),
		addedTasks:       make(map[string]*rotask.Task),
		removedTasks:     make(map[string]bool),
		missionOverlay:   make(map[string]bool),
		permanentOverlay: make(map[string]bool),
		argOverlay:       make(map[string]map[string]any),
	}
}

// Get returns the proxy for taskID, creating one on first access whether
// the task lives in the plan or was staged via Add (spec.md §4.7:
// "trsc[task]").
func (t *Transaction) Get(taskID string) (*TaskProxy, bool) {
	if p, ok := t.taskProxies[taskID]; ok {
		return p, true
	}
	task, ok := t.addedTasks[taskID]
	if !ok {
		task, ok = t.plan.Task(taskID)
	}
	if !ok {
		return nil, false
	}
	p := &TaskProxy{trsc: t, task: task}
	t.taskProxies[taskID] = p
	return p, true
}

// GetExisting returns the proxy for taskID only if one has already been
// created (spec.md §4.7: "trsc[task, false]").
func (t *Transaction) GetExisting(taskID string) (*TaskProxy, bool) {
	p, ok := t.taskProxies[taskID]
	return p, ok
}

// Add stages task for insertion into the plan on commit and returns its
// proxy.
func (t *Transaction) Add(task *rotask.Task) *TaskProxy {
	t.addedTasks[task.ID] = task
	delete(t.removedTasks, task.ID)
	p := &TaskProxy{trsc: t, task: task}
	t.taskProxies[task.ID] = p
	return p
}

// Remove stages taskID for removal from the plan on commit.
func (t *Transaction) Remove(taskID string) {
	t.removedTasks[taskID] = true
	delete(t.addedTasks, taskID)
}

// MarkMission stages taskID to become a mission task on commit.
func (t *Transaction) MarkMission(taskID string) { t.missionOverlay[taskID] = true }

// UnmarkMission stages taskID to be removed from the mission set on commit.
func (t *Transaction) UnmarkMission(taskID string) { t.missionOverlay[taskID] = false }

// MarkPermanent stages taskID to become permanent on commit.
func (t *Transaction) MarkPermanent(taskID string) { t.permanentOverlay[taskID] = true }

// UnmarkPermanent stages taskID to be removed from the permanent set.
func (t *Transaction) UnmarkPermanent(taskID string) { t.permanentOverlay[taskID] = false }

// SetArgument stages key=value on taskID, applied on commit through the
// real task's own SetArgument (so ArgumentAlreadySet still applies).
func (t *Transaction) SetArgument(taskID, key string, value any) {
	if t.argOverlay[taskID] == nil {
		t.argOverlay[taskID] = make(map[string]any)
	}
	t.argOverlay[taskID][key] = value
}

// LinkRelation stages edge src->dst in the named plan relation for
// addition on commit.
func (t *Transaction) LinkRelation(relation string, src, dst *TaskProxy, payload any) {
	t.relationEdits = append(t.relationEdits, relationEdit{relation: relation, src: src.ID(), dst: dst.ID(), payload: payload, add: true})
}

// UnlinkRelation stages removal of edge src->dst in the named plan
// relation, even when both endpoints already live in the plan (spec.md
// §4.7: "removing a relation in the transaction removes it in the plan on
// commit").
func (t *Transaction) UnlinkRelation(relation string, src, dst *TaskProxy) {
	t.relationEdits = append(t.relationEdits, relationEdit{relation: relation, src: src.ID(), dst: dst.ID(), add: false})
}

func (t *Transaction) eventProxyFor(gen *roevent.Generator) *EventProxy {
	if p, ok := t.eventProxies[gen]; ok {
		return p
	}
	p := &EventProxy{trsc: t, gen: gen}
	t.eventProxies[gen] = p
	return p
}

// Commit replays every staged edit into the plan atomically (spec.md
// §4.7, property 3): added tasks are inserted (honoring any staged
// mission/permanent overlay), removed tasks are removed, relation edits
// and signal/forward wiring are replayed, and argument overlays are
// applied through the real task API. The transaction cannot be reused
// afterward.
func (t *Transaction) Commit() error {
	_, err, _ := t.sf.Do("finalize", func() (any, error) {
		return nil, t.commitLocked()
	})
	return err
}

// commitLocked performs the actual replay. It runs inside the
// transaction's singleflight group so a concurrent Commit/Discard pair
// (spec.md §4.7: a transaction may be finalized from any thread via
// engine.execute) can never both take effect.
func (t *Transaction) commitLocked() error {
	if t.done {
		return fmt.Errorf("transaction already committed or discarded")
	}
	t.done = true

	for id, task := range t.addedTasks {
		switch {
		case t.missionOverlay[id]:
			t.plan.AddMissionTask(task)
		case t.permanentOverlay[id]:
			t.plan.AddPermanentTask(task)
		default:
			t.plan.Add(task)
		}
	}

	for id := range t.removedTasks {
		t.plan.RemoveTask(id)
	}

	for id, mark := range t.missionOverlay {
		if _, justAdded := t.addedTasks[id]; justAdded {
			continue
		}
		if mark {
			if task, ok := t.plan.Task(id); ok {
				t.plan.AddMissionTask(task)
			}
		} else {
			t.plan.UnmarkMission(id)
		}
	}
	for id, mark := range t.permanentOverlay {
		if _, justAdded := t.addedTasks[id]; justAdded {
			continue
		}
		if mark {
			if task, ok := t.plan.Task(id); ok {
				t.plan.AddPermanentTask(task)
			}
		} else {
			t.plan.UnmarkPermanent(id)
		}
	}

	for taskID, args := range t.argOverlay {
		task, ok := t.plan.Task(taskID)
		if !ok {
			continue
		}
		for key, value := range args {
			if err := task.SetArgument(key, value); err != nil {
				return err
			}
		}
	}

	for _, edit := range t.relationEdits {
		rel := t.plan.Relation(edit.relation)
		if edit.add {
			if err := rel.Link(edit.src, edit.dst, edit.payload); err != nil {
				return err
			}
		} else {
			rel.Unlink(edit.src, edit.dst)
		}
	}

	for _, w := range t.wireEdits {
		switch w.kind {
		case wireSignal:
			w.src.Signals(w.dst)
		case wireForward:
			w.src.ForwardTo(w.dst)
		}
	}

	return nil
}

// Discard drops every staged edit; the plan is left exactly as it was
// before the transaction (spec.md §4.7, property 3). It shares Commit's
// singleflight group so a racing Commit/Discard pair resolves to exactly
// one outcome.
func (t *Transaction) Discard() {
	t.sf.Do("finalize", func() (any, error) {
		t.done = true
		return nil, nil
	})
}

// MergedGeneratedSubgraphs returns the union of every vertex reachable,
// via relation, from seedsInPlan or seedsInTransaction, honoring this
// transaction's staged edge additions/removals without requiring a commit
// first (spec.md §4.7: "merged_generated_subgraphs").
func (t *Transaction) MergedGeneratedSubgraphs(relation string, seedsInPlan, seedsInTransaction []string) []string {
	rel := t.plan.Relation(relation)
	adj := make(map[string][]string)
	for _, v := range rel.Vertices() {
		for _, e := range rel.Out(v) {
			adj[e.Src] = append(adj[e.Src], e.Dst)
		}
	}
	for _, edit := range t.relationEdits {
		if edit.relation != relation {
			continue
		}
		if edit.add {
			adj[edit.src] = append(adj[edit.src], edit.dst)
		} else {
			adj[edit.src] = removeString(adj[edit.src], edit.dst)
		}
	}

	seen := make(map[string]bool)
	var out []string
	var visit func(string)
	visit = func(v string) {
		if seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
		for _, next := range adj[v] {
			visit(next)
		}
	}
	for _, s := range seedsInPlan {
		visit(s)
	}
	for _, s := range seedsInTransaction {
		visit(s)
	}
	return out
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// TaskProxy is the structural stand-in for a plan or transaction-staged
// task (spec.md §4.7): same identity and event lookup as the real task,
// but it never touches the plan directly.
type TaskProxy struct {
	trsc *Transaction
	task *rotask.Task
}

// ID returns the proxied task's identifier.
func (p *TaskProxy) ID() string { return p.task.ID }

// Model returns the proxied task's model name.
func (p *TaskProxy) Model() string { return p.task.Model }

// State returns the proxied task's current lifecycle state.
func (p *TaskProxy) State() rotask.State { return p.task.State() }

// Event returns the proxy for one of the underlying task's named event
// generators.
func (p *TaskProxy) Event(name string) (*EventProxy, bool) {
	gen, ok := p.task.Event(name)
	if !ok {
		return nil, false
	}
	return p.trsc.eventProxyFor(gen), true
}

// EventProxy is the structural stand-in for an event generator reached
// through a TaskProxy. It forbids command invocation (spec.md §4.7:
// "proxies forbid direct command invocation ... fail with
// EventNotExecutable").
type EventProxy struct {
	trsc *Transaction
	gen  *roevent.Generator
}

// Name returns the proxied generator's name.
func (p *EventProxy) Name() string { return p.gen.Name() }

// Call always fails: a transaction is not the executor.
func (p *EventProxy) Call(ctx context.Context, pass *roevent.Pass, ec any) error {
	return roerr.NewEventNotExecutable(roerr.Origin{EventID: p.gen.Name()}, "event reached through a transaction proxy cannot be called")
}

// Signals stages a signal edge from this generator to target, wired on
// the real generators at commit.
func (p *EventProxy) Signals(target *EventProxy) {
	p.trsc.wireEdits = append(p.trsc.wireEdits, wireEdit{kind: wireSignal, src: p.gen, dst: target.gen})
}

// ForwardTo stages a forward edge from this generator to target, wired on
// the real generators at commit.
func (p *EventProxy) ForwardTo(target *EventProxy) {
	p.trsc.wireEdits = append(p.trsc.wireEdits, wireEdit{kind: wireForward, src: p.gen, dst: target.gen})
}
