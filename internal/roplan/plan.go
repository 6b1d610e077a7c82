// Package roplan implements the plan (spec.md §4.4): the container of
// tasks and free events, their relation graphs, the mission/permanent
// sets, and the indices and structure checks the execution engine drives
// each cycle.
package roplan

import (
	"strings"

	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/internal/rograph"
	"github.com/roby-engine/roby/internal/rotask"
)

// DependencyRelation is the strong relation garbage collection and
// exception propagation walk (spec.md §4.5.3, §4.5.4): "task T depends on
// its children", edges point from a parent task to the children it
// requires.
const DependencyRelation = "dependency"

// Plan owns every task and free event in a run, their relation graphs,
// and the mission/permanent sets that anchor garbage collection.
type Plan struct {
	tasks      map[string]*rotask.Task
	freeEvents map[string]*FreeEvent

	missions   map[string]bool
	permanents map[string]bool

	relations map[string]*rograph.Graph[string]

	repairs map[string]string // trigger event full name -> repair task ID

	structureChecks []StructureCheck

	exceptionHandlers []PlanExceptionHandler

	byModel map[string]map[string]bool
	byState map[rotask.State]map[string]bool
}

// FreeEvent is a named event generator not owned by any task.
type FreeEvent struct {
	Name      string
	Generator *roevent.Generator
	Permanent bool
}

// New creates an empty plan.
func New() *Plan {
	return &Plan{
		tasks:      make(map[string]*rotask.Task),
		freeEvents: make(map[string]*FreeEvent),
		missions:   make(map[string]bool),
		permanents: make(map[string]bool),
		relations:  make(map[string]*rograph.Graph[string]),
		repairs:    make(map[string]string),
		byModel:    make(map[string]map[string]bool),
		byState:    make(map[rotask.State]map[string]bool),
	}
}

// Relation returns the named relation graph, creating it (strong) on
// first use.
func (p *Plan) Relation(name string) *rograph.Graph[string] {
	g, ok := p.relations[name]
	if !ok {
		g = rograph.NewGraph[string](name, true)
		p.relations[name] = g
	}
	return g
}

// Add inserts task into the plan: it is indexed by model and state, and
// its state-change callback is wired to keep the state index current
// (spec.md §4.3: "the task's state index is updated in the plan
// atomically with emission").
func (p *Plan) Add(task *rotask.Task) {
	if _, exists := p.tasks[task.ID]; exists {
		return
	}
	p.tasks[task.ID] = task
	p.indexModel(task)
	p.indexState(task.ID, task.State())

	task.OnStateChange(func(from, to rotask.State) {
		p.moveStateIndex(task.ID, from, to)
	})
}

// AddMissionTask adds task (if not already present) and marks it a
// mission: its failure is an error event and it anchors garbage
// collection.
func (p *Plan) AddMissionTask(task *rotask.Task) {
	p.Add(task)
	p.missions[task.ID] = true
}

// AddPermanentTask adds task (if not already present) and marks it
// permanent: it anchors garbage collection but its failure is non-fatal.
func (p *Plan) AddPermanentTask(task *rotask.Task) {
	p.Add(task)
	p.permanents[task.ID] = true
}

// UnmarkMission removes id from the mission set.
func (p *Plan) UnmarkMission(id string) { delete(p.missions, id) }

// UnmarkPermanent removes id from the permanent set.
func (p *Plan) UnmarkPermanent(id string) { delete(p.permanents, id) }

// IsMission reports whether id is currently a mission.
func (p *Plan) IsMission(id string) bool { return p.missions[id] }

// IsPermanent reports whether id is currently permanent.
func (p *Plan) IsPermanent(id string) bool { return p.permanents[id] }

// Task looks up a task by ID.
func (p *Plan) Task(id string) (*rotask.Task, bool) {
	t, ok := p.tasks[id]
	return t, ok
}

// Tasks returns every task currently in the plan.
func (p *Plan) Tasks() []*rotask.Task {
	out := make([]*rotask.Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t)
	}
	return out
}

// TasksByModel returns the IDs of every task instantiated from model.
func (p *Plan) TasksByModel(model string) []string {
	return setKeys(p.byModel[model])
}

// TasksByState returns the IDs of every task currently in state.
func (p *Plan) TasksByState(state rotask.State) []string {
	return setKeys(p.byState[state])
}

// RemoveTask removes task id from the plan: all relations, indices, and
// the mission/permanent sets.
func (p *Plan) RemoveTask(id string) {
	task, ok := p.tasks[id]
	if !ok {
		return
	}
	for _, rel := range p.relations {
		rel.Remove(id)
	}
	delete(p.byModel[task.Model], id)
	delete(p.byState[task.State()], id)
	delete(p.missions, id)
	delete(p.permanents, id)
	delete(p.tasks, id)
}

// AddFreeEvent registers a free event (one not owned by a task) under
// name.
func (p *Plan) AddFreeEvent(name string, gen *roevent.Generator) {
	p.freeEvents[name] = &FreeEvent{Name: name, Generator: gen}
}

// AddPermanentEvent registers a free event that garbage collection must
// never drop, regardless of reachability.
func (p *Plan) AddPermanentEvent(name string, gen *roevent.Generator) {
	p.freeEvents[name] = &FreeEvent{Name: name, Generator: gen, Permanent: true}
}

// RemoveFreeEvent drops a free event from the plan.
func (p *Plan) RemoveFreeEvent(name string) {
	delete(p.freeEvents, name)
}

// FreeEvents returns every free event currently registered.
func (p *Plan) FreeEvents() []*FreeEvent {
	out := make([]*FreeEvent, 0, len(p.freeEvents))
	for _, fe := range p.freeEvents {
		out = append(out, fe)
	}
	return out
}

func (p *Plan) indexModel(task *rotask.Task) {
	set, ok := p.byModel[task.Model]
	if !ok {
		set = make(map[string]bool)
		p.byModel[task.Model] = set
	}
	set[task.ID] = true
}

func (p *Plan) indexState(id string, state rotask.State) {
	set, ok := p.byState[state]
	if !ok {
		set = make(map[string]bool)
		p.byState[state] = set
	}
	set[id] = true
}

func (p *Plan) moveStateIndex(id string, from, to rotask.State) {
	if set, ok := p.byState[from]; ok {
		delete(set, id)
	}
	p.indexState(id, to)
}

// Collectable implements property 1 (spec.md §8): task id is
// GC-collectable iff it is not a mission or permanent, is not
// transitively required by a mission/permanent through the strong
// dependency relation, and is not currently a repair task.
func (p *Plan) Collectable(id string) bool {
	if p.missions[id] || p.permanents[id] {
		return false
	}
	if p.isRepairTask(id) {
		return false
	}
	dep := p.Relation(DependencyRelation)
	if !dep.Has(id) {
		return true
	}
	for _, ancestor := range dep.Reverse().Ancestors(id) {
		if p.missions[ancestor] || p.permanents[ancestor] {
			return false
		}
	}
	return true
}

func (p *Plan) isRepairTask(id string) bool {
	for _, repairTaskID := range p.repairs {
		if repairTaskID == id {
			return true
		}
	}
	return false
}

func setKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func taskIDFromEventName(eventName string) string {
	idx := strings.Index(eventName, ":")
	if idx < 0 {
		return eventName
	}
	return eventName[idx+1:]
}
