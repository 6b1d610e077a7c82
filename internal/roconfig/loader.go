package roconfig

import (
	"fmt"

	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/internal/roplan"
	"github.com/roby-engine/roby/internal/rotask"
)

// LoadPlan validates def and instantiates a *roplan.Plan from it: one
// rotask.Task per TaskDefinition (with its arguments set and mission/
// permanent/abstract flags applied), then every relation edge wired —
// dependency/planned_by/error_handling onto the plan's own named relation
// graphs, signal/forward onto the named event generators, and precedence
// onto a "precedence" plan relation keyed by generator name.
func LoadPlan(def *PlanDefinition) (*roplan.Plan, error) {
	if err := ValidatePlanDefinition(def); err != nil {
		return nil, err
	}

	plan := roplan.New()
	tasks := make(map[string]*rotask.Task, len(def.Tasks))

	for _, td := range def.Tasks {
		task := rotask.New(td.ID, td.Model, nil)
		task.SetAbstract(td.Abstract)
		for key, value := range td.Arguments {
			if err := task.SetArgument(key, value); err != nil {
				return nil, err
			}
		}
		tasks[td.ID] = task

		switch {
		case td.Mission:
			plan.AddMissionTask(task)
		case td.Permanent:
			plan.AddPermanentTask(task)
		default:
			plan.Add(task)
		}
	}

	for _, rel := range def.Relations {
		if err := wireRelation(plan, tasks, rel); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

func wireRelation(plan *roplan.Plan, tasks map[string]*rotask.Task, rel RelationDefinition) error {
	switch rel.Type {
	case "dependency", "planned_by", "error_handling":
		var payload any
		if rel.Payload != "" {
			payload = rel.Payload
		}
		return plan.Relation(rel.Type).Link(rel.From, rel.To, payload)
	case "signal", "forward", "precedence":
		src, err := eventFor(tasks, rel.From, rel.FromEvent)
		if err != nil {
			return err
		}
		dst, err := eventFor(tasks, rel.To, rel.ToEvent)
		if err != nil {
			return err
		}
		switch rel.Type {
		case "signal":
			src.Signals(dst)
		case "forward":
			src.ForwardTo(dst)
		case "precedence":
			return plan.Relation("precedence").Link(src.Name(), dst.Name(), nil)
		}
		return nil
	default:
		return fmt.Errorf("unknown relation type %q", rel.Type)
	}
}

func eventFor(tasks map[string]*rotask.Task, taskID, eventName string) (*roevent.Generator, error) {
	task, ok := tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("relation references unknown task %q", taskID)
	}
	if eventName == "" {
		eventName = "start"
	}
	ev, ok := task.Event(eventName)
	if !ok {
		return nil, fmt.Errorf("task %q has no event %q", taskID, eventName)
	}
	return ev, nil
}
