// Package roconfig loads plan definitions from YAML (spec.md §6: "No
// on-disk format is defined by the core" — this is scaffolding for the
// demo CLI and fixture-driven tests, not part of the engine core). A
// definition names tasks, their model and arguments, mission/permanent
// membership, and the typed relation edges between them; LoadPlan turns
// one into a ready-to-run *roplan.Plan.
package roconfig

// PlanDefinition is the top-level document describing one plan.
type PlanDefinition struct {
	Version     string              `yaml:"version" validate:"required,semver"`
	Name        string              `yaml:"name" validate:"required,min=1,max=100"`
	Description string              `yaml:"description,omitempty"`
	Settings    Settings            `yaml:"settings,omitempty"`
	Tasks       []TaskDefinition    `yaml:"tasks" validate:"required,min=1,dive"`
	Relations   []RelationDefinition `yaml:"relations,omitempty" validate:"omitempty,dive"`
}

// Settings holds engine-level parameters a loaded plan is driven with.
type Settings struct {
	CyclePeriodMS int  `yaml:"cycle_period_ms,omitempty" validate:"omitempty,min=1,max=3600000"`
	DeadZoneMS    int  `yaml:"dead_zone_ms,omitempty" validate:"omitempty,min=0,max=3600000"`
	Verbose       bool `yaml:"verbose,omitempty"`
}

// TaskDefinition describes one task instance to instantiate.
type TaskDefinition struct {
	ID        string         `yaml:"id" validate:"required,task_id"`
	Model     string         `yaml:"model" validate:"required,model_name"`
	Mission   bool           `yaml:"mission,omitempty"`
	Permanent bool           `yaml:"permanent,omitempty"`
	Abstract  bool           `yaml:"abstract,omitempty"`
	Arguments map[string]any `yaml:"arguments,omitempty"`
}

// RelationDefinition describes one typed edge. dependency/planned_by/
// error_handling link tasks directly, through the plan's own named
// relation graphs; signal/forward/precedence link one task's event
// generator to another's (from_event/to_event name a standard event —
// start, success, stop, failed, updated_data — or a model-declared
// custom event, defaulting to "start" when omitted).
type RelationDefinition struct {
	Type      string `yaml:"type" validate:"required,oneof=dependency signal forward precedence planned_by error_handling"`
	From      string `yaml:"from" validate:"required"`
	To        string `yaml:"to" validate:"required,nefield=From"`
	FromEvent string `yaml:"from_event,omitempty"`
	ToEvent   string `yaml:"to_event,omitempty"`
	Payload   string `yaml:"payload,omitempty"`
}

// TaskMap builds a lookup table for task definitions by ID.
func TaskMap(tasks []TaskDefinition) map[string]TaskDefinition {
	out := make(map[string]TaskDefinition, len(tasks))
	for _, task := range tasks {
		out[task.ID] = task
	}
	return out
}
