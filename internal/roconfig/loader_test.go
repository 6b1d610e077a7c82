package roconfig

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roby-engine/roby/internal/roplan"
)

func sampleDefinition() *PlanDefinition {
	return &PlanDefinition{
		Version: "1.0.0",
		Name:    "demo-plan",
		Tasks: []TaskDefinition{
			{ID: "probe", Model: "roby.SensorProbe", Mission: true, Arguments: map[string]any{"sensor": "front_lidar"}},
			{ID: "drive", Model: "roby.DriveTo"},
		},
		Relations: []RelationDefinition{
			{Type: "dependency", From: "probe", To: "drive"},
			{Type: "signal", From: "probe", To: "drive", FromEvent: "success", ToEvent: "start"},
		},
	}
}

func TestLoadPlan_BuildsTasksAndWiresRelations(t *testing.T) {
	plan, err := LoadPlan(sampleDefinition())
	require.NoError(t, err)

	probe, ok := plan.Task("probe")
	require.True(t, ok)
	drive, ok := plan.Task("drive")
	require.True(t, ok)

	require.True(t, plan.IsMission("probe"))
	require.True(t, plan.Relation(roplan.DependencyRelation).Linked("probe", "drive"))

	var signalled bool
	for _, target := range probe.SuccessEvent().SignalTargets() {
		if target == drive.StartEvent() {
			signalled = true
		}
	}
	require.True(t, signalled)
}

func TestLoadPlan_AppliesTaskArguments(t *testing.T) {
	plan, err := LoadPlan(sampleDefinition())
	require.NoError(t, err)

	task, _ := plan.Task("probe")
	value, ok := task.Argument("sensor")
	require.True(t, ok)
	require.Equal(t, "front_lidar", value)
}

func TestValidatePlanDefinition_RejectsDuplicateTaskID(t *testing.T) {
	def := sampleDefinition()
	def.Tasks = append(def.Tasks, TaskDefinition{ID: "probe", Model: "roby.SensorProbe"})

	err := ValidatePlanDefinition(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate task id")
}

func TestValidatePlanDefinition_RejectsUnknownRelationEndpoint(t *testing.T) {
	def := sampleDefinition()
	def.Relations = append(def.Relations, RelationDefinition{Type: "dependency", From: "probe", To: "ghost"})

	err := ValidatePlanDefinition(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown task")
}

func TestValidatePlanDefinition_RejectsDependencyCycle(t *testing.T) {
	def := sampleDefinition()
	def.Relations = append(def.Relations, RelationDefinition{Type: "dependency", From: "drive", To: "probe"})

	err := ValidatePlanDefinition(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestValidatePlanDefinition_RejectsBadTaskID(t *testing.T) {
	def := sampleDefinition()
	def.Tasks[0].ID = "Not Valid!"

	err := ValidatePlanDefinition(def)
	require.Error(t, err)
}

func TestValidatePlanDefinition_RejectsMissingVersion(t *testing.T) {
	def := sampleDefinition()
	def.Version = ""

	err := ValidatePlanDefinition(def)
	require.Error(t, err)
}
