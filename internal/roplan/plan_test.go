package roplan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/internal/rotask"
)

func TestAdd_IndexesByModelAndState(t *testing.T) {
	p := New()
	task := rotask.New("t1", "worker", nil)
	p.Add(task)

	require.Equal(t, []string{"t1"}, p.TasksByModel("worker"))
	require.Equal(t, []string{"t1"}, p.TasksByState(rotask.Pending))
}

func TestAdd_StateIndexFollowsTransitions(t *testing.T) {
	p := New()
	task := rotask.New("t1", "worker", nil)
	p.Add(task)

	pass := roevent.NewPass()
	require.NoError(t, task.Start(context.Background(), pass, nil))
	require.NoError(t, pass.Drain(context.Background()))

	require.Empty(t, p.TasksByState(rotask.Pending))
	require.Equal(t, []string{"t1"}, p.TasksByState(rotask.Running))
}

// Property 1 (spec.md §8): a task is GC-collectable iff it is not
// reachable from any mission/permanent task via strong relations and is
// not a repair target.
func TestCollectable_FollowsDependencyChain(t *testing.T) {
	p := New()
	mission := rotask.New("m", "worker", nil)
	child := rotask.New("c", "worker", nil)
	orphan := rotask.New("o", "worker", nil)

	p.AddMissionTask(mission)
	p.Add(child)
	p.Add(orphan)

	require.NoError(t, p.Relation(DependencyRelation).Link(mission.ID, child.ID, nil))

	require.False(t, p.Collectable(mission.ID))
	require.False(t, p.Collectable(child.ID))
	require.True(t, p.Collectable(orphan.ID))
}

func TestCollectable_UnmarkMissionFreesDescendants(t *testing.T) {
	p := New()
	mission := rotask.New("m", "worker", nil)
	child := rotask.New("c", "worker", nil)
	p.AddMissionTask(mission)
	p.Add(child)
	require.NoError(t, p.Relation(DependencyRelation).Link(mission.ID, child.ID, nil))

	p.UnmarkMission(mission.ID)

	require.True(t, p.Collectable(mission.ID))
	require.True(t, p.Collectable(child.ID))
}

func TestCollectable_RepairTaskIsNeverCollectable(t *testing.T) {
	p := New()
	repair := rotask.New("r", "worker", nil)
	p.Add(repair)
	p.AddRepair("failed:somewhere", repair.ID)

	require.False(t, p.Collectable(repair.ID))
}

func TestRemoveTask_ClearsIndicesAndRelations(t *testing.T) {
	p := New()
	task := rotask.New("t1", "worker", nil)
	p.Add(task)
	require.NoError(t, p.Relation(DependencyRelation).Link(task.ID, "ghost", nil))

	p.RemoveTask(task.ID)

	_, ok := p.Task(task.ID)
	require.False(t, ok)
	require.Empty(t, p.TasksByModel("worker"))
	require.False(t, p.Relation(DependencyRelation).Has(task.ID))
}

// Resolves SPEC_FULL.md §12: a repair keyed on failed also covers stop.
func TestRepairsFor_FailedCoversStop(t *testing.T) {
	p := New()
	task := rotask.New("t1", "worker", nil)
	p.Add(task)

	p.AddRepair(task.FailedEvent().Name(), "repair-task")

	repairs := p.RepairsFor(task.StopEvent().Name())
	require.Equal(t, map[string]string{task.FailedEvent().Name(): "repair-task"}, repairs)
}

func TestRepairsFor_NoMatchReturnsEmpty(t *testing.T) {
	p := New()
	task := rotask.New("t1", "worker", nil)
	p.Add(task)

	require.Empty(t, p.RepairsFor(task.StopEvent().Name()))
}

func TestCheckStructure_ConcatenatesViolations(t *testing.T) {
	p := New()
	p.AddStructureCheck(func(p *Plan) []StructureViolation {
		return []StructureViolation{{Exception: errors.New("a"), AffectedTasks: []string{"t1"}}}
	})
	p.AddStructureCheck(func(p *Plan) []StructureViolation {
		return []StructureViolation{{Exception: errors.New("b"), AffectedTasks: []string{"t2"}}}
	})

	violations := p.CheckStructure()
	require.Len(t, violations, 2)
}

func TestHandleException_ReverseOrderAndPlanFallback(t *testing.T) {
	p := New()
	var order []string
	p.OnException(func(error) bool { return true }, func(ctx context.Context, execErr error) (bool, error) {
		order = append(order, "first")
		return false, nil
	})
	p.OnException(func(error) bool { return true }, func(ctx context.Context, execErr error) (bool, error) {
		order = append(order, "second")
		return true, nil
	})

	handled, raised := p.HandleException(context.Background(), errors.New("x"))
	require.True(t, handled)
	require.NoError(t, raised)
	require.Equal(t, []string{"second"}, order)
}

func TestFreeEvents_AddAndRemove(t *testing.T) {
	p := New()
	p.AddFreeEvent("ready", nil)
	require.Len(t, p.FreeEvents(), 1)

	p.RemoveFreeEvent("ready")
	require.Empty(t, p.FreeEvents())
}
