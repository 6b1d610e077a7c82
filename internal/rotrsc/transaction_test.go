package rotrsc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roby-engine/roby/internal/roplan"
	"github.com/roby-engine/roby/internal/rotask"
)

// TestCommit_AddsTaskAndWiresSignal is scenario S5: a transaction adds a
// new task and connects its stop event to an existing task's start via
// signal; after commit the new task is in the plan and the signal edge
// exists on the real generators.
func TestCommit_AddsTaskAndWiresSignal(t *testing.T) {
	p := roplan.New()
	t1 := rotask.New("t1", "worker", nil)
	t2 := rotask.New("t2", "worker", nil)
	p.Add(t1)
	p.Add(t2)
	t1.StartEvent().Signals(t2.StopEvent())

	trsc := New(p)
	t1Proxy, ok := trsc.Get("t1")
	require.True(t, ok)
	startProxy, ok := t1Proxy.Event("start")
	require.True(t, ok)

	t3 := rotask.New("t3", "worker", nil)
	t3Proxy := trsc.Add(t3)
	stopProxy, ok := t3Proxy.Event("stop")
	require.True(t, ok)

	stopProxy.Signals(startProxy)

	require.NoError(t, trsc.Commit())

	_, ok = p.Task("t3")
	require.True(t, ok)

	var found bool
	for _, target := range t3.StopEvent().SignalTargets() {
		if target == t1.StartEvent() {
			found = true
		}
	}
	require.True(t, found, "T3.stop must signal T1.start after commit")
}

// TestDiscard_LeavesPlanUnchanged covers property 3 (spec.md §8): a
// discarded transaction's staged edits never reach the plan.
func TestDiscard_LeavesPlanUnchanged(t *testing.T) {
	p := roplan.New()
	t1 := rotask.New("t1", "worker", nil)
	p.Add(t1)

	trsc := New(p)
	t3 := rotask.New("t3", "worker", nil)
	trsc.Add(t3)
	trsc.Remove("t1")

	trsc.Discard()

	_, ok := p.Task("t3")
	require.False(t, ok)
	_, ok = p.Task("t1")
	require.True(t, ok)
}

// TestCommit_RemovesTaskAndRelation covers "removing a relation in the
// transaction removes it in the plan on commit, even when both endpoints
// are plan tasks" (spec.md §4.7).
func TestCommit_RemovesTaskAndRelation(t *testing.T) {
	p := roplan.New()
	parent := rotask.New("parent", "worker", nil)
	child := rotask.New("child", "worker", nil)
	p.Add(parent)
	p.Add(child)
	require.NoError(t, p.Relation(roplan.DependencyRelation).Link("parent", "child", nil))

	trsc := New(p)
	parentProxy, _ := trsc.Get("parent")
	childProxy, _ := trsc.Get("child")
	trsc.UnlinkRelation(roplan.DependencyRelation, parentProxy, childProxy)

	require.NoError(t, trsc.Commit())
	require.False(t, p.Relation(roplan.DependencyRelation).Linked("parent", "child"))
}

// TestCommit_MissionOverlayAppliesToNewTask confirms a transaction can mark
// a newly-added task a mission so it lands in the plan's mission set on
// commit in one step.
func TestCommit_MissionOverlayAppliesToNewTask(t *testing.T) {
	p := roplan.New()
	trsc := New(p)

	task := rotask.New("m", "worker", nil)
	trsc.Add(task)
	trsc.MarkMission("m")

	require.NoError(t, trsc.Commit())
	require.True(t, p.IsMission("m"))
}

// TestEventProxy_CallFailsNotExecutable covers "proxies forbid direct
// command invocation ... fail with EventNotExecutable" (spec.md §4.7).
func TestEventProxy_CallFailsNotExecutable(t *testing.T) {
	p := roplan.New()
	task := rotask.New("t1", "worker", nil)
	p.Add(task)

	trsc := New(p)
	proxy, _ := trsc.Get("t1")
	startProxy, ok := proxy.Event("start")
	require.True(t, ok)

	err := startProxy.Call(nil, nil, nil)
	require.Error(t, err)
}

// TestMergedGeneratedSubgraphs_IncludesStagedEdge confirms a relation edge
// staged but not yet committed is visible to
// merged_generated_subgraphs (spec.md §4.7).
func TestMergedGeneratedSubgraphs_IncludesStagedEdge(t *testing.T) {
	p := roplan.New()
	root := rotask.New("root", "worker", nil)
	p.Add(root)

	trsc := New(p)
	rootProxy, _ := trsc.Get("root")
	child := rotask.New("child", "worker", nil)
	childProxy := trsc.Add(child)
	trsc.LinkRelation(roplan.DependencyRelation, rootProxy, childProxy, nil)

	reachable := trsc.MergedGeneratedSubgraphs(roplan.DependencyRelation, []string{"root"}, nil)
	require.Contains(t, reachable, "root")
	require.Contains(t, reachable, "child")
}

// TestGetExisting_OnlyReturnsAlreadyCreatedProxy covers `trsc[task, false]`.
func TestGetExisting_OnlyReturnsAlreadyCreatedProxy(t *testing.T) {
	p := roplan.New()
	task := rotask.New("t1", "worker", nil)
	p.Add(task)

	trsc := New(p)
	_, ok := trsc.GetExisting("t1")
	require.False(t, ok)

	trsc.Get("t1")
	_, ok = trsc.GetExisting("t1")
	require.True(t, ok)
}
