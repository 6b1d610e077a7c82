package rotask

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roby-engine/roby/internal/roevent"
	"github.com/roby-engine/roby/pkg/roerr"
)

func TestStart_TransitionsThroughStartingToRunning(t *testing.T) {
	task := New("t1", "generic", nil)
	pass := roevent.NewPass()

	require.Equal(t, Pending, task.State())
	require.NoError(t, task.Start(context.Background(), pass, nil))
	require.NoError(t, pass.Drain(context.Background()))
	require.Equal(t, Running, task.State())
}

func TestStart_FailsWhenNotPending(t *testing.T) {
	task := New("t1", "generic", nil)
	pass := roevent.NewPass()
	require.NoError(t, task.Start(context.Background(), pass, nil))
	require.NoError(t, pass.Drain(context.Background()))

	err := task.Start(context.Background(), pass, nil)
	require.Error(t, err)
	var notExecutable *roerr.TaskNotExecutable
	require.ErrorAs(t, err, &notExecutable)
}

func TestStart_FailsOnUnmetNeeds(t *testing.T) {
	task := New("t1", "generic", nil)
	precondition := roevent.NewGenerator("ready")
	task.Needs(precondition)

	err := task.Start(context.Background(), roevent.NewPass(), nil)
	require.Error(t, err)
	var missing *roerr.EventPreconditionFailed
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{"ready"}, missing.Missing)
}

func TestStart_SucceedsOnceNeedsMet(t *testing.T) {
	task := New("t1", "generic", nil)
	precondition := roevent.NewGenerator("ready")
	task.Needs(precondition)

	pass := roevent.NewPass()
	require.NoError(t, precondition.Emit(context.Background(), pass, nil))
	require.NoError(t, pass.Drain(context.Background()))

	require.NoError(t, task.Start(context.Background(), pass, nil))
}

func TestSuccessAndFailed_BothForwardIntoStop(t *testing.T) {
	task := New("t1", "generic", nil)
	pass := roevent.NewPass()
	require.NoError(t, task.Start(context.Background(), pass, nil))
	require.NoError(t, pass.Drain(context.Background()))

	require.NoError(t, task.SuccessEvent().Emit(context.Background(), pass, nil))
	require.NoError(t, pass.Drain(context.Background()))

	require.Equal(t, Succeeded, task.State())
	require.True(t, task.StopEvent().Emitted())
}

func TestFailed_SetsFailedStateNotStopped(t *testing.T) {
	task := New("t1", "generic", nil)
	pass := roevent.NewPass()
	require.NoError(t, task.Start(context.Background(), pass, nil))
	require.NoError(t, pass.Drain(context.Background()))

	require.NoError(t, task.FailedEvent().Emit(context.Background(), pass, errors.New("boom")))
	require.NoError(t, pass.Drain(context.Background()))

	require.Equal(t, Failed, task.State())
	require.True(t, task.StopEvent().Emitted())
}

func TestArguments_AlreadySetFailsOnOverwrite(t *testing.T) {
	task := New("t1", "generic", nil)
	require.NoError(t, task.SetArgument("count", 1))

	err := task.SetArgument("count", 2)
	require.Error(t, err)
	var already *roerr.ArgumentAlreadySet
	require.ErrorAs(t, err, &already)
}

func TestArguments_DelayedCanBeOverwrittenOnce(t *testing.T) {
	task := New("t1", "generic", nil)
	require.NoError(t, task.SetDelayedArgument("count", Custom{Fn: func(*Task) (any, bool) { return nil, false }}))
	require.False(t, task.ArgumentSet("count"))
	require.False(t, task.StaticArguments())

	require.NoError(t, task.SetArgument("count", 5))
	require.True(t, task.ArgumentSet("count"))
	require.True(t, task.StaticArguments())

	value, ok := task.Argument("count")
	require.True(t, ok)
	require.Equal(t, 5, value)
}

func TestQuarantine_BlocksFurtherStart(t *testing.T) {
	task := New("t1", "generic", nil)
	task.Quarantine()
	require.True(t, task.Quarantined())

	err := task.Start(context.Background(), roevent.NewPass(), nil)
	require.Error(t, err)
}

func TestHandleException_ReverseDeclarationOrder(t *testing.T) {
	task := New("t1", "generic", nil)
	var order []string
	task.OnException(func(error) bool { return true }, func(ctx context.Context, execErr error) (ExceptionOutcome, error) {
		order = append(order, "first")
		return Pass, nil
	})
	task.OnException(func(error) bool { return true }, func(ctx context.Context, execErr error) (ExceptionOutcome, error) {
		order = append(order, "second")
		return Handled, nil
	})

	handled, raised := task.HandleException(context.Background(), errors.New("x"))
	require.True(t, handled)
	require.NoError(t, raised)
	require.Equal(t, []string{"second"}, order)
}

func TestHandleException_UnhandledWhenAllPass(t *testing.T) {
	task := New("t1", "generic", nil)
	task.OnException(func(error) bool { return true }, func(ctx context.Context, execErr error) (ExceptionOutcome, error) {
		return Pass, nil
	})

	handled, raised := task.HandleException(context.Background(), errors.New("x"))
	require.False(t, handled)
	require.NoError(t, raised)
}

func TestModel_InstantiateWiresCustomEventsAndForwards(t *testing.T) {
	model := NewModel("worker").
		Event("progress", false, false, nil).
		Forward("progress", "success").
		Argument("retries", 3)

	task := model.Instantiate("w1")
	progress, ok := task.Event("progress")
	require.True(t, ok)

	pass := roevent.NewPass()
	require.NoError(t, task.Start(context.Background(), pass, nil))
	require.NoError(t, pass.Drain(context.Background()))

	require.NoError(t, progress.Emit(context.Background(), pass, nil))
	require.NoError(t, pass.Drain(context.Background()))

	require.Equal(t, Succeeded, task.State())
	value, ok := task.Argument("retries")
	require.True(t, ok)
	require.Equal(t, 3, value)
}
