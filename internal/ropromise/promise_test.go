package ropromise

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForComplete(t *testing.T, p *Promise) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !p.Complete() {
		p.Poll(context.Background())
		if p.Complete() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("promise never completed")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestPipeline_ThreadsValueThroughSuccessSteps covers the body -> then ->
// then chain, each step receiving the previous step's return value
// (spec.md §4.6).
func TestPipeline_ThreadsValueThroughSuccessSteps(t *testing.T) {
	p := New(nil, nil, func(ctx context.Context) (any, error) {
		return 1, nil
	})
	p.Then(func(ctx context.Context, value any) (any, error) {
		return value.(int) + 1, nil
	})
	p.Then(func(ctx context.Context, value any) (any, error) {
		return value.(int) * 10, nil
	})

	p.Execute(context.Background())
	waitForComplete(t, p)

	require.Equal(t, Fulfilled, p.State())
	require.Equal(t, 20, p.Value())
}

// TestBefore_PrependsStep confirms Before runs ahead of steps already
// registered (spec.md §4.6: "before (prepends)").
func TestBefore_PrependsStep(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) func(ctx context.Context, value any) (any, error) {
		return func(ctx context.Context, value any) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return value, nil
		}
	}

	p := New(nil, nil, func(ctx context.Context) (any, error) { return nil, nil })
	p.Then(record("second"))
	p.Before(InEngine, record("first"))

	p.Execute(context.Background())
	waitForComplete(t, p)

	require.Equal(t, []string{"first", "second"}, order)
}

// TestRejection_StopsPipelineAndBroadcastsToEveryHandler covers §12's
// resolution: every on_error handler fires once, independently, with the
// original rejection reason (not a chain).
func TestRejection_StopsPipelineAndBroadcastsToEveryHandler(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	var reasons []error
	var mu sync.Mutex
	var stepRan bool

	p := New(nil, nil, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	p.Then(func(ctx context.Context, value any) (any, error) {
		stepRan = true
		return value, nil
	})
	for i := 0; i < 3; i++ {
		p.OnError(InEngine, func(ctx context.Context, reason error) {
			mu.Lock()
			calls++
			reasons = append(reasons, reason)
			mu.Unlock()
		})
	}

	p.Execute(context.Background())
	waitForComplete(t, p)

	require.Equal(t, Rejected, p.State())
	require.Nil(t, p.Value())
	require.Equal(t, boom, p.Reason())
	require.False(t, stepRan, "success steps must not run after rejection")
	require.Equal(t, 3, calls)
	for _, r := range reasons {
		require.Equal(t, boom, r)
	}
}

type fakeSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *fakeSink) AddFrameworkError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// TestRejection_NoHandlerReportsFrameworkError covers "a rejected promise
// with no error handler in the chain contributes a framework error on the
// engine" (spec.md §4.6).
func TestRejection_NoHandlerReportsFrameworkError(t *testing.T) {
	boom := errors.New("boom")
	sink := &fakeSink{}
	p := New(nil, sink, func(ctx context.Context) (any, error) {
		return nil, boom
	})

	p.Execute(context.Background())
	waitForComplete(t, p)

	require.Len(t, sink.errs, 1)
	require.Equal(t, boom, sink.errs[0])
}

// TestPoolDispatch_RunsStepOnPoolAndCompletes covers a step marked InPool
// dispatching through the bounded pool.
func TestPoolDispatch_RunsStepOnPoolAndCompletes(t *testing.T) {
	pool := NewPool(2)
	var ranOnGoroutine bool

	p := New(pool, nil, func(ctx context.Context) (any, error) {
		return 1, nil
	})
	p.OnSuccess(InPool, func(ctx context.Context, value any) (any, error) {
		ranOnGoroutine = true
		return value, nil
	})

	p.Execute(context.Background())
	waitForComplete(t, p)

	require.True(t, ranOnGoroutine)
	require.Equal(t, Fulfilled, p.State())
	require.Equal(t, 1, p.Value())
}

// TestExecute_IsNoOpWhenAlreadyScheduled confirms a second Execute call
// does not re-run the body.
func TestExecute_IsNoOpWhenAlreadyScheduled(t *testing.T) {
	var calls int
	var mu sync.Mutex
	p := New(nil, nil, func(ctx context.Context) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, nil
	})

	p.Execute(context.Background())
	p.Execute(context.Background())
	waitForComplete(t, p)

	require.Equal(t, 1, calls)
}

// TestComplete_FalseWhileUnscheduled confirms Complete reports false for a
// promise that has not been executed, so an un-executed promise
// registered as waiting work does not look finished prematurely.
func TestComplete_FalseWhileUnscheduled(t *testing.T) {
	p := New(nil, nil, func(ctx context.Context) (any, error) { return nil, nil })
	require.False(t, p.Complete())
	require.Equal(t, Unscheduled, p.State())
}
