package roevent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPass_QueueMergesBeforeTake(t *testing.T) {
	g := NewGenerator("ev")
	p := NewPass()

	p.QueueEmit(g, "a")
	p.QueueEmit(g, "b")

	require.Equal(t, []*Generator{g}, p.Pending())
	entry, ok := p.Take(g)
	require.True(t, ok)
	require.Equal(t, []any{"a", "b"}, entry.EmitContexts)
	require.True(t, p.Empty())
}

func TestPass_TakeClearsAlreadyQueuedFlag(t *testing.T) {
	g := NewGenerator("ev")
	p := NewPass()

	p.QueueEmit(g, "a")
	first, _ := p.Take(g)
	require.Equal(t, []any{"a"}, first.EmitContexts)

	p.QueueEmit(g, "b")
	second, ok := p.Peek(g)
	require.True(t, ok)
	require.Equal(t, []any{"b"}, second.EmitContexts)
	require.NotEqual(t, first.StepID, second.StepID)
}

func TestPass_DrainEmptyIsNoop(t *testing.T) {
	p := NewPass()
	require.NoError(t, p.Drain(context.Background()))
	require.True(t, p.Empty())
}

func TestMergeContexts(t *testing.T) {
	require.Nil(t, mergeContexts(nil))
	require.Equal(t, "x", mergeContexts([]any{"x"}))
	require.Equal(t, []any{"x", "y"}, mergeContexts([]any{"x", "y"}))
}
