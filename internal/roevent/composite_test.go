package roevent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// Property 5 (spec.md §8): AndGenerator.emits iff every source has
// emitted since the last reset.
func TestAndGenerator_EmitsOnlyWhenAllSourcesEmitted(t *testing.T) {
	and := NewAndGenerator("and")
	s1 := NewGenerator("s1")
	s2 := NewGenerator("s2")
	and.Subscribe(s1)
	and.Subscribe(s2)

	var emitted bool
	and.On(func(ctx Context, pass *Pass, ec any) error {
		emitted = true
		return nil
	})

	pass := NewPass()
	require.NoError(t, s1.Emit(context.Background(), pass, 1))
	require.NoError(t, pass.Drain(context.Background()))
	require.False(t, emitted, "must not emit until every source has fired")

	require.NoError(t, s2.Emit(context.Background(), pass, 2))
	require.NoError(t, pass.Drain(context.Background()))
	require.True(t, emitted)
}

func TestAndGenerator_UnreachableWhenUnsatisfiedSourceUnreachable(t *testing.T) {
	and := NewAndGenerator("and")
	s1 := NewGenerator("s1")
	s2 := NewGenerator("s2")
	and.Subscribe(s1)
	and.Subscribe(s2)

	s2.MarkUnreachable(errors.New("gone"))
	require.True(t, and.Unreachable())
}

func TestAndGenerator_SatisfiedSourceUnreachableDoesNotPropagate(t *testing.T) {
	and := NewAndGenerator("and")
	s1 := NewGenerator("s1")
	s2 := NewGenerator("s2")
	and.Subscribe(s1)
	and.Subscribe(s2)

	pass := NewPass()
	require.NoError(t, s1.Emit(context.Background(), pass, 1))
	require.NoError(t, pass.Drain(context.Background()))

	s1.MarkUnreachable(errors.New("gone after emitting"))
	require.False(t, and.Unreachable())
}

func TestAndGenerator_RemoveSourceMayTriggerEmission(t *testing.T) {
	and := NewAndGenerator("and")
	s1 := NewGenerator("s1")
	s2 := NewGenerator("s2")
	and.Subscribe(s1)
	and.Subscribe(s2)

	var emitted bool
	and.On(func(ctx Context, pass *Pass, ec any) error {
		emitted = true
		return nil
	})

	pass := NewPass()
	require.NoError(t, s1.Emit(context.Background(), pass, 1))
	require.NoError(t, pass.Drain(context.Background()))
	require.False(t, emitted)

	and.RemoveSource(context.Background(), pass, s2)
	require.NoError(t, pass.Drain(context.Background()))
	require.True(t, emitted)
}

// Property 5 (spec.md §8): OrGenerator emits on the first source emission
// and not again until reset.
func TestOrGenerator_EmitsOnFirstSourceOnly(t *testing.T) {
	or := NewOrGenerator("or")
	s1 := NewGenerator("s1")
	s2 := NewGenerator("s2")
	or.Subscribe(s1)
	or.Subscribe(s2)

	var calls int
	or.On(func(ctx Context, pass *Pass, ec any) error {
		calls++
		return nil
	})

	pass := NewPass()
	require.NoError(t, s1.Emit(context.Background(), pass, 1))
	require.NoError(t, pass.Drain(context.Background()))
	require.NoError(t, s2.Emit(context.Background(), pass, 2))
	require.NoError(t, pass.Drain(context.Background()))

	require.Equal(t, 1, calls)

	or.Reset()
	require.NoError(t, s2.Emit(context.Background(), pass, 3))
	require.NoError(t, pass.Drain(context.Background()))
	require.Equal(t, 2, calls)
}

func TestOrGenerator_UnreachableOnlyWhenAllSourcesUnreachableUnemitted(t *testing.T) {
	or := NewOrGenerator("or")
	s1 := NewGenerator("s1")
	s2 := NewGenerator("s2")
	or.Subscribe(s1)
	or.Subscribe(s2)

	s1.MarkUnreachable(errors.New("gone"))
	require.False(t, or.Unreachable())

	s2.MarkUnreachable(errors.New("gone too"))
	require.True(t, or.Unreachable())
}
