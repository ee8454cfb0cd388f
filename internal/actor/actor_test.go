package actor_test

import (
	"context"
	"testing"
	"time"

	"github.com/brandwork/desk/internal/actor"
	"github.com/brandwork/desk/internal/actor/actortest"
	"github.com/stretchr/testify/require"
)

type addInput struct {
	actor.InputBase
	n int
}

type addedEffect struct {
	actor.EffectBase
	n int
}

func sumReducer(state int, input actor.Input) (int, []actor.Effect) {
	in, ok := input.(addInput)
	if !ok {
		return state, nil
	}
	return state + in.n, []actor.Effect{addedEffect{n: in.n}}
}

func TestActorAppliesInputsInOrder(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	a := actor.New[int](0, sumReducer, rt)
	a.Start()
	defer a.Stop()

	for i := 1; i <= 5; i++ {
		require.NoError(t, a.Enqueue(addInput{n: i}))
	}

	require.Eventually(t, func() bool { return a.State() == 15 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(rt.Effects()) == 5 }, 2*time.Second, 5*time.Millisecond)

	effects := rt.Effects()
	for i, eff := range effects {
		require.Equal(t, i+1, eff.(addedEffect).n)
	}
}

func TestActorEmitFeedsBackIntoMailbox(t *testing.T) {
	t.Parallel()

	type echo struct {
		actor.InputBase
	}
	rt := &actortest.FakeRuntime{}
	reducer := func(state int, input actor.Input) (int, []actor.Effect) {
		switch in := input.(type) {
		case addInput:
			return state + in.n, []actor.Effect{addedEffect{n: in.n}}
		case echo:
			return state * 2, nil
		}
		return state, nil
	}
	rt.EmitFn = func(_ context.Context, _ actor.Effect, emit func(actor.Input)) {
		emit(echo{})
	}

	a := actor.New[int](0, reducer, rt)
	a.Start()
	defer a.Stop()

	require.NoError(t, a.Enqueue(addInput{n: 3}))
	require.Eventually(t, func() bool { return a.State() == 6 }, 2*time.Second, 5*time.Millisecond)
}

func TestActorRejectsInputsAfterStop(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, nil)
	a.Start()
	a.Stop()

	<-a.Done()
	require.ErrorIs(t, a.Enqueue(addInput{n: 1}), actor.ErrStopped)
}

func TestActorReportsFullMailbox(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, nil, actor.WithMailboxSize[int](1))
	// Not started: the single slot fills and the next offer is refused.
	require.NoError(t, a.Enqueue(addInput{n: 1}))
	require.ErrorIs(t, a.Enqueue(addInput{n: 1}), actor.ErrMailboxFull)
	a.Stop()
}

func TestActorSendWaitsForMailboxSpace(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, nil, actor.WithMailboxSize[int](1))
	require.NoError(t, a.Enqueue(addInput{n: 1}))

	sent := make(chan error, 1)
	go func() { sent <- a.Send(context.Background(), addInput{n: 2}) }()

	select {
	case err := <-sent:
		t.Fatalf("send returned before the mailbox drained: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	a.Start()
	defer a.Stop()
	require.NoError(t, <-sent)
	require.Eventually(t, func() bool { return a.State() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestActorSendGivesUp(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, nil, actor.WithMailboxSize[int](1))
	require.NoError(t, a.Enqueue(addInput{n: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, a.Send(ctx, addInput{n: 1}), context.DeadlineExceeded)

	a.Stop()
	require.ErrorIs(t, a.Send(context.Background(), addInput{n: 1}), actor.ErrStopped)
}
