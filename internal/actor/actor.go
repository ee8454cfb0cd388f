// Package actor runs a single-goroutine event loop around a pure reducer.
//
// All mutable state of a session is owned by the loop goroutine. Callers and
// background work never touch it directly: they enqueue inputs, the reducer
// computes the next state plus a list of declarative effects, and a Runtime
// carries the effects out (asynchronously) and reports back with new inputs.
package actor

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrStopped is returned when an input is offered to a stopped actor.
	ErrStopped = errors.New("actor stopped")
	// ErrMailboxFull is returned when the mailbox cannot accept more inputs.
	ErrMailboxFull = errors.New("actor mailbox full")
)

// Input is anything the reducer consumes: runtime events or caller commands.
type Input interface {
	isActorInput()
}

// Effect is a side-effect described as data. Only the Runtime executes it.
type Effect interface {
	isActorEffect()
}

// ReducerFunc computes the next state for one input.
//
// Reducers must not perform I/O, spawn goroutines, read the clock or mint
// random identifiers; those values arrive inside inputs.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and feeds results back through emit.
type Runtime interface {
	// HandleEffects must return quickly. Blocking work runs in goroutines
	// that stop emitting once ctx is done. emit waits for mailbox space, so
	// it must only be called from those goroutines, never from
	// HandleEffects itself.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop releases background work. It may be called more than once.
	Stop()
}

// Hooks observe the loop. All hooks run on the loop goroutine.
type Hooks[S any] struct {
	OnInput      func(input Input)
	OnTransition func(prev S, next S, input Input)
	OnEffects    func(effects []Effect)
	// OnPanic receives a recovered panic. When nil the panic propagates.
	OnPanic func(recovered any)
}

// Actor owns a state value of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	mu    sync.RWMutex
	state S

	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	start  sync.Once
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks installs observability hooks.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize overrides the default mailbox capacity of 512.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.inbox = make(chan Input, n)
		}
	}
}

// New returns an actor that has not been started yet.
func New[S any](initial S, reducer ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, 512),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the loop goroutine. Subsequent calls do nothing.
func (a *Actor[S]) Start() {
	a.start.Do(func() { go a.loop() })
}

// Stop cancels the loop and the runtime. Safe to call repeatedly.
func (a *Actor[S]) Stop() {
	a.cancel()
	if a.runtime != nil {
		a.runtime.Stop()
	}
}

// Done is closed once the loop goroutine has returned.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Enqueue offers an input to the mailbox without blocking.
func (a *Actor[S]) Enqueue(input Input) error {
	if input == nil {
		return nil
	}
	select {
	case <-a.ctx.Done():
		return ErrStopped
	default:
	}
	select {
	case a.inbox <- input:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Send offers an input, waiting for mailbox space. It gives up when ctx is
// done or the actor stops. Inputs from one goroutine keep their order.
func (a *Actor[S]) Send(ctx context.Context, input Input) error {
	if input == nil {
		return nil
	}
	select {
	case <-a.ctx.Done():
		return ErrStopped
	default:
	}
	select {
	case a.inbox <- input:
		return nil
	case <-a.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the latest committed state. States are treated as immutable
// values by the reducer, so the returned copy is safe to read.
func (a *Actor[S]) State() S {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Actor[S]) loop() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			if a.hooks.OnPanic == nil {
				panic(r)
			}
			a.hooks.OnPanic(r)
		}
	}()

	emit := func(in Input) { _ = a.Send(a.ctx, in) }

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			a.step(in, emit)
		}
	}
}

func (a *Actor[S]) step(in Input, emit func(Input)) {
	if in == nil {
		return
	}
	if a.hooks.OnInput != nil {
		a.hooks.OnInput(in)
	}

	prev := a.State()
	next, effects := a.reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.hooks.OnTransition != nil {
		a.hooks.OnTransition(prev, next, in)
	}
	if len(effects) == 0 {
		return
	}
	if a.hooks.OnEffects != nil {
		a.hooks.OnEffects(effects)
	}
	if a.runtime != nil {
		a.runtime.HandleEffects(a.ctx, effects, emit)
	}
}
