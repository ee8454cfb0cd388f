// Package actortest holds fakes for exercising actors in tests.
package actortest

import (
	"context"
	"sync"
	"time"

	"github.com/brandwork/desk/internal/actor"
)

// FakeRuntime records every effect it is handed. When EmitFn is set it is
// called per effect, on a background goroutine as a real runtime would, so
// a test can answer with follow-up inputs.
type FakeRuntime struct {
	mu      sync.Mutex
	effects []actor.Effect
	wg      sync.WaitGroup

	EmitFn func(ctx context.Context, eff actor.Effect, emit func(actor.Input))
}

// HandleEffects implements actor.Runtime.
func (r *FakeRuntime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	r.mu.Lock()
	r.effects = append(r.effects, effects...)
	fn := r.EmitFn
	r.mu.Unlock()

	if fn == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for _, eff := range effects {
			fn(ctx, eff, emit)
		}
	}()
}

// Stop implements actor.Runtime. It waits for pending EmitFn calls.
func (r *FakeRuntime) Stop() { r.wg.Wait() }

// Effects returns a copy of the recorded effects.
func (r *FakeRuntime) Effects() []actor.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]actor.Effect, len(r.effects))
	copy(out, r.effects)
	return out
}

// Reset forgets recorded effects.
func (r *FakeRuntime) Reset() {
	r.mu.Lock()
	r.effects = nil
	r.mu.Unlock()
}

// FakeClock is a settable actor.Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ actor.Clock = (*FakeClock)(nil)

// NewFakeClock starts the clock at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements actor.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
