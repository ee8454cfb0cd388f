// Package session is the facade over one conversation: it owns the session
// actor, subscribes it to the agent channel and hands immutable snapshots to
// the rendering layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandwork/desk/internal/actor"
	"github.com/brandwork/desk/internal/channel"
	"github.com/brandwork/desk/internal/logger"
	sessionactor "github.com/brandwork/desk/internal/session/actor"
	"github.com/brandwork/desk/internal/store"
	"github.com/brandwork/desk/internal/task"
	"github.com/brandwork/desk/internal/upload"
)

var (
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("session closed")
	// ErrNoChannel is returned by New without an agent channel.
	ErrNoChannel = errors.New("session: channel is required")
	// ErrNoPermission is returned when answering while nothing is pending.
	ErrNoPermission = errors.New("no permission request pending")
)

// Options wires a Controller. Only Channel is required.
type Options struct {
	Channel   channel.Channel
	Transport upload.Transport
	// Policy validates added files. Defaults to upload.DefaultPolicy{}.
	Policy upload.Policy
	// Store persists task snapshots. Defaults to an in-memory store.
	Store store.Store
	Clock actor.Clock

	QuestionTimeout      time.Duration
	MaxConcurrentUploads int

	// OnDispatch fires on the loop goroutine for every accepted dispatch.
	OnDispatch func(sessionactor.DispatchInfo)
	// NewID mints unit, message and context ids. Defaults to uuid.NewString.
	NewID func() string
}

// Controller drives one conversation view.
type Controller struct {
	actor     *actor.Actor[sessionactor.State]
	sub       channel.Subscription
	store     store.Store
	clock     actor.Clock
	newID     func() string
	listeners *listeners

	// ctx is cancelled by Close; channel intake gives up with it.
	ctx       context.Context
	cancel    context.CancelFunc
	stopCh    chan struct{}
	closeOnce sync.Once
}

// New starts a Controller on an empty conversation.
func New(opts Options) (*Controller, error) {
	if opts.Channel == nil {
		return nil, ErrNoChannel
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Clock == nil {
		opts.Clock = actor.RealClock{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Policy == nil {
		opts.Policy = upload.DefaultPolicy{}
	}
	if opts.MaxConcurrentUploads <= 0 {
		opts.MaxConcurrentUploads = sessionactor.DefaultMaxConcurrentUploads
	}
	questionMs := opts.QuestionTimeout.Milliseconds()
	if questionMs <= 0 {
		questionMs = sessionactor.DefaultQuestionTimeoutMs
	}

	c := &Controller{
		store:     opts.Store,
		clock:     opts.Clock,
		newID:     opts.NewID,
		listeners: newListeners(),
		stopCh:    make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	rt := sessionactor.NewRuntime(sessionactor.RuntimeConfig{
		Channel:    opts.Channel,
		Transport:  opts.Transport,
		Store:      opts.Store,
		Clock:      opts.Clock,
		OnDispatch: opts.OnDispatch,
	})
	hooks := actor.Hooks[sessionactor.State]{
		OnInput: func(input actor.Input) {
			logger.Tracef("session-actor input: %T", input)
		},
		OnTransition: func(_ sessionactor.State, next sessionactor.State, _ actor.Input) {
			c.listeners.publish(func() Snapshot { return snapshotOf(next) })
		},
	}
	initial := sessionactor.NewState(sessionactor.Settings{
		Policy:               opts.Policy,
		MaxConcurrentUploads: opts.MaxConcurrentUploads,
		QuestionTimeoutMs:    questionMs,
	}, c.newID())
	c.actor = actor.New(initial, sessionactor.Reduce, rt, actor.WithHooks(hooks))
	c.actor.Start()

	// Deliveries wait for mailbox space so none is lost under a burst.
	sub, err := opts.Channel.Subscribe(func(events []task.Event) {
		if err := c.actor.Send(c.ctx, sessionactor.ChannelEvents(events, c.nowMs())); err != nil {
			logger.Debugf("session: discarding %d channel events after close: %v", len(events), err)
		}
	})
	if err != nil {
		c.cancel()
		c.actor.Stop()
		c.listeners.stop()
		return nil, fmt.Errorf("subscribe to channel: %w", err)
	}
	c.sub = sub
	return c, nil
}

// Close unsubscribes from the channel, cancels outstanding uploads and
// timers and stops listener delivery. The store is left open.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.cancel()
		if c.sub != nil {
			err = c.sub.Close()
		}
		c.actor.Stop()
		<-c.actor.Done()
		c.listeners.stop()
	})
	return err
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	return snapshotOf(c.actor.State())
}

// Subscribe registers fn for every subsequent state change. fn runs on a
// single delivery goroutine and may be skipped over intermediate snapshots
// when it falls behind; it always sees the latest one.
func (c *Controller) Subscribe(fn func(Snapshot)) *Subscription {
	return c.listeners.add(fn)
}

func (c *Controller) nowMs() int64 { return c.clock.Now().UnixMilli() }

// request enqueues a command and waits for its reply.
func (c *Controller) request(ctx context.Context, build func(reply chan error) actor.Input) error {
	reply := make(chan error, 1)
	if err := c.enqueue(ctx, build(reply)); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return ErrClosed
	case err := <-reply:
		return err
	}
}

// enqueue waits for mailbox space until ctx is done or the session closes.
func (c *Controller) enqueue(ctx context.Context, in actor.Input) error {
	select {
	case <-c.stopCh:
		return ErrClosed
	default:
	}
	err := c.actor.Send(ctx, in)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, actor.ErrStopped):
		return ErrClosed
	default:
		return fmt.Errorf("failed to schedule %T: %w", in, err)
	}
}
