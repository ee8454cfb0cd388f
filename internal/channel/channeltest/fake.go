// Package channeltest provides an in-memory Channel for tests.
package channeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/brandwork/desk/internal/channel"
	"github.com/brandwork/desk/internal/task"
)

// Fake records outbound calls and lets tests push inbound events.
type Fake struct {
	channel.Handlers

	mu          sync.Mutex
	dispatches  []channel.DispatchRequest
	resumes     []channel.DispatchRequest
	decisions   []task.Decision
	interrupts  []string
	nextTask    int
	DispatchErr error
	// Block, when set, holds Dispatch and Resume until it is closed.
	Block chan struct{}
}

var _ channel.Channel = (*Fake)(nil)

// Subscribe implements channel.Channel.
func (f *Fake) Subscribe(h channel.Handler) (channel.Subscription, error) {
	return f.Add(h), nil
}

// Emit delivers events to subscribers as one batch.
func (f *Fake) Emit(events ...task.Event) {
	f.Deliver(events)
}

// Dispatch implements channel.Channel.
func (f *Fake) Dispatch(ctx context.Context, req channel.DispatchRequest) (channel.DispatchResult, error) {
	if err := f.wait(ctx); err != nil {
		return channel.DispatchResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches = append(f.dispatches, req)
	if f.DispatchErr != nil {
		return channel.DispatchResult{}, f.DispatchErr
	}
	taskID := req.TaskID
	if taskID == "" {
		f.nextTask++
		taskID = fmt.Sprintf("task-%d", f.nextTask)
	}
	return channel.DispatchResult{TaskID: taskID, SessionID: "session-" + taskID, Status: task.StatusRunning}, nil
}

// Resume implements channel.Channel.
func (f *Fake) Resume(ctx context.Context, req channel.DispatchRequest) (channel.DispatchResult, error) {
	if err := f.wait(ctx); err != nil {
		return channel.DispatchResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes = append(f.resumes, req)
	if f.DispatchErr != nil {
		return channel.DispatchResult{}, f.DispatchErr
	}
	return channel.DispatchResult{TaskID: req.TaskID, SessionID: req.SessionID, Status: task.StatusRunning}, nil
}

// RespondToPermission implements channel.Channel.
func (f *Fake) RespondToPermission(_ context.Context, d task.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
	return nil
}

// Interrupt implements channel.Channel.
func (f *Fake) Interrupt(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts = append(f.interrupts, taskID)
	return nil
}

// Dispatches returns recorded Dispatch calls.
func (f *Fake) Dispatches() []channel.DispatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.DispatchRequest(nil), f.dispatches...)
}

// Resumes returns recorded Resume calls.
func (f *Fake) Resumes() []channel.DispatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.DispatchRequest(nil), f.resumes...)
}

// Decisions returns recorded permission responses.
func (f *Fake) Decisions() []task.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]task.Decision(nil), f.decisions...)
}

// Interrupts returns recorded interrupt task ids.
func (f *Fake) Interrupts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.interrupts...)
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Block == nil {
		return nil
	}
	select {
	case <-f.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
