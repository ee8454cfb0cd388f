// Package channel defines the boundary to the remote agent process.
package channel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/brandwork/desk/internal/task"
)

// Event names shared by the wire adapters.
const (
	OpTaskEvent  = "task-event"
	OpDispatch   = "dispatch"
	OpResume     = "resume"
	OpPermission = "permission-response"
	OpInterrupt  = "interrupt"
)

// Handler receives events in delivery order. A batch is passed as-is.
type Handler func(events []task.Event)

// Subscription is an explicit handle to a registered Handler.
type Subscription interface {
	Close() error
}

// DispatchRequest starts a new task or continues an existing one.
type DispatchRequest struct {
	// TaskID is empty for a new task.
	TaskID          string               `json:"taskId,omitempty"`
	SessionID       string               `json:"sessionId,omitempty"`
	Text            string               `json:"text"`
	Attachments     []task.AttachmentRef `json:"attachments,omitempty"`
	ImageReferences []task.ImageRef      `json:"imageReferences,omitempty"`
}

// DispatchResult is the agent's acknowledgement of a dispatch.
type DispatchResult struct {
	TaskID    string      `json:"taskId"`
	SessionID string      `json:"sessionId,omitempty"`
	Status    task.Status `json:"status,omitempty"`
}

// Channel is the agent connection consumed by the session core.
type Channel interface {
	Subscribe(h Handler) (Subscription, error)
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)
	// Resume continues a conversation identified by req.SessionID.
	Resume(ctx context.Context, req DispatchRequest) (DispatchResult, error)
	RespondToPermission(ctx context.Context, d task.Decision) error
	Interrupt(ctx context.Context, taskID string) error
}

// Handlers is a registry of subscribed handlers shared by the adapters.
type Handlers struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]Handler
}

// Add registers h and returns a handle that removes it.
func (hs *Handlers) Add(h Handler) Subscription {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.byID == nil {
		hs.byID = make(map[int]Handler)
	}
	hs.nextID++
	id := hs.nextID
	hs.byID[id] = h
	return &handle{hs: hs, id: id}
}

// Deliver calls every handler with events, in subscription order.
func (hs *Handlers) Deliver(events []task.Event) {
	if len(events) == 0 {
		return
	}
	hs.mu.RLock()
	ids := make([]int, 0, len(hs.byID))
	for id := range hs.byID {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, hs.byID[id])
	}
	hs.mu.RUnlock()

	for _, h := range handlers {
		h(events)
	}
}

// Len returns the number of live subscriptions.
func (hs *Handlers) Len() int {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return len(hs.byID)
}

type handle struct {
	hs   *Handlers
	id   int
	once sync.Once
}

func (h *handle) Close() error {
	h.once.Do(func() {
		h.hs.mu.Lock()
		delete(h.hs.byID, h.id)
		h.hs.mu.Unlock()
	})
	return nil
}

// Ack is the reply envelope the agent returns for every outbound call.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	DispatchResult
}

// Err converts a negative acknowledgement into ErrRefused.
func (a Ack) Err() error {
	if a.OK {
		return nil
	}
	if a.Error == "" {
		return ErrRefused
	}
	return fmt.Errorf("%w: %s", ErrRefused, a.Error)
}
