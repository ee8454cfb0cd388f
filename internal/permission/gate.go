// Package permission holds the single-slot permission interrupt for a task.
package permission

import (
	"fmt"
	"time"

	"github.com/brandwork/desk/internal/task"
)

var (
	// ErrAlreadyPending is returned when a request arrives while another is unresolved.
	ErrAlreadyPending = fmt.Errorf("permission request already pending")
	// ErrNotPending is returned when a decision arrives while the gate is idle.
	ErrNotPending = fmt.Errorf("no permission request pending")
	// ErrRequestMismatch is returned when a decision names a different request id.
	ErrRequestMismatch = fmt.Errorf("decision does not match pending request")
)

// Gate is idle or holds exactly one pending request. It is a value type;
// transitions return a new Gate.
type Gate struct {
	pending *task.PermissionRequest
}

// Pending returns the unresolved request, if any.
func (g Gate) Pending() (task.PermissionRequest, bool) {
	if g.pending == nil {
		return task.PermissionRequest{}, false
	}
	return *g.pending, true
}

// Idle reports whether submission may proceed.
func (g Gate) Idle() bool { return g.pending == nil }

// Raise moves the gate to pending.
func (g Gate) Raise(req task.PermissionRequest) (Gate, error) {
	if g.pending != nil {
		return g, fmt.Errorf("%w: %s (holding %s)", ErrAlreadyPending, req.ID, g.pending.ID)
	}
	r := req
	return Gate{pending: &r}, nil
}

// Resolve moves the gate back to idle if d answers the pending request.
// It returns the resolved request.
func (g Gate) Resolve(d task.Decision) (Gate, task.PermissionRequest, error) {
	if g.pending == nil {
		return g, task.PermissionRequest{}, ErrNotPending
	}
	if d.RequestID != g.pending.ID {
		return g, task.PermissionRequest{}, fmt.Errorf("%w: got %s want %s", ErrRequestMismatch, d.RequestID, g.pending.ID)
	}
	return Gate{}, *g.pending, nil
}

// Clear drops any pending request without a decision.
func (g Gate) Clear() Gate { return Gate{} }

// InterruptsOnDeny reports whether denying a request of type t interrupts
// the task. Questions never do.
func InterruptsOnDeny(t task.RequestType) bool {
	return t != task.RequestQuestion
}

// QuestionTimeout returns how long a question may stay unanswered.
// Non-question requests never time out.
func QuestionTimeout(req task.PermissionRequest, fallback time.Duration) time.Duration {
	if req.Type != task.RequestQuestion {
		return 0
	}
	if req.TimeoutMs > 0 {
		return time.Duration(req.TimeoutMs) * time.Millisecond
	}
	return fallback
}

// NoResponse builds the deny sent when a question times out.
func NoResponse(req task.PermissionRequest) task.Decision {
	return task.Decision{
		RequestID:  req.ID,
		TaskID:     req.TaskID,
		Decision:   task.DecisionDeny,
		NoResponse: true,
	}
}
