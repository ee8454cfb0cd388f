package task

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventType discriminates inbound agent events.
type EventType string

const (
	EventMessage           EventType = "message"
	EventStatus            EventType = "status"
	EventComplete          EventType = "complete"
	EventError             EventType = "error"
	EventPermissionRequest EventType = "permission-request"
	EventProgress          EventType = "progress"
	EventImage             EventType = "image"
)

// ProgressStatus is the state of a progress step.
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "started"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// Progress is a live step report used only for progress display.
type Progress struct {
	ID      string         `json:"id"`
	Status  ProgressStatus `json:"status"`
	WaitFor int            `json:"waitFor,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Event is the inbound envelope of the agent channel.
type Event struct {
	Type   EventType `json:"type"`
	TaskID string    `json:"taskId"`

	Message    *Message           `json:"message,omitempty"`
	Status     Status             `json:"status,omitempty"`
	Error      string             `json:"error,omitempty"`
	Permission *PermissionRequest `json:"permission,omitempty"`
	Progress   *Progress          `json:"progress,omitempty"`
	Image      *ImageRef          `json:"image,omitempty"`
	SessionID  string             `json:"sessionId,omitempty"`
}

// DecodeEvents accepts either one event object or an array of events and
// returns them in delivery order.
func DecodeEvents(data []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var batch []Event
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decode event batch: %w", err)
		}
		return batch, nil
	}
	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return []Event{ev}, nil
}
