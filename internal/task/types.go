// Package task defines the conversation vocabulary shared by every desk
// component: messages, tasks, permission requests and inbound agent events.
package task

import "encoding/json"

// Kind classifies a log entry.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindTool      Kind = "tool"
	KindSystem    Kind = "system"
)

// ToolStatus is the lifecycle of a tool entry.
type ToolStatus string

const (
	ToolRunning ToolStatus = "running"
	ToolSuccess ToolStatus = "success"
	ToolError   ToolStatus = "error"
)

// AttachmentRef is a completed upload as carried by a user message.
type AttachmentRef struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// ImageRef is a labelled image produced by the agent.
type ImageRef struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Message is one entry of the conversation log.
type Message struct {
	ID              string          `json:"id"`
	Kind            Kind            `json:"kind"`
	Content         string          `json:"content"`
	ToolName        string          `json:"toolName,omitempty"`
	ToolInput       json.RawMessage `json:"toolInput,omitempty"`
	ToolStatus      ToolStatus      `json:"toolStatus,omitempty"`
	Attachments     []AttachmentRef `json:"attachments,omitempty"`
	ImageReferences []ImageRef      `json:"imageReferences,omitempty"`
	// Timestamp is display-only (ms since epoch); log position is the order.
	Timestamp int64 `json:"timestamp"`
}

// Status is the run state of a task.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusInterrupted Status = "interrupted"
)

// Terminal reports whether the run has ended.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusInterrupted:
		return true
	}
	return false
}

// CanTransition reports whether a run may move from s to next. A task can
// always be (re)started into running from a terminal state; it never goes
// back to queued once running.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case "", StatusQueued:
		return true
	case StatusRunning:
		return next != StatusQueued
	default:
		return next == StatusRunning || next == StatusQueued
	}
}

// Resumable reports whether "continue" is offered for the task.
func (s Status) Resumable() bool {
	return s == StatusInterrupted || s == StatusCompleted
}

// Task is the persisted shape of one conversation.
type Task struct {
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	SessionID string     `json:"sessionId,omitempty"`
	Messages  []Message  `json:"messages"`
	Images    []ImageRef `json:"images,omitempty"`
	// Runs counts how often the task was started or resumed.
	Runs      int   `json:"runs,omitempty"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Summary is a compact listing entry.
type Summary struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Summarize builds a listing entry titled after the first user message.
func (t Task) Summarize() Summary {
	title := ""
	for _, m := range t.Messages {
		if m.Kind == KindUser {
			title = m.Content
			break
		}
	}
	if r := []rune(title); len(r) > 60 {
		title = string(r[:57]) + "..."
	}
	return Summary{ID: t.ID, Status: t.Status, Title: title, UpdatedAt: t.UpdatedAt}
}
