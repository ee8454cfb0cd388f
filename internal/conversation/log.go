// Package conversation maintains the authoritative message log of one task
// from the events delivered by the agent channel.
//
// State values are never modified in place: every change produces a new
// State whose Messages slice does not alias an entry that a previously handed
// out snapshot can observe changing. Readers may therefore hold any State
// while the owner keeps applying events.
package conversation

import (
	"bytes"
	"fmt"
	"hash/fnv"

	"github.com/brandwork/desk/internal/logger"
	"github.com/brandwork/desk/internal/task"
)

// State is the normalized view of one task.
type State struct {
	TaskID    string
	SessionID string
	Status    task.Status
	Messages  []task.Message
	// Run numbers the current run; it grows each time the task starts or
	// resumes after reaching a terminal status.
	Run int

	// CurrentTool is the tool currently reported as running. Display only.
	CurrentTool string
	// Progress lists live step reports in first-seen order. Display only.
	Progress []task.Progress
	// Images is the gallery of agent-produced images in arrival order.
	Images []task.ImageRef
}

// Change describes what an applied event touched.
type Change struct {
	Log    bool
	Status bool
	// Violation is set when the event was dropped as malformed.
	Violation string
}

// Changed reports whether anything observable changed.
func (c Change) Changed() bool { return c.Log || c.Status }

// FromTask seeds a state from a persisted task.
func FromTask(t task.Task) State {
	return State{
		TaskID:    t.ID,
		SessionID: t.SessionID,
		Status:    t.Status,
		Messages:  append([]task.Message(nil), t.Messages...),
		Images:    append([]task.ImageRef(nil), t.Images...),
		Run:       t.Runs,
	}
}

// Task snapshots the state for persistence.
func (s State) Task(nowMs int64) task.Task {
	return task.Task{
		ID:        s.TaskID,
		Status:    s.Status,
		SessionID: s.SessionID,
		Messages:  append([]task.Message(nil), s.Messages...),
		Images:    append([]task.ImageRef(nil), s.Images...),
		Runs:      s.Run,
		UpdatedAt: nowMs,
	}
}

// Index returns the log position of id, or -1.
func (s State) Index(id string) int {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// ApplyAll applies a batch in its internal order, exactly as if each event
// had been delivered on its own.
func ApplyAll(s State, events []task.Event, nowMs int64) (State, Change) {
	var total Change
	for _, ev := range events {
		var c Change
		s, c = Apply(s, ev, nowMs)
		total.Log = total.Log || c.Log
		total.Status = total.Status || c.Status
		if c.Violation != "" {
			total.Violation = c.Violation
		}
	}
	return s, total
}

// Apply folds one event into the state. Permission requests are not part of
// the log and are ignored here.
func Apply(s State, ev task.Event, nowMs int64) (State, Change) {
	if ev.SessionID != "" && ev.SessionID != s.SessionID {
		s.SessionID = ev.SessionID
	}

	switch ev.Type {
	case task.EventMessage:
		return applyMessage(s, ev.Message, nowMs)

	case task.EventStatus:
		return applyStatus(s, ev.Status)

	case task.EventComplete:
		s.CurrentTool = ""
		if s.Status == task.StatusRunning || s.Status == task.StatusQueued || s.Status == "" {
			s.Status = task.StatusCompleted
			return s, Change{Status: true}
		}
		return s, Change{}

	case task.EventError:
		return applyError(s, ev.Error, nowMs)

	case task.EventProgress:
		if ev.Progress == nil || ev.Progress.ID == "" {
			return s, Change{Violation: "progress event without id"}
		}
		s.Progress = upsertProgress(s.Progress, *ev.Progress)
		return s, Change{}

	case task.EventImage:
		if ev.Image == nil || ev.Image.URL == "" {
			return s, Change{Violation: "image event without url"}
		}
		for _, img := range s.Images {
			if img.URL == ev.Image.URL {
				return s, Change{}
			}
		}
		s.Images = append(s.Images[:len(s.Images):len(s.Images)], *ev.Image)
		return s, Change{Log: true}

	case task.EventPermissionRequest:
		return s, Change{}

	default:
		return s, Change{Violation: fmt.Sprintf("unknown event type %q", ev.Type)}
	}
}

func applyMessage(s State, msg *task.Message, nowMs int64) (State, Change) {
	if msg == nil || msg.ID == "" {
		return s, Change{Violation: "message event without id"}
	}

	idx := s.Index(msg.ID)
	if idx < 0 {
		entry := *msg
		if entry.Timestamp == 0 {
			entry.Timestamp = nowMs
		}
		s.Messages = appendMessage(s.Messages, entry)
		s = trackTool(s, entry)
		return s, Change{Log: true}
	}

	prev := s.Messages[idx]
	next := merge(prev, *msg)
	if same(prev, next) {
		return s, Change{}
	}
	s.Messages = replaceAt(s.Messages, idx, next)
	s = trackTool(s, next)
	return s, Change{Log: true}
}

// merge applies the mutable fields of an update onto an existing entry.
// Empty content never erases streamed text.
func merge(prev, update task.Message) task.Message {
	next := prev
	if update.Content != "" {
		next.Content = update.Content
	}
	if update.ToolStatus != "" {
		next.ToolStatus = update.ToolStatus
	}
	if len(update.ToolInput) > 0 {
		next.ToolInput = update.ToolInput
	}
	return next
}

func same(a, b task.Message) bool {
	return a.Content == b.Content &&
		a.ToolStatus == b.ToolStatus &&
		bytes.Equal(a.ToolInput, b.ToolInput)
}

func trackTool(s State, m task.Message) State {
	if m.Kind != task.KindTool {
		return s
	}
	switch m.ToolStatus {
	case task.ToolRunning:
		s.CurrentTool = m.ToolName
	case task.ToolSuccess, task.ToolError:
		if s.CurrentTool == m.ToolName {
			s.CurrentTool = ""
		}
	}
	return s
}

func applyStatus(s State, next task.Status) (State, Change) {
	if next == "" {
		return s, Change{Violation: "status event without status"}
	}
	if next == s.Status {
		return s, Change{}
	}
	if !s.Status.CanTransition(next) {
		logger.Warnf("conversation: ignoring status %s -> %s for task %s", s.Status, next, s.TaskID)
		return s, Change{Violation: "invalid status transition"}
	}
	if !next.Terminal() && (s.Status == "" || s.Status.Terminal()) {
		s.Run++
	}
	s.Status = next
	if next.Terminal() {
		s.CurrentTool = ""
	}
	return s, Change{Status: true}
}

// BeginRun queues a new run unless one is already active.
func BeginRun(s State) State {
	if s.Status != "" && !s.Status.Terminal() {
		return s
	}
	s.Status = task.StatusQueued
	s.Run++
	return s
}

func applyError(s State, text string, nowMs int64) (State, Change) {
	s.CurrentTool = ""
	if text == "" {
		text = "The agent reported an error."
	}
	change := Change{}
	if s.Status != task.StatusFailed {
		s.Status = task.StatusFailed
		change.Status = true
	}
	entry := task.Message{
		ID:        errorEntryID(s.Run, text),
		Kind:      task.KindSystem,
		Content:   text,
		Timestamp: nowMs,
	}
	if s.Index(entry.ID) >= 0 {
		return s, change
	}
	s.Messages = appendMessage(s.Messages, entry)
	change.Log = true
	return s, change
}

// errorEntryID is stable within a run, so a redelivered error is a no-op
// while the same failure in a later run gets its own entry.
func errorEntryID(run int, text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("error-%d-%x", run, h.Sum64())
}

func upsertProgress(steps []task.Progress, p task.Progress) []task.Progress {
	out := make([]task.Progress, 0, len(steps)+1)
	found := false
	for _, step := range steps {
		if step.ID == p.ID {
			step = p
			found = true
		}
		out = append(out, step)
	}
	if !found {
		out = append(out, p)
	}
	return out
}

// appendMessage appends without ever writing into capacity that an older
// snapshot could share.
func appendMessage(msgs []task.Message, m task.Message) []task.Message {
	return append(msgs[:len(msgs):len(msgs)], m)
}

func replaceAt(msgs []task.Message, idx int, m task.Message) []task.Message {
	out := make([]task.Message, len(msgs))
	copy(out, msgs)
	out[idx] = m
	return out
}

// Echo appends a locally originated user entry ahead of the agent's reply.
func Echo(s State, m task.Message) State {
	if m.ID == "" || s.Index(m.ID) >= 0 {
		return s
	}
	s.Messages = appendMessage(s.Messages, m)
	return s
}

// Retract removes a locally echoed entry the agent never accepted.
func Retract(s State, id string) State {
	idx := s.Index(id)
	if idx < 0 {
		return s
	}
	out := make([]task.Message, 0, len(s.Messages)-1)
	out = append(out, s.Messages[:idx]...)
	out = append(out, s.Messages[idx+1:]...)
	s.Messages = out
	return s
}
