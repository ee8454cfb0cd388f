package actor

import (
	"github.com/brandwork/desk/internal/actor"
	"github.com/brandwork/desk/internal/task"
	"github.com/brandwork/desk/internal/upload"
)

// NewState returns the initial state for a session.
func NewState(settings Settings, contextID string) State {
	return State{Settings: settings, ContextID: contextID}
}

// AddFiles returns a command that validates files and registers the accepted
// ones under ids (one id per file).
func AddFiles(files []upload.File, ids []string, nowMs int64, reply chan error) actor.Input {
	return cmdAddFiles{Files: files, IDs: ids, NowMs: nowMs, Reply: reply}
}

// RetryUpload returns a command that restarts a failed upload.
func RetryUpload(id string, reply chan error) actor.Input {
	return cmdRetryUpload{ID: id, Reply: reply}
}

// RemoveUpload returns a command that drops an upload and cancels its transfer.
func RemoveUpload(id string, reply chan error) actor.Input {
	return cmdRemoveUpload{ID: id, Reply: reply}
}

// Submit returns a command that sends text with the completed attachments.
// messageID names the user entry; nextContext is the composition context
// for attachments added afterwards. reply completes once the agent accepted
// or refused the message.
func Submit(text, messageID, nextContext string, nowMs int64, reply chan error) actor.Input {
	return cmdSubmit{Text: text, MessageID: messageID, NextContext: nextContext, NowMs: nowMs, Reply: reply}
}

// Continue returns a command that resumes an interrupted or completed task.
func Continue(messageID string, nowMs int64, reply chan error) actor.Input {
	return cmdContinue{MessageID: messageID, NowMs: nowMs, Reply: reply}
}

// Stop returns a command that interrupts the running task.
func Stop(nowMs int64, reply chan error) actor.Input {
	return cmdStop{NowMs: nowMs, Reply: reply}
}

// Decide returns a command that resolves the pending permission request.
func Decide(d task.Decision, nowMs int64, reply chan error) actor.Input {
	return cmdDecide{Decision: d, NowMs: nowMs, Reply: reply}
}

// ToggleImage returns a command that selects or deselects a gallery image.
func ToggleImage(url string, reply chan error) actor.Input {
	return cmdToggleImage{URL: url, Reply: reply}
}

// ToggleBlock returns a command that expands or collapses a timeline block.
func ToggleBlock(blockID string) actor.Input {
	return cmdToggleBlock{BlockID: blockID}
}

// LoadTask returns a command that replaces the viewed conversation. A zero
// task starts a fresh conversation.
func LoadTask(t task.Task, nextContext string, reply chan error) actor.Input {
	return cmdLoadTask{Task: t, NextContext: nextContext, Reply: reply}
}

// Dismiss returns a command that removes a notification.
func Dismiss(id string) actor.Input {
	return cmdDismiss{ID: id}
}

// Notify returns a command that records a notification.
func Notify(level Level, text string, nowMs int64) actor.Input {
	return cmdNotify{Level: level, Text: text, NowMs: nowMs}
}

// ChannelEvents returns an event input carrying one channel delivery.
func ChannelEvents(events []task.Event, nowMs int64) actor.Input {
	return evChannelEvents{Events: events, NowMs: nowMs}
}

// TimerFired returns an event input for a fired timer. It is exported for
// runtimes that drive timers from a fake clock.
func TimerFired(name string, nowMs int64) actor.Input {
	return evTimerFired{Name: name, NowMs: nowMs}
}
