package actor

import (
	"fmt"
	"strings"
	"time"

	"github.com/brandwork/desk/internal/actor"
	"github.com/brandwork/desk/internal/conversation"
	"github.com/brandwork/desk/internal/logger"
	"github.com/brandwork/desk/internal/permission"
	"github.com/brandwork/desk/internal/task"
	"github.com/brandwork/desk/internal/timeline"
	"github.com/brandwork/desk/internal/upload"
)

const permissionTimerPrefix = "permission:"

// Reduce is the session reducer. It never performs I/O; every side effect is
// returned as an Effect for the Runtime to execute.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdAddFiles:
		return reduceAddFiles(state, in)
	case cmdRetryUpload:
		return reduceRetryUpload(state, in)
	case cmdRemoveUpload:
		return reduceRemoveUpload(state, in)
	case cmdSubmit:
		return reduceSubmit(state, in)
	case cmdContinue:
		return reduceContinue(state, in)
	case cmdStop:
		return reduceStop(state, in)
	case cmdDecide:
		return reduceDecide(state, in)
	case cmdToggleImage:
		return reduceToggleImage(state, in)
	case cmdToggleBlock:
		state.View = state.View.ForTask(state.Conv.TaskID).Toggle(in.BlockID)
		return state, nil
	case cmdLoadTask:
		return reduceLoadTask(state, in)
	case cmdDismiss:
		return reduceDismiss(state, in)
	case cmdNotify:
		return notify(state, in.Level, in.Text, in.NowMs), nil

	case evChannelEvents:
		return reduceChannelEvents(state, in)
	case evUploadProgress:
		state.Uploads, _ = state.Uploads.Progress(in.ID, in.Attempt, in.Pct)
		return state, nil
	case evUploadDone:
		return reduceUploadDone(state, in)
	case evDispatchDone:
		return reduceDispatchDone(state, in)
	case evCallFailed:
		logger.Warnf("session: %s failed: %v", in.Op, in.Err)
		return notify(state, LevelError, fmt.Sprintf("%s failed: %v", in.Op, in.Err), in.NowMs), nil
	case evTimerFired:
		return reduceTimerFired(state, in)
	default:
		return state, nil
	}
}

func reduceChannelEvents(state State, ev evChannelEvents) (State, []actor.Effect) {
	var (
		effects []actor.Effect
		persist bool
	)
	for _, e := range ev.Events {
		if !acceptsTask(state, e.TaskID) {
			logger.Debugf("session: dropping %s event for task %s (viewing %s)", e.Type, e.TaskID, state.Conv.TaskID)
			continue
		}
		if state.Conv.TaskID == "" && e.TaskID != "" {
			state.Conv.TaskID = e.TaskID
			state.View = state.View.ForTask(e.TaskID)
		}

		switch e.Type {
		case task.EventPermissionRequest:
			var effs []actor.Effect
			state, effs = raisePermission(state, e, ev.NowMs)
			effects = append(effects, effs...)
			continue
		}

		var change conversation.Change
		state.Conv, change = conversation.Apply(state.Conv, e, ev.NowMs)
		if change.Violation != "" {
			logger.Warnf("session: protocol violation on task %s: %s", e.TaskID, change.Violation)
		}
		if change.Status {
			persist = true
		}
		if e.Type == task.EventError && change.Log {
			state = notify(state, LevelError, state.Conv.Messages[len(state.Conv.Messages)-1].Content, ev.NowMs)
		}
	}
	if persist && state.Conv.TaskID != "" {
		effects = append(effects, effPersist{Task: state.Conv.Task(ev.NowMs)})
	}
	return state, effects
}

// acceptsTask reports whether an event for taskID belongs to the viewed
// task. Events without a task id are treated as belonging to it. An empty
// view only adopts a task while its own new-task dispatch awaits the ack.
func acceptsTask(state State, taskID string) bool {
	switch {
	case taskID == "":
		return true
	case state.Conv.TaskID != "":
		return taskID == state.Conv.TaskID
	default:
		return state.Inflight != nil && state.Inflight.NewTask
	}
}

func raisePermission(state State, e task.Event, nowMs int64) (State, []actor.Effect) {
	if e.Permission == nil || e.Permission.ID == "" {
		logger.Warnf("session: permission request without id on task %s", e.TaskID)
		return state, nil
	}
	req := *e.Permission
	if req.TaskID == "" {
		req.TaskID = state.Conv.TaskID
	}
	if req.CreatedAt == 0 {
		req.CreatedAt = nowMs
	}
	gate, err := state.Gate.Raise(req)
	if err != nil {
		logger.Warnf("session: ignoring permission request: %v", err)
		return state, nil
	}
	state.Gate = gate

	fallbackMs := state.Settings.QuestionTimeoutMs
	if fallbackMs <= 0 {
		fallbackMs = DefaultQuestionTimeoutMs
	}
	timeout := permission.QuestionTimeout(req, time.Duration(fallbackMs)*time.Millisecond)
	if timeout <= 0 {
		return state, nil
	}
	return state, []actor.Effect{effStartTimer{Name: permissionTimerPrefix + req.ID, AfterMs: timeout.Milliseconds()}}
}

func reduceDecide(state State, cmd cmdDecide) (State, []actor.Effect) {
	d := cmd.Decision
	pending, ok := state.Gate.Pending()
	if ok && d.TaskID == "" {
		d.TaskID = pending.TaskID
	}
	gate, req, err := state.Gate.Resolve(d)
	if err != nil {
		replyTo(cmd.Reply, err)
		return state, nil
	}
	state.Gate = gate
	replyTo(cmd.Reply, nil)
	return resolved(state, req, d, cmd.NowMs)
}

// resolved applies a decision that has already cleared the gate.
func resolved(state State, req task.PermissionRequest, d task.Decision, nowMs int64) (State, []actor.Effect) {
	effects := []actor.Effect{
		effCancelTimer{Name: permissionTimerPrefix + req.ID},
		effRespond{Decision: d},
	}
	if d.Decision != task.DecisionDeny || !permission.InterruptsOnDeny(req.Type) {
		return state, effects
	}
	if state.Conv.Status.CanTransition(task.StatusInterrupted) {
		state.Conv.Status = task.StatusInterrupted
		state.Conv.CurrentTool = ""
		effects = append(effects, effPersist{Task: state.Conv.Task(nowMs)})
	}
	return state, effects
}

func reduceTimerFired(state State, ev evTimerFired) (State, []actor.Effect) {
	id, ok := strings.CutPrefix(ev.Name, permissionTimerPrefix)
	if !ok {
		return state, nil
	}
	pending, ok := state.Gate.Pending()
	if !ok || pending.ID != id {
		return state, nil
	}
	d := permission.NoResponse(pending)
	gate, req, err := state.Gate.Resolve(d)
	if err != nil {
		return state, nil
	}
	state.Gate = gate
	state = notify(state, LevelInfo, "The question timed out without an answer.", ev.NowMs)
	return resolved(state, req, d, ev.NowMs)
}

func reduceToggleImage(state State, cmd cmdToggleImage) (State, []actor.Effect) {
	for i, img := range state.Selected {
		if img.URL == cmd.URL {
			next := make([]task.ImageRef, 0, len(state.Selected)-1)
			next = append(next, state.Selected[:i]...)
			state.Selected = append(next, state.Selected[i+1:]...)
			replyTo(cmd.Reply, nil)
			return state, nil
		}
	}
	for _, img := range state.Conv.Images {
		if img.URL == cmd.URL {
			state.Selected = append(state.Selected[:len(state.Selected):len(state.Selected)], img)
			replyTo(cmd.Reply, nil)
			return state, nil
		}
	}
	replyTo(cmd.Reply, fmt.Errorf("%w: %s", ErrUnknownImage, cmd.URL))
	return state, nil
}

func reduceLoadTask(state State, cmd cmdLoadTask) (State, []actor.Effect) {
	if state.Dispatching() {
		replyTo(cmd.Reply, ErrDispatchInFlight)
		return state, nil
	}
	var effects []actor.Effect
	if pending, ok := state.Gate.Pending(); ok {
		effects = append(effects, effCancelTimer{Name: permissionTimerPrefix + pending.ID})
	}
	for _, u := range state.Uploads.InContext(state.ContextID) {
		if u.Status == upload.StatusUploading {
			effects = append(effects, effCancelUpload{UnitID: u.ID})
		}
	}

	state.Uploads = state.Uploads.DropContext(state.ContextID)
	state.ContextID = cmd.NextContext
	state.Conv = conversation.FromTask(cmd.Task)
	state.View = timeline.View{}.ForTask(cmd.Task.ID)
	state.Gate = state.Gate.Clear()
	state.Selected = nil
	replyTo(cmd.Reply, nil)
	return state, effects
}

func reduceDismiss(state State, cmd cmdDismiss) (State, []actor.Effect) {
	for i, n := range state.Notifications {
		if n.ID == cmd.ID {
			next := make([]Notification, 0, len(state.Notifications)-1)
			next = append(next, state.Notifications[:i]...)
			state.Notifications = append(next, state.Notifications[i+1:]...)
			break
		}
	}
	return state, nil
}

// notify appends a notification, keeping only the most recent ones.
func notify(state State, level Level, text string, nowMs int64) State {
	state.NotifySeq++
	n := Notification{
		ID:    fmt.Sprintf("n%d", state.NotifySeq),
		Level: level,
		Text:  text,
		AtMs:  nowMs,
	}
	list := append(state.Notifications[:len(state.Notifications):len(state.Notifications)], n)
	if len(list) > maxNotifications {
		list = list[len(list)-maxNotifications:]
	}
	state.Notifications = list
	return state
}

func replyTo(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
