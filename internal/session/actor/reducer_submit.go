package actor

import (
	"fmt"
	"strings"

	"github.com/brandwork/desk/internal/actor"
	"github.com/brandwork/desk/internal/channel"
	"github.com/brandwork/desk/internal/conversation"
	"github.com/brandwork/desk/internal/logger"
	"github.com/brandwork/desk/internal/task"
)

// submitBlocked returns the first unmet precondition of a send.
func submitBlocked(state State, text string) error {
	if !state.Gate.Idle() {
		return ErrPermissionPending
	}
	if state.Dispatching() {
		return ErrDispatchInFlight
	}
	if state.Uploads.HasInFlight(state.ContextID) {
		return ErrUploadsInFlight
	}
	if strings.TrimSpace(text) == "" && len(state.Uploads.CompletedSet(state.ContextID)) == 0 {
		return ErrEmptySubmission
	}
	return nil
}

// composeText prefixes the selected image labels in selection order.
func composeText(text string, selected []task.ImageRef) string {
	if len(selected) == 0 {
		return text
	}
	var b strings.Builder
	for _, img := range selected {
		label := img.Label
		if label == "" {
			label = img.URL
		}
		fmt.Fprintf(&b, "[%s] ", label)
	}
	b.WriteString(text)
	return strings.TrimSpace(b.String())
}

func reduceSubmit(state State, cmd cmdSubmit) (State, []actor.Effect) {
	if err := submitBlocked(state, cmd.Text); err != nil {
		replyTo(cmd.Reply, err)
		return state, nil
	}

	// The completed set is read exactly once for this send.
	completed := state.Uploads.CompletedSet(state.ContextID)
	refs := make([]task.AttachmentRef, 0, len(completed))
	for _, u := range completed {
		refs = append(refs, u.Ref())
	}
	images := append([]task.ImageRef(nil), state.Selected...)
	text := composeText(strings.TrimSpace(cmd.Text), images)

	req := channel.DispatchRequest{
		TaskID:          state.Conv.TaskID,
		SessionID:       state.Conv.SessionID,
		Text:            text,
		Attachments:     refs,
		ImageReferences: images,
	}
	info := DispatchInfo{
		Resume:      req.SessionID != "",
		TextLength:  len(text),
		Attachments: len(refs),
		Images:      len(images),
	}

	prevContext := state.ContextID
	state.ContextID = cmd.NextContext
	return beginDispatch(state, req, cmd.MessageID, prevContext, false, info, cmd.NowMs, cmd.Reply)
}

func reduceContinue(state State, cmd cmdContinue) (State, []actor.Effect) {
	switch {
	case !state.Gate.Idle():
		replyTo(cmd.Reply, ErrPermissionPending)
		return state, nil
	case state.Dispatching():
		replyTo(cmd.Reply, ErrDispatchInFlight)
		return state, nil
	case state.Conv.SessionID == "" || !state.Conv.Status.Resumable():
		replyTo(cmd.Reply, fmt.Errorf("%w: status %q", ErrNotResumable, state.Conv.Status))
		return state, nil
	}

	req := channel.DispatchRequest{
		TaskID:    state.Conv.TaskID,
		SessionID: state.Conv.SessionID,
		Text:      ContinueText,
	}
	info := DispatchInfo{Resume: true, Continue: true, TextLength: len(ContinueText)}
	return beginDispatch(state, req, cmd.MessageID, state.ContextID, true, info, cmd.NowMs, cmd.Reply)
}

// beginDispatch echoes the user entry, marks a new run as queued and emits
// the dispatch effect. The reply is completed when the channel answers.
func beginDispatch(
	state State,
	req channel.DispatchRequest,
	messageID, prevContext string,
	isContinue bool,
	info DispatchInfo,
	nowMs int64,
	reply chan error,
) (State, []actor.Effect) {
	state.Conv = conversation.Echo(state.Conv, task.Message{
		ID:              messageID,
		Kind:            task.KindUser,
		Content:         req.Text,
		Attachments:     req.Attachments,
		ImageReferences: req.ImageReferences,
		Timestamp:       nowMs,
	})
	prevStatus, prevRun := state.Conv.Status, state.Conv.Run
	state.Conv = conversation.BeginRun(state.Conv)

	state.DispatchGen++
	info.AtMs = nowMs
	state.Inflight = &inflightDispatch{
		Gen:         state.DispatchGen,
		EchoID:      messageID,
		PrevContext: prevContext,
		PrevStatus:  prevStatus,
		PrevRun:     prevRun,
		Continue:    isContinue,
		NewTask:     req.TaskID == "",
		Info:        info,
		Reply:       reply,
	}
	return state, []actor.Effect{effDispatch{
		Gen:     state.DispatchGen,
		Resume:  req.SessionID != "",
		Request: req,
	}}
}

func reduceDispatchDone(state State, ev evDispatchDone) (State, []actor.Effect) {
	inf := state.Inflight
	if inf == nil || ev.Gen != inf.Gen {
		return state, nil
	}
	state.Inflight = nil

	if ev.Err != nil {
		state.Conv = conversation.Retract(state.Conv, inf.EchoID)
		if state.Conv.Status == task.StatusQueued {
			state.Conv.Status = inf.PrevStatus
			state.Conv.Run = inf.PrevRun
		}
		if !inf.Continue && state.ContextID != inf.PrevContext {
			state.Uploads = state.Uploads.MoveContext(state.ContextID, inf.PrevContext)
			state.ContextID = inf.PrevContext
		}
		state = notify(state, LevelError, fmt.Sprintf("Send failed: %v", ev.Err), ev.NowMs)
		replyTo(inf.Reply, ev.Err)
		return state, nil
	}

	res := ev.Result
	if inf.NewTask && res.TaskID != "" && res.TaskID != state.Conv.TaskID {
		if state.Conv.TaskID != "" {
			logger.Warnf("session: ack names task %s, output arrived for %s", res.TaskID, state.Conv.TaskID)
		}
		state.Conv.TaskID = res.TaskID
		state.View = state.View.ForTask(res.TaskID)
	}
	if res.SessionID != "" {
		state.Conv.SessionID = res.SessionID
	}
	if state.Conv.Status == task.StatusQueued {
		next := res.Status
		if next == "" {
			next = task.StatusRunning
		}
		state.Conv.Status = next
	}
	if !inf.Continue {
		state.Uploads = state.Uploads.DropContext(inf.PrevContext)
		state.Selected = nil
	}

	info := inf.Info
	info.TaskID = state.Conv.TaskID
	info.SessionID = state.Conv.SessionID
	replyTo(inf.Reply, nil)
	return state, []actor.Effect{
		effDispatched{Info: info},
		effPersist{Task: state.Conv.Task(ev.NowMs)},
	}
}

func reduceStop(state State, cmd cmdStop) (State, []actor.Effect) {
	if state.Conv.TaskID == "" ||
		(state.Conv.Status != task.StatusRunning && state.Conv.Status != task.StatusQueued) {
		replyTo(cmd.Reply, ErrNotRunning)
		return state, nil
	}
	effects := []actor.Effect{effInterrupt{TaskID: state.Conv.TaskID}}
	if pending, ok := state.Gate.Pending(); ok {
		effects = append(effects, effCancelTimer{Name: permissionTimerPrefix + pending.ID})
		state.Gate = state.Gate.Clear()
	}
	state.Conv.Status = task.StatusInterrupted
	state.Conv.CurrentTool = ""
	replyTo(cmd.Reply, nil)
	return state, append(effects, effPersist{Task: state.Conv.Task(cmd.NowMs)})
}
