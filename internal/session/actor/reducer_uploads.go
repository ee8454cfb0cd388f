package actor

import (
	"fmt"

	"github.com/brandwork/desk/internal/actor"
	"github.com/brandwork/desk/internal/upload"
)

func reduceAddFiles(state State, cmd cmdAddFiles) (State, []actor.Effect) {
	if len(cmd.IDs) != len(cmd.Files) {
		replyTo(cmd.Reply, fmt.Errorf("add files: %d ids for %d files", len(cmd.IDs), len(cmd.Files)))
		return state, nil
	}
	policy := state.Settings.Policy
	if policy == nil {
		policy = upload.DefaultPolicy{}
	}
	for i, f := range cmd.Files {
		verdict := policy.Validate(f, state.Uploads.InContext(state.ContextID))
		if !verdict.OK {
			state = notify(state, LevelWarn, verdict.Reason, cmd.NowMs)
			continue
		}
		state.Uploads = state.Uploads.Add(upload.NewUnit(cmd.IDs[i], state.ContextID, f))
	}
	replyTo(cmd.Reply, nil)
	return scheduleUploads(state)
}

// scheduleUploads starts pending units while fewer than the concurrency
// bound are uploading.
func scheduleUploads(state State) (State, []actor.Effect) {
	limit := state.Settings.MaxConcurrentUploads
	if limit <= 0 {
		limit = DefaultMaxConcurrentUploads
	}
	var effects []actor.Effect
	for _, u := range state.Uploads.Units() {
		if state.Uploads.Uploading() >= limit {
			break
		}
		if u.Status != upload.StatusPending {
			continue
		}
		next, started, err := state.Uploads.Begin(u.ID)
		if err != nil {
			continue
		}
		state.Uploads = next
		effects = append(effects, startUpload(started))
	}
	return state, effects
}

func startUpload(u upload.Unit) effStartUpload {
	return effStartUpload{
		UnitID:  u.ID,
		Attempt: u.Attempt,
		Request: u.Request(),
	}
}

func reduceRetryUpload(state State, cmd cmdRetryUpload) (State, []actor.Effect) {
	next, u, err := state.Uploads.Retry(cmd.ID)
	if err != nil {
		replyTo(cmd.Reply, err)
		return state, nil
	}
	state.Uploads = next
	replyTo(cmd.Reply, nil)
	return state, []actor.Effect{startUpload(u)}
}

func reduceRemoveUpload(state State, cmd cmdRemoveUpload) (State, []actor.Effect) {
	next, removed, ok := state.Uploads.Remove(cmd.ID)
	if !ok {
		replyTo(cmd.Reply, fmt.Errorf("%w: %s", upload.ErrUnknownUnit, cmd.ID))
		return state, nil
	}
	state.Uploads = next
	replyTo(cmd.Reply, nil)

	var effects []actor.Effect
	if removed.Status == upload.StatusUploading {
		effects = append(effects, effCancelUpload{UnitID: removed.ID})
	}
	state, started := scheduleUploads(state)
	return state, append(effects, started...)
}

func reduceUploadDone(state State, ev evUploadDone) (State, []actor.Effect) {
	u, known := state.Uploads.Get(ev.ID)
	if ev.Err == nil {
		state.Uploads, _ = state.Uploads.Complete(ev.ID, ev.Attempt, ev.Result)
		return scheduleUploads(state)
	}
	next, ok := state.Uploads.Fail(ev.ID, ev.Attempt, ev.Err.Error())
	if !ok {
		// Removed, replaced by a newer attempt or already settled.
		return state, nil
	}
	state.Uploads = next
	name := ev.ID
	if known {
		name = u.Filename
	}
	state = notify(state, LevelError, fmt.Sprintf("Upload of %s failed: %v", name, ev.Err), ev.NowMs)
	return scheduleUploads(state)
}
