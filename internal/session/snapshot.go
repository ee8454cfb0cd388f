package session

import (
	sessionactor "github.com/brandwork/desk/internal/session/actor"
	"github.com/brandwork/desk/internal/task"
	"github.com/brandwork/desk/internal/timeline"
	"github.com/brandwork/desk/internal/upload"
)

// Snapshot is an immutable view handed to the rendering layer.
type Snapshot struct {
	TaskID    string
	SessionID string
	Status    task.Status

	Messages []task.Message
	Timeline []timeline.Item

	// ContextID is the composition context new attachments join.
	ContextID string
	// Uploads are the units of the current composition context.
	Uploads []upload.Unit

	// Pending is the permission request awaiting a decision, if any.
	Pending *task.PermissionRequest

	Notifications []sessionactor.Notification
	Progress      []task.Progress
	CurrentTool   string

	Images   []task.ImageRef
	Selected []task.ImageRef

	// CanSubmit reports whether a non-empty message could be sent now.
	CanSubmit   bool
	Dispatching bool
}

// Resumable reports whether Continue is offered.
func (s Snapshot) Resumable() bool {
	return s.SessionID != "" && s.Status.Resumable() && !s.Dispatching && s.Pending == nil
}

// Unit returns the upload with id in the current composition.
func (s Snapshot) Unit(id string) (upload.Unit, bool) {
	for _, u := range s.Uploads {
		if u.ID == id {
			return u, true
		}
	}
	return upload.Unit{}, false
}

func snapshotOf(st sessionactor.State) Snapshot {
	snap := Snapshot{
		TaskID:        st.Conv.TaskID,
		SessionID:     st.Conv.SessionID,
		Status:        st.Conv.Status,
		Messages:      st.Conv.Messages,
		Timeline:      timeline.Build(st.Conv.Messages, st.View),
		ContextID:     st.ContextID,
		Uploads:       st.Uploads.InContext(st.ContextID),
		Notifications: st.Notifications,
		Progress:      st.Conv.Progress,
		CurrentTool:   st.Conv.CurrentTool,
		Images:        st.Conv.Images,
		Selected:      st.Selected,
		CanSubmit:     st.CanSubmit("x"),
		Dispatching:   st.Dispatching(),
	}
	if req, ok := st.Gate.Pending(); ok {
		snap.Pending = &req
	}
	return snap
}
