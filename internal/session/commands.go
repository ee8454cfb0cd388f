package session

import (
	"context"
	"fmt"

	"github.com/brandwork/desk/internal/actor"
	sessionactor "github.com/brandwork/desk/internal/session/actor"
	"github.com/brandwork/desk/internal/task"
	"github.com/brandwork/desk/internal/upload"
)

// AddFiles validates files and queues the accepted ones for upload. The
// returned ids line up with files; a rejected file's id names no unit and
// the rejection shows up as a notification.
func (c *Controller) AddFiles(ctx context.Context, files ...upload.File) ([]string, error) {
	ids := make([]string, len(files))
	for i := range files {
		ids[i] = c.newID()
	}
	err := c.request(ctx, func(reply chan error) actor.Input {
		return sessionactor.AddFiles(files, ids, c.nowMs(), reply)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AddPaths reads files from disk and adds them. Unreadable paths are
// reported as notifications and skipped.
func (c *Controller) AddPaths(ctx context.Context, paths ...string) ([]string, error) {
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		f, err := upload.LoadFile(p)
		if err != nil {
			if nerr := c.enqueue(ctx, sessionactor.Notify(sessionactor.LevelWarn, err.Error(), c.nowMs())); nerr != nil {
				return nil, nerr
			}
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, nil
	}
	return c.AddFiles(ctx, files...)
}

// Retry restarts a failed upload.
func (c *Controller) Retry(ctx context.Context, unitID string) error {
	return c.request(ctx, func(reply chan error) actor.Input {
		return sessionactor.RetryUpload(unitID, reply)
	})
}

// Remove drops an upload in any state, cancelling its transfer.
func (c *Controller) Remove(ctx context.Context, unitID string) error {
	return c.request(ctx, func(reply chan error) actor.Input {
		return sessionactor.RemoveUpload(unitID, reply)
	})
}

// Submit sends text with the completed attachments and selected images. It
// returns once the agent accepted or refused the message.
func (c *Controller) Submit(ctx context.Context, text string) error {
	messageID, nextContext := c.newID(), c.newID()
	return c.request(ctx, func(reply chan error) actor.Input {
		return sessionactor.Submit(text, messageID, nextContext, c.nowMs(), reply)
	})
}

// Continue resumes an interrupted or completed task.
func (c *Controller) Continue(ctx context.Context) error {
	messageID := c.newID()
	return c.request(ctx, func(reply chan error) actor.Input {
		return sessionactor.Continue(messageID, c.nowMs(), reply)
	})
}

// Stop interrupts the running task.
func (c *Controller) Stop(ctx context.Context) error {
	return c.request(ctx, func(reply chan error) actor.Input {
		return sessionactor.Stop(c.nowMs(), reply)
	})
}

// Decide resolves the pending permission request. Empty RequestID and
// TaskID are filled from the pending request.
func (c *Controller) Decide(ctx context.Context, d task.Decision) error {
	if d.RequestID == "" || d.TaskID == "" {
		pending, ok := c.actor.State().Gate.Pending()
		if !ok {
			return ErrNoPermission
		}
		if d.RequestID == "" {
			d.RequestID = pending.ID
		}
		if d.TaskID == "" {
			d.TaskID = pending.TaskID
		}
	}
	return c.request(ctx, func(reply chan error) actor.Input {
		return sessionactor.Decide(d, c.nowMs(), reply)
	})
}

// ToggleImage selects or deselects a gallery image for the next send.
func (c *Controller) ToggleImage(ctx context.Context, url string) error {
	return c.request(ctx, func(reply chan error) actor.Input {
		return sessionactor.ToggleImage(url, reply)
	})
}

// ToggleBlock expands or collapses a timeline activity block.
func (c *Controller) ToggleBlock(blockID string) error {
	return c.enqueue(c.ctx, sessionactor.ToggleBlock(blockID))
}

// Dismiss removes a notification.
func (c *Controller) Dismiss(id string) error {
	return c.enqueue(c.ctx, sessionactor.Dismiss(id))
}

// SwitchTask replaces the viewed conversation with a stored task. An empty
// id starts a new conversation. Uploads of the current composition are
// cancelled.
func (c *Controller) SwitchTask(ctx context.Context, taskID string) error {
	var t task.Task
	if taskID != "" {
		var err error
		t, err = c.store.Get(ctx, taskID)
		if err != nil {
			return fmt.Errorf("load task %s: %w", taskID, err)
		}
	}
	nextContext := c.newID()
	return c.request(ctx, func(reply chan error) actor.Input {
		return sessionactor.LoadTask(t, nextContext, reply)
	})
}

// Tasks lists stored tasks, most recently updated first.
func (c *Controller) Tasks(ctx context.Context) ([]task.Summary, error) {
	return c.store.List(ctx)
}
