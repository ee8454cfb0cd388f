package actor

import "fmt"

var (
	// ErrPermissionPending is returned when a send is attempted while a permission request is unresolved.
	ErrPermissionPending = fmt.Errorf("permission request pending")
	// ErrUploadsInFlight is returned when a send is attempted while attachments are still uploading.
	ErrUploadsInFlight = fmt.Errorf("uploads in flight")
	// ErrDispatchInFlight is returned when a send is attempted before the previous one was acknowledged.
	ErrDispatchInFlight = fmt.Errorf("dispatch in flight")
	// ErrEmptySubmission is returned when there is neither text nor a completed attachment to send.
	ErrEmptySubmission = fmt.Errorf("nothing to send")
	// ErrNotResumable is returned when continue is requested for a task that cannot be resumed.
	ErrNotResumable = fmt.Errorf("task is not resumable")
	// ErrNotRunning is returned when stop is requested with no active task.
	ErrNotRunning = fmt.Errorf("task is not running")
	// ErrUnknownImage is returned when an image reference is not part of the task gallery.
	ErrUnknownImage = fmt.Errorf("unknown image reference")
)
