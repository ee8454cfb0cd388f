package upload

import (
	"encoding/base64"
	"strings"

	"github.com/brandwork/desk/internal/task"
)

// Status is the lifecycle state of a single upload unit.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Progress milestones reported by transports that cannot stream byte counts.
const (
	ProgressRead    = 10
	ProgressEncoded = 30
	ProgressSent    = 90
	ProgressDone    = 100
)

// File is a candidate attachment before it has been accepted.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Unit tracks one file through validation, transfer and completion.
//
// Units are values; Set hands out copies so callers can never mutate the
// coordinator's view.
type Unit struct {
	ID             string
	ContextID      string
	Filename       string
	ContentType    string
	Size           int64
	Status         Status
	Progress       int
	PreviewDataURL string
	URL            string
	FileID         string
	Error          string
	// Attempt increases every time a transfer starts. Results carrying an
	// older attempt are stale and ignored.
	Attempt int

	data []byte
}

// NewUnit registers f as a pending unit inside the composition context.
func NewUnit(id, contextID string, f File) Unit {
	u := Unit{
		ID:          id,
		ContextID:   contextID,
		Filename:    f.Name,
		ContentType: f.ContentType,
		Size:        f.Size(),
		Status:      StatusPending,
		data:        f.Data,
	}
	if strings.HasPrefix(f.ContentType, "image/") {
		u.PreviewDataURL = "data:" + f.ContentType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
	}
	return u
}

// HasSource reports whether the unit still holds its source bytes.
func (u Unit) HasSource() bool { return u.data != nil }

// Source returns the unit's source bytes, nil after a successful upload.
func (u Unit) Source() []byte { return u.data }

// InFlight reports whether a transfer is pending or running.
func (u Unit) InFlight() bool {
	return u.Status == StatusPending || u.Status == StatusUploading
}

// Settled reports whether the unit reached a terminal state.
func (u Unit) Settled() bool {
	return u.Status == StatusCompleted || u.Status == StatusFailed
}

// Request builds the transport request for the unit. Files are grouped
// under the composition context they were attached to, which exists before
// the agent assigns a task id.
func (u Unit) Request() Request {
	return Request{
		UnitID:      u.ID,
		TaskID:      u.ContextID,
		Filename:    u.Filename,
		ContentType: u.ContentType,
		Data:        u.data,
	}
}

// Ref converts a completed unit into the attachment reference sent to the agent.
func (u Unit) Ref() task.AttachmentRef {
	return task.AttachmentRef{
		ID:          u.ID,
		Filename:    u.Filename,
		ContentType: u.ContentType,
		Size:        u.Size,
		URL:         u.URL,
	}
}
