package actor

import (
	"github.com/brandwork/desk/internal/actor"
	"github.com/brandwork/desk/internal/channel"
	"github.com/brandwork/desk/internal/conversation"
	"github.com/brandwork/desk/internal/permission"
	"github.com/brandwork/desk/internal/task"
	"github.com/brandwork/desk/internal/timeline"
	"github.com/brandwork/desk/internal/upload"
)

const (
	// DefaultMaxConcurrentUploads bounds transfers running at once. Units
	// beyond the bound wait as pending.
	DefaultMaxConcurrentUploads = 4
	// DefaultQuestionTimeoutMs applies to questions without their own timeout.
	DefaultQuestionTimeoutMs = 5 * 60 * 1000

	maxNotifications = 50
	// ContinueText is the fixed prompt sent by Continue.
	ContinueText = "Continue"
)

// Settings are the injected, immutable knobs of a session.
type Settings struct {
	Policy               upload.Policy
	MaxConcurrentUploads int
	QuestionTimeoutMs    int64
}

// Level is the severity of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notification is a non-modal, dismissible message for the user.
type Notification struct {
	ID    string
	Level Level
	Text  string
	AtMs  int64
}

// DispatchInfo describes an accepted dispatch for analytics hooks.
type DispatchInfo struct {
	TaskID      string
	SessionID   string
	Resume      bool
	Continue    bool
	TextLength  int
	Attachments int
	Images      int
	AtMs        int64
}

// State is the loop-owned state of one session.
type State struct {
	Settings Settings

	Conv conversation.State
	// View holds segmenter expansion state for Conv.TaskID.
	View timeline.View

	Uploads upload.Set
	// ContextID is the composition context new attachments join.
	ContextID string

	Gate permission.Gate

	// Selected holds image references chosen for the next message, in
	// selection order.
	Selected []task.ImageRef

	// DispatchGen increments per dispatch so stale results are ignored.
	DispatchGen int64
	Inflight    *inflightDispatch

	Notifications []Notification
	NotifySeq     int64
}

// inflightDispatch is the bookkeeping for a dispatch awaiting its ack.
type inflightDispatch struct {
	Gen         int64
	EchoID      string
	PrevContext string
	PrevStatus  task.Status
	PrevRun     int
	Continue    bool
	// NewTask is set when the dispatch asks the agent for a new task, so
	// the first task to speak before the ack is ours.
	NewTask bool
	Info    DispatchInfo
	Reply   chan error
}

// Dispatching reports whether a dispatch is awaiting acknowledgement.
func (s State) Dispatching() bool { return s.Inflight != nil }

// CanSubmit reports whether a send with the given trimmed text would pass
// every precondition.
func (s State) CanSubmit(text string) bool {
	return submitBlocked(s, text) == nil
}

// Inputs

// cmdAddFiles validates and registers files in the current context.
type cmdAddFiles struct {
	actor.InputBase
	Files []upload.File
	IDs   []string
	NowMs int64
	Reply chan error
}

// cmdRetryUpload restarts a failed unit.
type cmdRetryUpload struct {
	actor.InputBase
	ID    string
	Reply chan error
}

// cmdRemoveUpload drops a unit in any state.
type cmdRemoveUpload struct {
	actor.InputBase
	ID    string
	Reply chan error
}

// cmdSubmit sends composed text plus completed attachments.
type cmdSubmit struct {
	actor.InputBase
	Text        string
	MessageID   string
	NextContext string
	NowMs       int64
	Reply       chan error
}

// cmdContinue resumes an interrupted or completed task.
type cmdContinue struct {
	actor.InputBase
	MessageID string
	NowMs     int64
	Reply     chan error
}

// cmdStop interrupts the running task.
type cmdStop struct {
	actor.InputBase
	NowMs int64
	Reply chan error
}

// cmdDecide resolves the pending permission request.
type cmdDecide struct {
	actor.InputBase
	Decision task.Decision
	NowMs    int64
	Reply    chan error
}

// cmdToggleImage adds or removes an image reference from the selection.
type cmdToggleImage struct {
	actor.InputBase
	URL   string
	Reply chan error
}

// cmdToggleBlock expands or collapses a timeline block.
type cmdToggleBlock struct {
	actor.InputBase
	BlockID string
}

// cmdLoadTask replaces the conversation with a stored (or empty) task.
type cmdLoadTask struct {
	actor.InputBase
	Task        task.Task
	NextContext string
	Reply       chan error
}

// cmdDismiss removes a notification.
type cmdDismiss struct {
	actor.InputBase
	ID string
}

// cmdNotify records a notification raised outside the reducer.
type cmdNotify struct {
	actor.InputBase
	Level Level
	Text  string
	NowMs int64
}

// evChannelEvents carries one delivery (single or batch) from the channel.
type evChannelEvents struct {
	actor.InputBase
	Events []task.Event
	NowMs  int64
}

// evUploadProgress reports transfer progress for one attempt.
type evUploadProgress struct {
	actor.InputBase
	ID      string
	Attempt int
	Pct     int
}

// evUploadDone reports the outcome of one attempt.
type evUploadDone struct {
	actor.InputBase
	ID      string
	Attempt int
	Result  upload.Result
	Err     error
	NowMs   int64
}

// evDispatchDone reports the channel's answer to a dispatch or resume.
type evDispatchDone struct {
	actor.InputBase
	Gen    int64
	Result channel.DispatchResult
	Err    error
	NowMs  int64
}

// evCallFailed reports a failed fire-and-forget channel call.
type evCallFailed struct {
	actor.InputBase
	Op    string
	Err   error
	NowMs int64
}

// evTimerFired is emitted when a named timer fires.
type evTimerFired struct {
	actor.InputBase
	Name  string
	NowMs int64
}

// Effects

// effStartUpload starts one transfer attempt.
type effStartUpload struct {
	actor.EffectBase
	UnitID  string
	Attempt int
	Request upload.Request
}

// effCancelUpload aborts the running transfer of a unit.
type effCancelUpload struct {
	actor.EffectBase
	UnitID string
}

// effDispatch sends a message to the agent.
type effDispatch struct {
	actor.EffectBase
	Gen     int64
	Resume  bool
	Request channel.DispatchRequest
}

// effRespond forwards a permission decision.
type effRespond struct {
	actor.EffectBase
	Decision task.Decision
}

// effInterrupt asks the agent to stop the task.
type effInterrupt struct {
	actor.EffectBase
	TaskID string
}

// effPersist writes a task snapshot to the store.
type effPersist struct {
	actor.EffectBase
	Task task.Task
}

// effDispatched fires analytics hooks.
type effDispatched struct {
	actor.EffectBase
	Info DispatchInfo
}

// effStartTimer schedules a named timer.
type effStartTimer struct {
	actor.EffectBase
	Name    string
	AfterMs int64
}

// effCancelTimer cancels a named timer.
type effCancelTimer struct {
	actor.EffectBase
	Name string
}
