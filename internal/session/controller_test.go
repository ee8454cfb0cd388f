package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandwork/desk/internal/actor/actortest"
	"github.com/brandwork/desk/internal/channel/channeltest"
	sessionactor "github.com/brandwork/desk/internal/session/actor"
	"github.com/brandwork/desk/internal/store"
	"github.com/brandwork/desk/internal/task"
	"github.com/brandwork/desk/internal/upload"
)

const (
	waitFor = 2 * time.Second
	startMs = 1_700_000_000_000
)

func cdnTransport() upload.Transport {
	return upload.TransportFunc(func(_ context.Context, req upload.Request, progress func(int)) (upload.Result, error) {
		progress(upload.ProgressSent)
		return upload.Result{URL: "https://cdn/" + req.Filename, FileID: "f-" + req.Filename}, nil
	})
}

func seqIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

type harness struct {
	ctl   *Controller
	ch    *channeltest.Fake
	store *store.Memory
}

func newHarness(t *testing.T, mutate func(*Options)) harness {
	t.Helper()
	h := harness{ch: &channeltest.Fake{}, store: store.NewMemory()}
	opts := Options{
		Channel:   h.ch,
		Transport: cdnTransport(),
		Policy:    upload.DefaultPolicy{MaxBytes: 16},
		Store:     h.store,
		Clock:     actortest.NewFakeClock(time.UnixMilli(startMs)),
		NewID:     seqIDs(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	ctl, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctl.Close() })
	h.ctl = ctl
	return h
}

func (h harness) waitSnapshot(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = h.ctl.Snapshot()
		return cond(snap)
	}, waitFor, 5*time.Millisecond)
	return snap
}

func TestNewRequiresChannel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.ErrorIs(t, err, ErrNoChannel)
}

func TestAttachValidateUploadAndSend(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		dispatched []sessionactor.DispatchInfo
	)
	h := newHarness(t, func(o *Options) {
		o.OnDispatch = func(info sessionactor.DispatchInfo) {
			mu.Lock()
			dispatched = append(dispatched, info)
			mu.Unlock()
		}
	})
	ctx := context.Background()

	ids, err := h.ctl.AddFiles(ctx,
		upload.File{Name: "logo.png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")},
		upload.File{Name: "huge.bin", Data: make([]byte, 17)},
	)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	snap := h.waitSnapshot(t, func(s Snapshot) bool {
		u, ok := s.Unit(ids[0])
		return ok && u.Status == upload.StatusCompleted
	})
	require.Len(t, snap.Uploads, 1, "the oversized file never becomes a unit")
	require.Len(t, snap.Notifications, 1)
	require.Contains(t, snap.Notifications[0].Text, "huge.bin")
	require.Equal(t, 100, snap.Uploads[0].Progress)
	require.NotEmpty(t, snap.Uploads[0].PreviewDataURL)
	require.True(t, snap.CanSubmit)

	require.NoError(t, h.ctl.Submit(ctx, "please review"))

	require.Len(t, h.ch.Dispatches(), 1)
	req := h.ch.Dispatches()[0]
	require.Equal(t, "please review", req.Text)
	require.Len(t, req.Attachments, 1)
	require.Equal(t, "https://cdn/logo.png", req.Attachments[0].URL)

	snap = h.ctl.Snapshot()
	require.Equal(t, "task-1", snap.TaskID)
	require.Equal(t, "session-task-1", snap.SessionID)
	require.Equal(t, task.StatusRunning, snap.Status)
	require.Empty(t, snap.Uploads)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, task.KindUser, snap.Messages[0].Kind)

	mu.Lock()
	require.Len(t, dispatched, 1)
	require.Equal(t, 1, dispatched[0].Attachments)
	mu.Unlock()

	require.Eventually(t, func() bool {
		_, err := h.store.Get(ctx, "task-1")
		return err == nil
	}, waitFor, 5*time.Millisecond)
}

func TestStreamedEventsBuildTimeline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctl.Submit(ctx, "design a logo"))

	var (
		mu   sync.Mutex
		seen Snapshot
	)
	sub := h.ctl.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = s
		mu.Unlock()
	})
	defer sub.Close()

	h.ch.Emit(
		task.Event{Type: task.EventMessage, TaskID: "task-1", Message: &task.Message{ID: "a1", Kind: task.KindAssistant, Content: "Let me look"}},
		task.Event{Type: task.EventMessage, TaskID: "task-1", Message: &task.Message{ID: "t1", Kind: task.KindTool, ToolName: "search", ToolStatus: task.ToolRunning}},
	)
	h.ch.Emit(
		task.Event{Type: task.EventMessage, TaskID: "task-1", Message: &task.Message{ID: "t1", Kind: task.KindTool, ToolStatus: task.ToolSuccess}},
		task.Event{Type: task.EventMessage, TaskID: "task-1", Message: &task.Message{ID: "a2", Kind: task.KindAssistant, Content: "Here it is"}},
		task.Event{Type: task.EventImage, TaskID: "task-1", Image: &task.ImageRef{Label: "Logo", URL: "https://img/logo"}},
		task.Event{Type: task.EventComplete, TaskID: "task-1"},
		task.Event{Type: task.EventMessage, TaskID: "other", Message: &task.Message{ID: "x", Kind: task.KindAssistant, Content: "stray"}},
	)

	snap := h.waitSnapshot(t, func(s Snapshot) bool { return s.Status == task.StatusCompleted })
	require.Len(t, snap.Messages, 4)
	require.Equal(t, task.ToolSuccess, snap.Messages[2].ToolStatus)
	require.Len(t, snap.Timeline, 3, "user, one activity block, final answer")
	require.NotNil(t, snap.Timeline[1].Block)
	require.Len(t, snap.Timeline[1].Block.Entries, 2)
	require.True(t, snap.Resumable())
	require.Len(t, snap.Images, 1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen.Status == task.StatusCompleted
	}, waitFor, 5*time.Millisecond)

	// Selected images are prefixed on the next send.
	require.NoError(t, h.ctl.ToggleImage(ctx, "https://img/logo"))
	require.NoError(t, h.ctl.Submit(ctx, "bigger"))
	require.Len(t, h.ch.Resumes(), 1)
	require.Equal(t, "[Logo] bigger", h.ch.Resumes()[0].Text)
	require.Empty(t, h.ctl.Snapshot().Selected)
}

func TestPermissionBlocksSubmission(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctl.Submit(ctx, "clean up"))

	require.ErrorIs(t, h.ctl.Decide(ctx, task.Decision{Decision: task.DecisionAllow}), ErrNoPermission)

	h.ch.Emit(task.Event{Type: task.EventPermissionRequest, TaskID: "task-1", Permission: &task.PermissionRequest{
		ID: "p1", TaskID: "task-1", Type: task.RequestTool, ToolName: "shell", Command: "rm -rf build",
	}})
	h.waitSnapshot(t, func(s Snapshot) bool { return s.Pending != nil })

	require.ErrorIs(t, h.ctl.Submit(ctx, "hurry"), sessionactor.ErrPermissionPending)

	require.NoError(t, h.ctl.Decide(ctx, task.Decision{Decision: task.DecisionDeny}))
	snap := h.ctl.Snapshot()
	require.Nil(t, snap.Pending)
	require.Equal(t, task.StatusInterrupted, snap.Status)

	require.Eventually(t, func() bool { return len(h.ch.Decisions()) == 1 }, waitFor, 5*time.Millisecond)
	d := h.ch.Decisions()[0]
	require.Equal(t, "p1", d.RequestID)
	require.Equal(t, "task-1", d.TaskID)

	require.NoError(t, h.ctl.Continue(ctx))
	require.Len(t, h.ch.Resumes(), 1)
	require.Equal(t, sessionactor.ContinueText, h.ch.Resumes()[0].Text)
}

func TestStopInterruptsRunningTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	require.ErrorIs(t, h.ctl.Stop(ctx), sessionactor.ErrNotRunning)

	require.NoError(t, h.ctl.Submit(ctx, "go"))
	require.NoError(t, h.ctl.Stop(ctx))
	require.Equal(t, task.StatusInterrupted, h.ctl.Snapshot().Status)
	require.Eventually(t, func() bool { return len(h.ch.Interrupts()) == 1 }, waitFor, 5*time.Millisecond)
}

func TestSwitchTaskRestoresStoredConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctl.Submit(ctx, "first"))
	h.ch.Emit(task.Event{Type: task.EventComplete, TaskID: "task-1"})
	h.waitSnapshot(t, func(s Snapshot) bool { return s.Status == task.StatusCompleted })
	require.Eventually(t, func() bool {
		got, err := h.store.Get(ctx, "task-1")
		return err == nil && got.Status == task.StatusCompleted
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, h.ctl.SwitchTask(ctx, ""))
	snap := h.ctl.Snapshot()
	require.Empty(t, snap.TaskID)
	require.Empty(t, snap.Messages)

	list, err := h.ctl.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, h.ctl.SwitchTask(ctx, "task-1"))
	snap = h.ctl.Snapshot()
	require.Equal(t, "task-1", snap.TaskID)
	require.Len(t, snap.Messages, 1)
	require.True(t, snap.Resumable())

	require.ErrorIs(t, h.ctl.SwitchTask(ctx, "missing"), store.ErrNotFound)
}

func TestAddPathsReportsUnreadableFiles(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ids, err := h.ctl.AddPaths(context.Background(), "/does/not/exist.png")
	require.NoError(t, err)
	require.Empty(t, ids)

	snap := h.waitSnapshot(t, func(s Snapshot) bool { return len(s.Notifications) == 1 })
	require.Equal(t, sessionactor.LevelWarn, snap.Notifications[0].Level)

	require.NoError(t, h.ctl.Dismiss(snap.Notifications[0].ID))
	h.waitSnapshot(t, func(s Snapshot) bool { return len(s.Notifications) == 0 })
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.ctl.Close())
	require.NoError(t, h.ctl.Close())
	require.ErrorIs(t, h.ctl.Submit(context.Background(), "late"), ErrClosed)
	require.Zero(t, h.ch.Len(), "the channel subscription is released")
}

func TestBurstOfChannelDeliveriesIsKept(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.ctl.Submit(context.Background(), "stream a lot"))

	const n = 5000
	for i := 0; i < n; i++ {
		h.ch.Emit(task.Event{Type: task.EventMessage, TaskID: "task-1", Message: &task.Message{
			ID: fmt.Sprintf("a%d", i), Kind: task.KindAssistant, Content: "chunk",
		}})
	}

	require.Eventually(t, func() bool {
		return len(h.ctl.Snapshot().Messages) == n+1
	}, 10*time.Second, 10*time.Millisecond)
}

func TestUploadsCarryCompositionID(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		ids []string
	)
	h := newHarness(t, func(o *Options) {
		o.Transport = upload.TransportFunc(func(_ context.Context, req upload.Request, _ func(int)) (upload.Result, error) {
			mu.Lock()
			ids = append(ids, req.TaskID)
			mu.Unlock()
			return upload.Result{URL: "https://cdn/" + req.Filename}, nil
		})
	})
	ctx := context.Background()

	first, err := h.ctl.AddFiles(ctx, upload.File{Name: "a.txt", Data: []byte("a")})
	require.NoError(t, err)
	h.waitSnapshot(t, func(s Snapshot) bool {
		u, ok := s.Unit(first[0])
		return ok && u.Status == upload.StatusCompleted
	})
	require.NoError(t, h.ctl.Submit(ctx, "one"))

	second, err := h.ctl.AddFiles(ctx, upload.File{Name: "b.txt", Data: []byte("b")})
	require.NoError(t, err)
	h.waitSnapshot(t, func(s Snapshot) bool {
		u, ok := s.Unit(second[0])
		return ok && u.Status == upload.StatusCompleted
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 2)
	require.NotEmpty(t, ids[0])
	require.NotEmpty(t, ids[1])
	require.NotEqual(t, ids[0], ids[1])
}

func TestNewConversationIgnoresPreviousTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctl.Submit(ctx, "long job"))
	require.NoError(t, h.ctl.SwitchTask(ctx, ""))

	h.ch.Emit(task.Event{Type: task.EventMessage, TaskID: "task-1", Message: &task.Message{
		ID: "late", Kind: task.KindAssistant, Content: "still working",
	}})
	require.NoError(t, h.ctl.Submit(ctx, "something else"))

	require.Len(t, h.ch.Dispatches(), 2)
	require.Empty(t, h.ch.Resumes())
	snap := h.ctl.Snapshot()
	require.Equal(t, "task-2", snap.TaskID)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "something else", snap.Messages[0].Content)
	require.Equal(t, int64(startMs), snap.Messages[0].Timestamp)
}
