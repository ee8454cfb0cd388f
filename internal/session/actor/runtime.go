package actor

import (
	"context"
	"sync"
	"time"

	"github.com/brandwork/desk/internal/actor"
	"github.com/brandwork/desk/internal/channel"
	"github.com/brandwork/desk/internal/logger"
	"github.com/brandwork/desk/internal/store"
	"github.com/brandwork/desk/internal/upload"
)

const (
	callTimeout    = 30 * time.Second
	persistTimeout = 5 * time.Second
)

// Runtime executes session effects. It never touches State; results come
// back through emit.
type Runtime struct {
	channel    channel.Channel
	transport  upload.Transport
	store      store.Store
	clock      actor.Clock
	onDispatch func(DispatchInfo)

	mu      sync.Mutex
	uploads map[string]transfer
	timers  map[string]*time.Timer
	wg      sync.WaitGroup

	// Writes for one task land in effect order: a write older than the
	// last stored one is skipped.
	persistMu  sync.Mutex
	persistSeq uint64
	persisted  map[string]uint64
}

// transfer is the running attempt of one unit.
type transfer struct {
	attempt int
	cancel  context.CancelFunc
}

// RuntimeConfig wires a Runtime to its collaborators.
type RuntimeConfig struct {
	Channel    channel.Channel
	Transport  upload.Transport
	Store      store.Store
	Clock      actor.Clock
	OnDispatch func(DispatchInfo)
}

// NewRuntime returns a Runtime. Store and OnDispatch are optional.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	clock := cfg.Clock
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Runtime{
		channel:    cfg.Channel,
		transport:  cfg.Transport,
		store:      cfg.Store,
		clock:      clock,
		onDispatch: cfg.OnDispatch,
		uploads:    make(map[string]transfer),
		timers:     make(map[string]*time.Timer),
		persisted:  make(map[string]uint64),
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effStartUpload:
			r.startUpload(ctx, e, emit)
		case effCancelUpload:
			r.cancelUpload(e.UnitID)
		case effDispatch:
			r.dispatch(ctx, e, emit)
		case effRespond:
			r.call(ctx, "permission response", emit, func(ctx context.Context) error {
				return r.channel.RespondToPermission(ctx, e.Decision)
			})
		case effInterrupt:
			r.call(ctx, "stop", emit, func(ctx context.Context) error {
				return r.channel.Interrupt(ctx, e.TaskID)
			})
		case effPersist:
			r.persist(ctx, e)
		case effDispatched:
			if r.onDispatch != nil {
				r.onDispatch(e.Info)
			}
		case effStartTimer:
			r.startTimer(ctx, e, emit)
		case effCancelTimer:
			r.cancelTimer(e.Name)
		default:
			// Unknown effect: ignore.
		}
	}
}

// Stop implements actor.Runtime. It cancels transfers and timers and waits
// for outstanding goroutines.
func (r *Runtime) Stop() {
	r.mu.Lock()
	for id, t := range r.uploads {
		t.cancel()
		delete(r.uploads, id)
	}
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runtime) nowMs() int64 { return r.clock.Now().UnixMilli() }

func (r *Runtime) startUpload(ctx context.Context, eff effStartUpload, emit func(actor.Input)) {
	if r.transport == nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			emit(evUploadDone{ID: eff.UnitID, Attempt: eff.Attempt, Err: upload.ErrRejected, NowMs: r.nowMs()})
		}()
		return
	}
	upCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if prev, ok := r.uploads[eff.UnitID]; ok {
		prev.cancel()
	}
	r.uploads[eff.UnitID] = transfer{attempt: eff.Attempt, cancel: cancel}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.releaseUpload(eff.UnitID, eff.Attempt, cancel)

		progress := func(pct int) {
			if upCtx.Err() != nil {
				return
			}
			emit(evUploadProgress{ID: eff.UnitID, Attempt: eff.Attempt, Pct: pct})
		}
		res, err := r.transport.Upload(upCtx, eff.Request, progress)
		if upCtx.Err() != nil && err == nil {
			err = upCtx.Err()
		}
		if err != nil {
			logger.Debugf("session: upload %s attempt %d failed: %v", eff.UnitID, eff.Attempt, err)
		}
		emit(evUploadDone{ID: eff.UnitID, Attempt: eff.Attempt, Result: res, Err: err, NowMs: r.nowMs()})
	}()
}

// releaseUpload forgets a finished attempt, leaving a newer attempt's
// registration alone.
func (r *Runtime) releaseUpload(id string, attempt int, cancel context.CancelFunc) {
	cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.uploads[id]; ok && t.attempt == attempt {
		delete(r.uploads, id)
	}
}

func (r *Runtime) cancelUpload(id string) {
	r.mu.Lock()
	t, ok := r.uploads[id]
	delete(r.uploads, id)
	r.mu.Unlock()
	if ok {
		logger.Debugf("session: cancelling upload %s", id)
		t.cancel()
	}
}

func (r *Runtime) dispatch(ctx context.Context, eff effDispatch, emit func(actor.Input)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		var (
			res channel.DispatchResult
			err error
		)
		if eff.Resume {
			res, err = r.channel.Resume(callCtx, eff.Request)
		} else {
			res, err = r.channel.Dispatch(callCtx, eff.Request)
		}
		emit(evDispatchDone{Gen: eff.Gen, Result: res, Err: err, NowMs: r.nowMs()})
	}()
}

// call runs a fire-and-forget channel call, reporting only failures.
func (r *Runtime) call(ctx context.Context, op string, emit func(actor.Input), fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		if err := fn(callCtx); err != nil {
			emit(evCallFailed{Op: op, Err: err, NowMs: r.nowMs()})
		}
	}()
}

func (r *Runtime) persist(ctx context.Context, eff effPersist) {
	if r.store == nil || eff.Task.ID == "" {
		return
	}
	r.persistMu.Lock()
	r.persistSeq++
	seq := r.persistSeq
	r.persistMu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.persistMu.Lock()
		defer r.persistMu.Unlock()
		if r.persisted[eff.Task.ID] > seq {
			return
		}
		putCtx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()
		if err := r.store.Put(putCtx, eff.Task); err != nil {
			logger.Warnf("session: failed to persist task %s: %v", eff.Task.ID, err)
			return
		}
		r.persisted[eff.Task.ID] = seq
	}()
}

// startTimer schedules a single named timer and emits evTimerFired when it fires.
func (r *Runtime) startTimer(ctx context.Context, eff effStartTimer, emit func(actor.Input)) {
	if eff.Name == "" || eff.AfterMs <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev := r.timers[eff.Name]; prev != nil {
		prev.Stop()
	}
	after := time.Duration(eff.AfterMs) * time.Millisecond
	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.mu.Lock()
		if r.timers[eff.Name] == timer {
			delete(r.timers, eff.Name)
		}
		r.mu.Unlock()
		emit(evTimerFired{Name: eff.Name, NowMs: r.nowMs()})
	})
	r.timers[eff.Name] = timer
}

// cancelTimer cancels a previously started named timer.
func (r *Runtime) cancelTimer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.timers[name]; t != nil {
		t.Stop()
	}
	delete(r.timers, name)
}
