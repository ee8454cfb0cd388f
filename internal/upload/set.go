package upload

import "fmt"

// Set is the attachment coordinator state: an ordered collection of units.
//
// Set is immutable. Every mutating method returns a new Set and leaves the
// receiver untouched, so the session reducer can hold it in its state and
// hand snapshots to readers without locking.
type Set struct {
	units []Unit
}

// Units returns a copy of all units in registration order.
func (s Set) Units() []Unit {
	out := make([]Unit, len(s.units))
	copy(out, s.units)
	return out
}

// Len returns the number of registered units.
func (s Set) Len() int { return len(s.units) }

// Get returns the unit with the given id.
func (s Set) Get(id string) (Unit, bool) {
	if i := s.index(id); i >= 0 {
		return s.units[i], true
	}
	return Unit{}, false
}

// InContext returns the units registered under contextID.
func (s Set) InContext(contextID string) []Unit {
	var out []Unit
	for _, u := range s.units {
		if u.ContextID == contextID {
			out = append(out, u)
		}
	}
	return out
}

// Add registers u. Adding an id that already exists replaces nothing and
// returns the set unchanged.
func (s Set) Add(u Unit) Set {
	if s.index(u.ID) >= 0 {
		return s
	}
	next := make([]Unit, len(s.units), len(s.units)+1)
	copy(next, s.units)
	return Set{units: append(next, u)}
}

// Begin moves a pending or failed unit to uploading and bumps its attempt.
func (s Set) Begin(id string) (Set, Unit, error) {
	i := s.index(id)
	if i < 0 {
		return s, Unit{}, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	u := s.units[i]
	switch u.Status {
	case StatusPending, StatusFailed:
	default:
		return s, u, fmt.Errorf("%w: %s is %s", ErrBusy, id, u.Status)
	}
	if !u.HasSource() {
		return s, u, fmt.Errorf("%w: %s has no source", ErrNotRetryable, id)
	}
	u.Status = StatusUploading
	u.Attempt++
	u.Progress = 0
	u.Error = ""
	return s.replace(i, u), u, nil
}

// Retry restarts a failed unit that still holds its source bytes.
func (s Set) Retry(id string) (Set, Unit, error) {
	u, ok := s.Get(id)
	if !ok {
		return s, Unit{}, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	if u.Status != StatusFailed || !u.HasSource() {
		return s, u, fmt.Errorf("%w: %s", ErrNotRetryable, id)
	}
	return s.Begin(id)
}

// Progress records transfer progress for the given attempt. Progress never
// moves backwards and stale attempts are ignored.
func (s Set) Progress(id string, attempt, pct int) (Set, bool) {
	i, ok := s.live(id, attempt)
	if !ok {
		return s, false
	}
	u := s.units[i]
	pct = min(max(pct, 0), ProgressDone)
	if pct <= u.Progress {
		return s, false
	}
	u.Progress = pct
	return s.replace(i, u), true
}

// Complete marks the attempt successful and discards the source bytes.
func (s Set) Complete(id string, attempt int, res Result) (Set, bool) {
	i, ok := s.live(id, attempt)
	if !ok {
		return s, false
	}
	u := s.units[i]
	u.Status = StatusCompleted
	u.Progress = ProgressDone
	u.URL = res.URL
	u.FileID = res.FileID
	u.Error = ""
	u.data = nil
	return s.replace(i, u), true
}

// Fail marks the attempt failed. Source bytes are kept for retry.
func (s Set) Fail(id string, attempt int, reason string) (Set, bool) {
	i, ok := s.live(id, attempt)
	if !ok {
		return s, false
	}
	u := s.units[i]
	u.Status = StatusFailed
	u.Error = reason
	return s.replace(i, u), true
}

// Remove drops the unit in any state. It returns the removed unit so the
// caller can cancel an in-flight transfer.
func (s Set) Remove(id string) (Set, Unit, bool) {
	i := s.index(id)
	if i < 0 {
		return s, Unit{}, false
	}
	removed := s.units[i]
	next := make([]Unit, 0, len(s.units)-1)
	next = append(next, s.units[:i]...)
	next = append(next, s.units[i+1:]...)
	return Set{units: next}, removed, true
}

// DropContext removes every unit registered under contextID.
func (s Set) DropContext(contextID string) Set {
	next := make([]Unit, 0, len(s.units))
	for _, u := range s.units {
		if u.ContextID != contextID {
			next = append(next, u)
		}
	}
	return Set{units: next}
}

// MoveContext re-tags every unit of from as belonging to to.
func (s Set) MoveContext(from, to string) Set {
	next := make([]Unit, len(s.units))
	copy(next, s.units)
	for i := range next {
		if next[i].ContextID == from {
			next[i].ContextID = to
		}
	}
	return Set{units: next}
}

// Uploading counts units with a transfer running.
func (s Set) Uploading() int {
	n := 0
	for _, u := range s.units {
		if u.Status == StatusUploading {
			n++
		}
	}
	return n
}

// HasInFlight reports whether any unit in contextID is pending or uploading.
func (s Set) HasInFlight(contextID string) bool {
	for _, u := range s.units {
		if u.ContextID == contextID && u.InFlight() {
			return true
		}
	}
	return false
}

// AllSettled reports whether every unit in contextID is completed or failed.
func (s Set) AllSettled(contextID string) bool {
	return !s.HasInFlight(contextID)
}

// CompletedSet returns the completed units of contextID in registration order.
func (s Set) CompletedSet(contextID string) []Unit {
	var out []Unit
	for _, u := range s.units {
		if u.ContextID == contextID && u.Status == StatusCompleted {
			out = append(out, u)
		}
	}
	return out
}

func (s Set) live(id string, attempt int) (int, bool) {
	i := s.index(id)
	if i < 0 {
		return -1, false
	}
	u := s.units[i]
	if u.Status != StatusUploading || u.Attempt != attempt {
		return -1, false
	}
	return i, true
}

func (s Set) index(id string) int {
	for i := range s.units {
		if s.units[i].ID == id {
			return i
		}
	}
	return -1
}

func (s Set) replace(i int, u Unit) Set {
	next := make([]Unit, len(s.units))
	copy(next, s.units)
	next[i] = u
	return Set{units: next}
}
