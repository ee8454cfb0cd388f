// Package store persists task snapshots so a conversation can be reopened
// or continued after a restart.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/brandwork/desk/internal/task"
)

// Store is a key-value lookup of tasks by id.
type Store interface {
	Get(ctx context.Context, id string) (task.Task, error)
	Put(ctx context.Context, t task.Task) error
	// List returns summaries, most recently updated first.
	List(ctx context.Context) ([]task.Summary, error)
	Close() error
}

// Codec turns tasks into stored bytes, sealing them when a Sealer is set.
type Codec struct {
	Sealer *Sealer
}

// Encode serializes t.
func (c Codec) Encode(t task.Task) ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	if c.Sealer == nil {
		return b, nil
	}
	return c.Sealer.Seal(b)
}

// Decode reverses Encode.
func (c Codec) Decode(b []byte) (task.Task, error) {
	if c.Sealer != nil {
		opened, err := c.Sealer.Open(b)
		if err != nil {
			return task.Task{}, err
		}
		b = opened
	}
	var t task.Task
	if err := json.Unmarshal(b, &t); err != nil {
		return task.Task{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return t, nil
}

// SortSummaries orders summaries newest first, breaking ties by id.
func SortSummaries(out []task.Summary) {
	slices.SortFunc(out, func(a, b task.Summary) int {
		if a.UpdatedAt != b.UpdatedAt {
			if a.UpdatedAt > b.UpdatedAt {
				return -1
			}
			return 1
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// Memory is an in-process Store. Values are stored encoded so callers never
// share slices with the store.
type Memory struct {
	codec Codec

	mu    sync.RWMutex
	tasks map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id string) (task.Task, error) {
	m.mu.RLock()
	b, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return task.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.codec.Decode(b)
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, t task.Task) error {
	if t.ID == "" {
		return ErrMissingID
	}
	b, err := m.codec.Encode(t)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.tasks[t.ID] = b
	m.mu.Unlock()
	return nil
}

// List implements Store.
func (m *Memory) List(_ context.Context) ([]task.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]task.Summary, 0, len(m.tasks))
	for _, b := range m.tasks {
		t, err := m.codec.Decode(b)
		if err != nil {
			return nil, err
		}
		out = append(out, t.Summarize())
	}
	SortSummaries(out)
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
