// Package sqlitestore is a store.Store backed by a local SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/brandwork/desk/internal/store"
	"github.com/brandwork/desk/internal/task"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements store.Store using SQLite.
type Store struct {
	db    *sql.DB
	codec store.Codec
}

var _ store.Store = (*Store)(nil)

// Open opens (and migrates) the database at dsn.
func Open(dsn string, sealer *store.Sealer) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; the database file is not shared between processes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, codec: store.Codec{Sealer: sealer}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_updated ON tasks(updated_at DESC)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (task.Task, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM tasks WHERE task_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to get task: %w", err)
	}
	return s.codec.Decode(payload)
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, t task.Task) error {
	if t.ID == "" {
		return store.ErrMissingID
	}
	payload, err := s.codec.Encode(t)
	if err != nil {
		return err
	}
	// Titles are listed in the clear only when payloads are not sealed.
	title := ""
	if s.codec.Sealer == nil {
		title = t.Summarize().Title
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, status, title, updated_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			title = excluded.title,
			updated_at = excluded.updated_at,
			payload = excluded.payload`,
		t.ID, string(t.Status), title, t.UpdatedAt, payload)
	if err != nil {
		return fmt.Errorf("failed to put task: %w", err)
	}
	return nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]task.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, status, title, updated_at, payload FROM tasks ORDER BY updated_at DESC, task_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Summary
	for rows.Next() {
		var (
			sum     task.Summary
			status  string
			payload []byte
		)
		if err := rows.Scan(&sum.ID, &status, &sum.Title, &sum.UpdatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		sum.Status = task.Status(status)
		if s.codec.Sealer != nil {
			t, err := s.codec.Decode(payload)
			if err != nil {
				return nil, err
			}
			sum.Title = t.Summarize().Title
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
