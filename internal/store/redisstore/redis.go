// Package redisstore is a store.Store backed by Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brandwork/desk/internal/store"
	"github.com/brandwork/desk/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "desk:task:"
	indexKey  = "desk:tasks"
)

// Store keeps each task as a string value and indexes ids in a sorted set
// scored by UpdatedAt.
type Store struct {
	client *redis.Client
	codec  store.Codec
}

var _ store.Store = (*Store)(nil)

// Open connects to redisURL and verifies the connection.
func Open(redisURL string, sealer *store.Sealer) (*Store, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return New(client, sealer), nil
}

// New wraps an existing client.
func New(client *redis.Client, sealer *store.Sealer) *Store {
	return &Store{client: client, codec: store.Codec{Sealer: sealer}}
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (task.Task, error) {
	b, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return task.Task{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("redis get: %w", err)
	}
	return s.codec.Decode(b)
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, t task.Task) error {
	if t.ID == "" {
		return store.ErrMissingID
	}
	b, err := s.codec.Encode(t)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+t.ID, b, 0)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(t.UpdatedAt), Member: t.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]task.Summary, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	out := make([]task.Summary, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t.Summarize())
	}
	store.SortSummaries(out)
	return out, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.client.Close()
}
