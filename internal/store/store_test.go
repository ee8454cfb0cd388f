package store

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/brandwork/desk/internal/task"
	"github.com/stretchr/testify/require"
)

func sample(id string, updated int64) task.Task {
	return task.Task{
		ID:        id,
		Status:    task.StatusCompleted,
		SessionID: "s-" + id,
		Messages:  []task.Message{{ID: "m1", Kind: task.KindUser, Content: "banner for " + id}},
		UpdatedAt: updated,
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemory()
	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, m.Put(ctx, task.Task{}), ErrMissingID)

	require.NoError(t, m.Put(ctx, sample("a", 1)))
	require.NoError(t, m.Put(ctx, sample("b", 2)))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, sample("a", 1), got)

	// Mutating the returned task does not reach the store.
	got.Messages[0].Content = "changed"
	again, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "banner for a", again.Messages[0].Content)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].ID)
	require.Equal(t, "banner for a", list[1].Title)
}

func TestSealerRoundTrip(t *testing.T) {
	t.Parallel()

	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	s := NewSealer(key)

	sealed, err := s.Seal([]byte("secret task"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "secret task")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "secret task", string(plain))

	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(sealed)
	require.ErrorIs(t, err, ErrSealed)

	_, err = s.Open([]byte("short"))
	require.ErrorIs(t, err, ErrSealed)
}

func TestParseSealKey(t *testing.T) {
	t.Parallel()

	s, err := ParseSealKey("")
	require.NoError(t, err)
	require.Nil(t, s)

	_, err = ParseSealKey(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)

	s, err = ParseSealKey(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestCodecWithSealer(t *testing.T) {
	t.Parallel()

	s, err := ParseSealKey(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)

	c := Codec{Sealer: s}
	b, err := c.Encode(sample("a", 1))
	require.NoError(t, err)
	require.NotContains(t, string(b), "banner")

	got, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, "a", got.ID)

	_, err = Codec{}.Decode([]byte("{not json"))
	require.ErrorIs(t, err, ErrCorrupt)
}
