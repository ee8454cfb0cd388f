package channel

import (
	"testing"

	"github.com/brandwork/desk/internal/task"
	"github.com/stretchr/testify/require"
)

func TestHandlersDeliverInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	var hs Handlers
	var order []string
	first := hs.Add(func(evs []task.Event) { order = append(order, "a:"+evs[0].TaskID) })
	hs.Add(func(evs []task.Event) { order = append(order, "b:"+evs[0].TaskID) })

	hs.Deliver([]task.Event{{TaskID: "t1"}})
	require.Equal(t, []string{"a:t1", "b:t1"}, order)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())
	require.Equal(t, 1, hs.Len())

	hs.Deliver([]task.Event{{TaskID: "t2"}})
	require.Equal(t, []string{"a:t1", "b:t1", "b:t2"}, order)

	// Empty batches are not delivered.
	hs.Deliver(nil)
	require.Len(t, order, 3)
}

func TestAckErr(t *testing.T) {
	t.Parallel()

	require.NoError(t, Ack{OK: true}.Err())
	require.ErrorIs(t, Ack{}.Err(), ErrRefused)
	err := Ack{Error: "busy"}.Err()
	require.ErrorIs(t, err, ErrRefused)
	require.Contains(t, err.Error(), "busy")
}
