package wschannel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brandwork/desk/internal/auth"
	"github.com/brandwork/desk/internal/channel"
	"github.com/brandwork/desk/internal/task"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// agentServer acks every call and, on dispatch, streams a batch of events.
type agentServer struct {
	mu    sync.Mutex
	calls []Frame
	authz string
}

func (a *agentServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.authz = r.Header.Get("Authorization")
		a.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			a.mu.Lock()
			a.calls = append(a.calls, f)
			a.mu.Unlock()

			ack := channel.Ack{OK: true}
			switch f.Op {
			case channel.OpDispatch:
				ack.TaskID = "t1"
				ack.SessionID = "s1"
			case channel.OpInterrupt:
				ack = channel.Ack{Error: "not running"}
			}
			data, _ := json.Marshal(ack)
			if err := conn.WriteJSON(Frame{Kind: KindAck, ID: f.ID, Data: data}); err != nil {
				return
			}
			if f.Op == channel.OpDispatch {
				batch := `[{"type":"status","taskId":"t1","status":"running"},` +
					`{"type":"message","taskId":"t1","message":{"id":"m1","kind":"assistant","content":"hello"}}]`
				_ = conn.WriteJSON(Frame{Kind: KindEvent, Data: json.RawMessage(batch)})
			}
		}
	}
}

func dial(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), url, auth.Static("tok"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDispatchAckAndEventBatch(t *testing.T) {
	t.Parallel()

	agent := &agentServer{}
	srv := httptest.NewServer(agent.handler(t))
	defer srv.Close()
	c := dial(t, srv)

	got := make(chan []task.Event, 1)
	sub, err := c.Subscribe(func(evs []task.Event) { got <- evs })
	require.NoError(t, err)
	defer sub.Close()

	res, err := c.Dispatch(context.Background(), channel.DispatchRequest{Text: "make a banner"})
	require.NoError(t, err)
	require.Equal(t, "t1", res.TaskID)
	require.Equal(t, "s1", res.SessionID)

	select {
	case evs := <-got:
		require.Len(t, evs, 2)
		require.Equal(t, task.EventStatus, evs[0].Type)
		require.Equal(t, "hello", evs[1].Message.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for events")
	}

	agent.mu.Lock()
	defer agent.mu.Unlock()
	require.Equal(t, "Bearer tok", agent.authz)
	require.Equal(t, channel.OpDispatch, agent.calls[0].Op)
	var sent channel.DispatchRequest
	require.NoError(t, json.Unmarshal(agent.calls[0].Data, &sent))
	require.Equal(t, "make a banner", sent.Text)
}

func TestNegativeAckAndPermission(t *testing.T) {
	t.Parallel()

	agent := &agentServer{}
	srv := httptest.NewServer(agent.handler(t))
	defer srv.Close()
	c := dial(t, srv)

	err := c.Interrupt(context.Background(), "t1")
	require.ErrorIs(t, err, channel.ErrRefused)
	require.Contains(t, err.Error(), "not running")

	require.NoError(t, c.RespondToPermission(context.Background(), task.Decision{
		RequestID: "p1", TaskID: "t1", Decision: task.DecisionAllow,
	}))

	_, err = c.Resume(context.Background(), channel.DispatchRequest{Text: "Continue"})
	require.Error(t, err)
}

func TestCallAfterCloseFails(t *testing.T) {
	t.Parallel()

	agent := &agentServer{}
	srv := httptest.NewServer(agent.handler(t))
	defer srv.Close()
	c := dial(t, srv)

	require.NoError(t, c.Close())
	_, err := c.Dispatch(context.Background(), channel.DispatchRequest{Text: "x"})
	require.ErrorIs(t, err, channel.ErrNotConnected)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}
}
