// Package wschannel implements channel.Channel over a plain WebSocket
// carrying JSON frames.
package wschannel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/brandwork/desk/internal/auth"
	"github.com/brandwork/desk/internal/channel"
	"github.com/brandwork/desk/internal/logger"
	"github.com/brandwork/desk/internal/task"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame kinds.
const (
	KindCall  = "call"
	KindAck   = "ack"
	KindEvent = "event"
)

// Path is the WebSocket endpoint on the agent server.
const Path = "/v1/tasks/ws"

const defaultAckTimeout = 10 * time.Second

// Frame is one JSON message on the socket.
type Frame struct {
	Kind string          `json:"kind"`
	ID   string          `json:"id,omitempty"`
	Op   string          `json:"op,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client is a WebSocket backed agent channel.
type Client struct {
	url        string
	tokens     auth.TokenSource
	ackTimeout time.Duration

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan channel.Ack
	closed  bool
	done    chan struct{}

	handlers channel.Handlers
}

var _ channel.Channel = (*Client)(nil)

// Dial connects to url and starts the read loop.
func Dial(ctx context.Context, url string, tokens auth.TokenSource) (*Client, error) {
	header := http.Header{}
	if tokens != nil {
		token, err := tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("wschannel token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c := &Client{
		url:        url,
		tokens:     tokens,
		ackTimeout: defaultAckTimeout,
		conn:       conn,
		pending:    make(map[string]chan channel.Ack),
		done:       make(chan struct{}),
	}
	go c.readLoop()
	logger.Infof("wschannel: connected to %s", url)
	return c, nil
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// Subscribe implements channel.Channel.
func (c *Client) Subscribe(h channel.Handler) (channel.Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("nil handler")
	}
	return c.handlers.Add(h), nil
}

// Dispatch implements channel.Channel.
func (c *Client) Dispatch(ctx context.Context, req channel.DispatchRequest) (channel.DispatchResult, error) {
	ack, err := c.call(ctx, channel.OpDispatch, req)
	return ack.DispatchResult, err
}

// Resume implements channel.Channel.
func (c *Client) Resume(ctx context.Context, req channel.DispatchRequest) (channel.DispatchResult, error) {
	if req.SessionID == "" {
		return channel.DispatchResult{}, fmt.Errorf("resume requires a session id")
	}
	ack, err := c.call(ctx, channel.OpResume, req)
	return ack.DispatchResult, err
}

// RespondToPermission implements channel.Channel.
func (c *Client) RespondToPermission(ctx context.Context, d task.Decision) error {
	_, err := c.call(ctx, channel.OpPermission, d)
	return err
}

// Interrupt implements channel.Channel.
func (c *Client) Interrupt(ctx context.Context, taskID string) error {
	_, err := c.call(ctx, channel.OpInterrupt, map[string]string{"taskId": taskID})
	return err
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, op string, payload any) (channel.Ack, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return channel.Ack{}, fmt.Errorf("encode %s: %w", op, err)
	}
	id := uuid.NewString()
	replyCh := make(chan channel.Ack, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return channel.Ack{}, channel.ErrNotConnected
	}
	c.pending[id] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(Frame{Kind: KindCall, ID: id, Op: op, Data: data})
	c.writeMu.Unlock()
	if err != nil {
		return channel.Ack{}, fmt.Errorf("send %s: %w", op, err)
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()
	select {
	case ack := <-replyCh:
		return ack, ack.Err()
	case <-c.done:
		return channel.Ack{}, channel.ErrNotConnected
	case <-timer.C:
		return channel.Ack{}, fmt.Errorf("%s: %w", op, channel.ErrAckTimeout)
	case <-ctx.Done():
		return channel.Ack{}, ctx.Err()
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.mu.Lock()
				closed := c.closed
				c.mu.Unlock()
				if !closed {
					logger.Warnf("wschannel: read error: %v", err)
				}
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Warnf("wschannel: dropping malformed frame: %v", err)
			continue
		}
		switch f.Kind {
		case KindEvent:
			events, err := task.DecodeEvents(f.Data)
			if err != nil {
				logger.Warnf("wschannel: dropping malformed task event: %v", err)
				continue
			}
			c.handlers.Deliver(events)
		case KindAck:
			var ack channel.Ack
			if err := json.Unmarshal(f.Data, &ack); err != nil {
				ack = channel.Ack{Error: fmt.Sprintf("malformed ack: %v", err)}
			}
			c.mu.Lock()
			replyCh := c.pending[f.ID]
			c.mu.Unlock()
			if replyCh != nil {
				select {
				case replyCh <- ack:
				default:
				}
			}
		default:
			logger.Debugf("wschannel: ignoring frame kind %q", f.Kind)
		}
	}
}
