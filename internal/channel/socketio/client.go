// Package socketio implements channel.Channel over a Socket.IO connection.
package socketio

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brandwork/desk/internal/auth"
	"github.com/brandwork/desk/internal/channel"
	"github.com/brandwork/desk/internal/logger"
	"github.com/brandwork/desk/internal/task"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

const (
	// Path is the Socket.IO endpoint on the agent server.
	Path = "/v1/tasks"

	defaultAckTimeout = 10 * time.Second
)

// Client is a Socket.IO backed agent channel.
type Client struct {
	serverURL  string
	clientID   string
	tokens     auth.TokenSource
	ackTimeout time.Duration

	mu        sync.RWMutex
	socket    *socket.Socket
	connected bool
	closeOnce sync.Once

	handlers channel.Handlers
}

var _ channel.Channel = (*Client)(nil)

// NewClient returns an unconnected client.
func NewClient(serverURL, clientID string, tokens auth.TokenSource) *Client {
	return &Client{
		serverURL:  serverURL,
		clientID:   clientID,
		tokens:     tokens,
		ackTimeout: defaultAckTimeout,
	}
}

// Connect establishes the Socket.IO connection and installs the event
// handler. Subscriptions may be added before or after Connect.
func (c *Client) Connect() error {
	logger.Debugf("socketio: connecting to %s (path: %s)", c.serverURL, Path)

	opts := socket.DefaultOptions()
	opts.SetPath(Path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))

	authPayload := map[string]any{"clientId": c.clientID}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("socketio token: %w", err)
		}
		authPayload["token"] = token
	}
	opts.SetAuth(authPayload)

	sock, err := socket.Connect(c.serverURL, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.socket = sock
	c.mu.Unlock()

	sock.On(types.EventName("connect"), func(args ...any) {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		logger.Infof("socketio: connected id=%s", sock.Id())
	})
	sock.On(types.EventName("disconnect"), func(args ...any) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		reason := ""
		if len(args) > 0 {
			reason, _ = args[0].(string)
		}
		logger.Warnf("socketio: disconnected: %s", reason)
	})
	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Warnf("socketio: connection error: %v", args[0])
		}
	})
	sock.On(types.EventName(channel.OpTaskEvent), func(args ...any) {
		if len(args) == 0 {
			return
		}
		events, err := decodeArg(args[0])
		if err != nil {
			logger.Warnf("socketio: dropping malformed task event: %v", err)
			return
		}
		c.handlers.Deliver(events)
	})
	return nil
}

// WaitForConnect polls until the socket reports connected or timeout passes.
func (c *Client) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return c.IsConnected()
}

// IsConnected reports whether the socket is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	sock := c.socket
	connected := c.connected
	c.mu.RUnlock()
	if connected {
		return true
	}
	return sock != nil && sock.Connected()
}

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
	if err != nil {
		return channel.DispatchResult{}, err
	}
	return ack.DispatchResult, nil
}

// Resume implements channel.Channel.
func (c *Client) Resume(ctx context.Context, req channel.DispatchRequest) (channel.DispatchResult, error) {
	if req.SessionID == "" {
		return channel.DispatchResult{}, fmt.Errorf("resume requires a session id")
	}
	ack, err := c.call(ctx, channel.OpResume, req)
	if err != nil {
		return channel.DispatchResult{}, err
	}
	return ack.DispatchResult, nil
}

// RespondToPermission implements channel.Channel.
func (c *Client) RespondToPermission(ctx context.Context, d task.Decision) error {
	_, err := c.call(ctx, channel.OpPermission, d)
	return err
}

// Interrupt implements channel.Channel.
func (c *Client) Interrupt(ctx context.Context, taskID string) error {
	_, err := c.call(ctx, channel.OpInterrupt, map[string]any{"taskId": taskID})
	return err
}

// Close disconnects the socket. Subscriptions stay registered but receive
// nothing further.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.socket != nil {
			c.socket.Disconnect()
			c.socket = nil
		}
		c.connected = false
	})
	return nil
}

// call emits event with payload and waits for the acknowledgement.
func (c *Client) call(ctx context.Context, event string, payload any) (channel.Ack, error) {
	c.mu.RLock()
	sock := c.socket
	c.mu.RUnlock()
	if sock == nil {
		return channel.Ack{}, channel.ErrNotConnected
	}

	data, err := toMap(payload)
	if err != nil {
		return channel.Ack{}, err
	}

	logger.Tracef("socketio: emit %s", event)
	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)
	sock.Emit(event, data, func(args []any, err error) {
		if err != nil {
			errCh <- err
			return
		}
		if len(args) == 0 {
			resultCh <- nil
			return
		}
		resultCh <- args[0]
	})

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()
	select {
	case raw := <-resultCh:
		return decodeAck(raw)
	case err := <-errCh:
		return channel.Ack{}, fmt.Errorf("%s: %w", event, err)
	case <-timer.C:
		return channel.Ack{}, fmt.Errorf("%s: %w", event, channel.ErrAckTimeout)
	case <-ctx.Done():
		return channel.Ack{}, ctx.Err()
	}
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}

func decodeAck(raw any) (channel.Ack, error) {
	if raw == nil {
		return channel.Ack{}, fmt.Errorf("missing ack")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return channel.Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	var ack channel.Ack
	if err := json.Unmarshal(b, &ack); err != nil {
		return channel.Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	return ack, ack.Err()
}

// decodeArg converts a Socket.IO argument (object or array) into events.
func decodeArg(raw any) ([]task.Event, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return task.DecodeEvents(b)
}
