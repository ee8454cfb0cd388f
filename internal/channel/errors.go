package channel

import "fmt"

var (
	// ErrNotConnected is returned when a call is made before Connect or after Close.
	ErrNotConnected = fmt.Errorf("channel not connected")
	// ErrAckTimeout is returned when the agent does not acknowledge a call in time.
	ErrAckTimeout = fmt.Errorf("ack timeout")
	// ErrRefused is returned when the agent acknowledges a call with an error.
	ErrRefused = fmt.Errorf("agent refused request")
)
