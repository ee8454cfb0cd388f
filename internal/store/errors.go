package store

import "fmt"

var (
	// ErrNotFound is returned when no task is stored under the requested id.
	ErrNotFound = fmt.Errorf("task not found")
	// ErrMissingID is returned when Put receives a task without an id.
	ErrMissingID = fmt.Errorf("task id is required")
	// ErrCorrupt is returned when stored bytes cannot be decoded.
	ErrCorrupt = fmt.Errorf("stored task is corrupt")
	// ErrSealed is returned when sealed bytes fail authentication.
	ErrSealed = fmt.Errorf("decryption failed")
)
