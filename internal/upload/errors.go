package upload

import "fmt"

var (
	// ErrUnknownUnit is returned when an operation references a unit id that is not registered.
	ErrUnknownUnit = fmt.Errorf("unknown upload unit")
	// ErrNotRetryable is returned when retry is requested for a unit that is not failed or has no source bytes.
	ErrNotRetryable = fmt.Errorf("upload unit is not retryable")
	// ErrBusy is returned when a transfer is started for a unit that already has one in flight.
	ErrBusy = fmt.Errorf("upload unit already in flight")
	// ErrRejected is returned by transports when the server refuses the file.
	ErrRejected = fmt.Errorf("upload rejected")
)
