package upload

import "context"

// Request is a single file transfer.
type Request struct {
	UnitID      string
	TaskID      string
	Filename    string
	ContentType string
	Data        []byte
}

// Result is what the upload endpoint returns for an accepted file.
type Result struct {
	URL    string
	FileID string
}

// Transport moves file bytes to the upload endpoint.
//
// Implementations must be safe to call again with the same Request on retry
// and must return promptly once ctx is cancelled.
type Transport interface {
	Upload(ctx context.Context, req Request, progress func(pct int)) (Result, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request, progress func(pct int)) (Result, error)

// Upload calls f.
func (f TransportFunc) Upload(ctx context.Context, req Request, progress func(pct int)) (Result, error) {
	return f(ctx, req, progress)
}
