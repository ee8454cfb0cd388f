// Package httptransport uploads attachments to the chat attachment endpoint.
package httptransport

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/brandwork/desk/internal/auth"
	"github.com/brandwork/desk/internal/logger"
	"github.com/brandwork/desk/internal/upload"
	"resty.dev/v3"
)

// Path is the attachment endpoint relative to the base URL.
const Path = "/upload-chat-attachment"

const defaultTimeout = 2 * time.Minute

type uploadRequest struct {
	TaskID      string `json:"task_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Base64Data  string `json:"base64_data"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	FileID  string `json:"file_id"`
	Error   string `json:"error"`
}

// Transport posts base64 encoded files as JSON.
type Transport struct {
	client *resty.Client
	tokens auth.TokenSource
}

// Option configures a Transport.
type Option func(*Transport)

// WithTokenSource attaches a bearer token to every request.
func WithTokenSource(src auth.TokenSource) Option {
	return func(t *Transport) { t.tokens = src }
}

// WithTimeout overrides the per request timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.client.SetTimeout(d) }
}

// New returns a Transport rooted at baseURL.
func New(baseURL string, opts ...Option) *Transport {
	t := &Transport{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(defaultTimeout),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Close releases idle connections.
func (t *Transport) Close() error {
	return t.client.Close()
}

// Upload implements upload.Transport.
func (t *Transport) Upload(ctx context.Context, req upload.Request, progress func(int)) (upload.Result, error) {
	if progress == nil {
		progress = func(int) {}
	}
	progress(upload.ProgressRead)

	body := uploadRequest{
		TaskID:      req.TaskID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Base64Data:  base64.StdEncoding.EncodeToString(req.Data),
	}
	progress(upload.ProgressEncoded)

	r := t.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&uploadResponse{}).
		SetError(&uploadResponse{})
	if t.tokens != nil {
		token, err := t.tokens.Token()
		if err != nil {
			return upload.Result{}, fmt.Errorf("upload token: %w", err)
		}
		r.SetAuthToken(token)
	}

	logger.Debugf("upload: posting %s (%d bytes)", req.Filename, len(req.Data))
	res, err := r.Post(Path)
	if err != nil {
		return upload.Result{}, fmt.Errorf("upload %s: %w", req.Filename, err)
	}
	progress(upload.ProgressSent)

	if res.IsError() {
		reason := res.Status()
		if e, ok := res.Error().(*uploadResponse); ok && e.Error != "" {
			reason = e.Error
		}
		return upload.Result{}, fmt.Errorf("%w: %s", upload.ErrRejected, reason)
	}
	out, ok := res.Result().(*uploadResponse)
	if !ok || !out.Success {
		reason := "server reported failure"
		if ok && out.Error != "" {
			reason = out.Error
		}
		return upload.Result{}, fmt.Errorf("%w: %s", upload.ErrRejected, reason)
	}
	if out.URL == "" {
		return upload.Result{}, fmt.Errorf("%w: response missing url", upload.ErrRejected)
	}
	progress(upload.ProgressDone)
	return upload.Result{URL: out.URL, FileID: out.FileID}, nil
}
