package httptransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brandwork/desk/internal/auth"
	"github.com/brandwork/desk/internal/upload"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestUploadPostsBase64AndReportsProgress(t *testing.T) {
	t.Parallel()

	var got uploadRequest
	var authz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, Path, r.URL.Path)
		authz = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, uploadResponse{Success: true, URL: "https://cdn/x.png", FileID: "f-1"})
	}))
	defer srv.Close()

	tr := New(srv.URL+"/", WithTokenSource(auth.Static("tok")))
	defer tr.Close()

	var steps []int
	res, err := tr.Upload(context.Background(), upload.Request{
		TaskID: "t1", Filename: "x.png", ContentType: "image/png", Data: []byte("png"),
	}, func(p int) { steps = append(steps, p) })
	require.NoError(t, err)
	require.Equal(t, upload.Result{URL: "https://cdn/x.png", FileID: "f-1"}, res)

	require.Equal(t, "Bearer tok", authz)
	require.Equal(t, "t1", got.TaskID)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), got.Base64Data)
	require.Equal(t, []int{upload.ProgressRead, upload.ProgressEncoded, upload.ProgressSent, upload.ProgressDone}, steps)
}

func TestUploadSurfacesServerFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, uploadResponse{Success: false, Error: "quota exceeded"})
	}))
	defer srv.Close()

	tr := New(srv.URL)
	defer tr.Close()

	_, err := tr.Upload(context.Background(), upload.Request{Filename: "a.txt", Data: []byte("a")}, nil)
	require.ErrorIs(t, err, upload.ErrRejected)
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestUploadHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusRequestEntityTooLarge, uploadResponse{Error: "too large"})
	}))
	defer srv.Close()

	tr := New(srv.URL)
	defer tr.Close()

	_, err := tr.Upload(context.Background(), upload.Request{Filename: "a.txt", Data: []byte("a")}, nil)
	require.ErrorIs(t, err, upload.ErrRejected)
	require.Contains(t, err.Error(), "too large")
}

func TestUploadHonoursCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := New(srv.URL)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Upload(ctx, upload.Request{Filename: "a.txt", Data: []byte("a")}, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, upload.ErrRejected)
}
