package upload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestNewUnitPreviewOnlyForImages(t *testing.T) {
	t.Parallel()

	img := NewUnit("u1", "c1", File{Name: "a.png", ContentType: "image/png", Data: pngHeader})
	require.Equal(t, StatusPending, img.Status)
	require.True(t, strings.HasPrefix(img.PreviewDataURL, "data:image/png;base64,"))
	require.EqualValues(t, len(pngHeader), img.Size)

	doc := NewUnit("u2", "c1", File{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")})
	require.Empty(t, doc.PreviewDataURL)
}

func TestUnitLifecycle(t *testing.T) {
	t.Parallel()

	s := Set{}.Add(NewUnit("u1", "c1", File{Name: "a.txt", Data: []byte("hi")}))
	require.True(t, s.HasInFlight("c1"))
	require.False(t, s.AllSettled("c1"))

	s, u, err := s.Begin("u1")
	require.NoError(t, err)
	require.Equal(t, StatusUploading, u.Status)
	require.Equal(t, 1, u.Attempt)

	// A second transfer for the same unit is refused.
	_, _, err = s.Begin("u1")
	require.ErrorIs(t, err, ErrBusy)

	s, ok := s.Progress("u1", 1, 30)
	require.True(t, ok)
	_, ok = s.Progress("u1", 1, 10)
	require.False(t, ok, "progress must not move backwards")

	s, ok = s.Complete("u1", 1, Result{URL: "https://cdn/a.txt", FileID: "f1"})
	require.True(t, ok)
	u, _ = s.Get("u1")
	require.Equal(t, StatusCompleted, u.Status)
	require.Equal(t, 100, u.Progress)
	require.False(t, u.HasSource())
	require.True(t, s.AllSettled("c1"))

	refs := s.CompletedSet("c1")
	require.Len(t, refs, 1)
	require.Equal(t, "https://cdn/a.txt", refs[0].Ref().URL)

	// Completed units are never retried.
	_, _, err = s.Retry("u1")
	require.ErrorIs(t, err, ErrNotRetryable)
}

// A failed unit retried ends completed; the stale result from the first
// attempt is ignored.
func TestRetryAfterFailure(t *testing.T) {
	t.Parallel()

	s := Set{}.Add(NewUnit("u1", "c1", File{Name: "a.txt", Data: []byte("hi")}))
	s, _, err := s.Begin("u1")
	require.NoError(t, err)
	s, ok := s.Fail("u1", 1, "network down")
	require.True(t, ok)

	u, _ := s.Get("u1")
	require.Equal(t, StatusFailed, u.Status)
	require.True(t, u.HasSource())
	require.True(t, s.AllSettled("c1"))
	require.Empty(t, s.CompletedSet("c1"))

	s, u, err = s.Retry("u1")
	require.NoError(t, err)
	require.Equal(t, 2, u.Attempt)
	require.Empty(t, u.Error)

	_, ok = s.Complete("u1", 1, Result{URL: "stale"})
	require.False(t, ok)

	s, ok = s.Complete("u1", 2, Result{URL: "https://cdn/a.txt"})
	require.True(t, ok)
	u, _ = s.Get("u1")
	require.Equal(t, StatusCompleted, u.Status)
	require.Equal(t, "https://cdn/a.txt", u.URL)
}

func TestRemoveDiscardsLateResults(t *testing.T) {
	t.Parallel()

	s := Set{}.Add(NewUnit("u1", "c1", File{Name: "a.txt", Data: []byte("a")}))
	s = s.Add(NewUnit("u2", "c1", File{Name: "b.txt", Data: []byte("b")}))
	s, _, err := s.Begin("u1")
	require.NoError(t, err)

	s, removed, ok := s.Remove("u1")
	require.True(t, ok)
	require.Equal(t, StatusUploading, removed.Status)
	require.Equal(t, 1, s.Len())

	next, ok := s.Complete("u1", 1, Result{URL: "late"})
	require.False(t, ok)
	require.Equal(t, s.Units(), next.Units())
}

func TestSetIsImmutable(t *testing.T) {
	t.Parallel()

	base := Set{}.Add(NewUnit("u1", "c1", File{Name: "a.txt", Data: []byte("a")}))
	next, _, err := base.Begin("u1")
	require.NoError(t, err)

	u, _ := base.Get("u1")
	require.Equal(t, StatusPending, u.Status)
	u, _ = next.Get("u1")
	require.Equal(t, StatusUploading, u.Status)

	units := next.Units()
	units[0].Status = StatusFailed
	u, _ = next.Get("u1")
	require.Equal(t, StatusUploading, u.Status)
}

func TestContextsAreIndependent(t *testing.T) {
	t.Parallel()

	s := Set{}.
		Add(NewUnit("old", "c1", File{Name: "a.txt", Data: []byte("a")})).
		Add(NewUnit("new", "c2", File{Name: "b.txt", Data: []byte("b")}))

	require.True(t, s.HasInFlight("c2"))
	s = s.DropContext("c1")
	require.Len(t, s.Units(), 1)
	require.Empty(t, s.InContext("c1"))
	require.Len(t, s.InContext("c2"), 1)
}

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy{MaxBytes: 16, AllowedTypes: []string{"image/*", "application/pdf"}, MaxFiles: 2}

	require.True(t, p.Validate(File{Name: "a.png", Data: pngHeader}, nil).OK)
	require.True(t, p.Validate(File{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, nil).OK)

	v := p.Validate(File{Name: "big.png", ContentType: "image/png", Data: make([]byte, 17)}, nil)
	require.False(t, v.OK)
	require.Contains(t, v.Reason, "limit")

	v = p.Validate(File{Name: "notes.txt", Data: []byte("plain text")}, nil)
	require.False(t, v.OK)
	require.Contains(t, v.Reason, "text/plain")

	require.False(t, p.Validate(File{Name: "empty.png"}, nil).OK)

	pending := []Unit{NewUnit("u1", "c1", File{Name: "a.png", ContentType: "image/png", Data: pngHeader})}
	v = p.Validate(File{Name: "a.png", ContentType: "image/png", Data: pngHeader}, pending)
	require.False(t, v.OK)
	require.Contains(t, v.Reason, "already attached")

	pending = append(pending, NewUnit("u2", "c1", File{Name: "b.png", ContentType: "image/png", Data: pngHeader}))
	v = p.Validate(File{Name: "c.png", ContentType: "image/png", Data: pngHeader}, pending)
	require.False(t, v.OK)

	// Failed units do not count against the cap.
	pending[1].Status = StatusFailed
	require.True(t, p.Validate(File{Name: "c.png", ContentType: "image/png", Data: pngHeader}, pending).OK)
}

func TestLoadFileSniffsType(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shot.bin")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "shot.bin", f.Name)
	require.Equal(t, "image/png", f.ContentType)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
