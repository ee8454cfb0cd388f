package logger

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, LevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, LevelInfo, lvl)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestEnabledFollowsThreshold(t *testing.T) {
	prev := Level(current.Load())
	t.Cleanup(func() { SetLevel(prev) })

	SetLevel(LevelWarn)
	require.False(t, Enabled(LevelInfo))
	require.True(t, Enabled(LevelWarn))
	require.True(t, Enabled(LevelError))
	require.Equal(t, "warn", LevelWarn.String())
}

func TestOutputGoesToStderrWithCallSite(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)

	prevStderr, prevSink := os.Stderr, sink.Load()
	os.Stderr = w
	sink.Store(newSink("json"))
	os.Stderr = prevStderr
	t.Cleanup(func() { sink.Store(prevSink) })

	Infof("upload %s done", "u1")
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Contains(t, string(out), "upload u1 done")
	require.Contains(t, string(out), "logger_test.go")
}
