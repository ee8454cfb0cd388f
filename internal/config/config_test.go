package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DESK_HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "socketio", cfg.Transport)
	require.Equal(t, cfg.ServerURL, cfg.UploadURL)
	require.Equal(t, DefaultMaxUploadBytes, cfg.MaxUploadBytes)
	require.Equal(t, DefaultQuestionTimeout, cfg.QuestionTimeout)
	require.Equal(t, filepath.Join(home, "tasks.db"), cfg.StoreDSN)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DESK_HOME", home)
	yamlData := []byte(`
server_url: http://agent.local
transport: websocket
max_upload_bytes: 1024
allowed_content_types: ["image/", "application/pdf"]
question_timeout: 30s
store: memory
`)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), yamlData, 0600))
	t.Setenv("DESK_MAX_UPLOAD_BYTES", "2048")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://agent.local", cfg.ServerURL)
	require.Equal(t, "websocket", cfg.Transport)
	require.Equal(t, int64(2048), cfg.MaxUploadBytes)
	require.Equal(t, []string{"image/", "application/pdf"}, cfg.AllowedContentTypes)
	require.Equal(t, 30*time.Second, cfg.QuestionTimeout)
	require.Equal(t, "memory", cfg.Store)
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("DESK_HOME", t.TempDir())
	t.Setenv("DESK_TRANSPORT", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
}
