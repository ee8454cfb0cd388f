package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxUploadBytes bounds a single attachment.
	DefaultMaxUploadBytes int64 = 20 << 20
	// DefaultQuestionTimeout is used when a question request carries none.
	DefaultQuestionTimeout = 5 * time.Minute
)

// Config holds everything desk needs to wire a session.
type Config struct {
	// ServerURL is the base URL of the agent channel server.
	ServerURL string `yaml:"server_url"`
	// Transport selects the agent channel transport (socketio|websocket).
	Transport string `yaml:"transport"`
	// UploadURL is the base URL of the attachment upload service.
	UploadURL string `yaml:"upload_url"`

	// Token is a static bearer token. Ignored when JWTSecret is set.
	Token string `yaml:"token"`
	// JWTSecret signs short-lived bearer tokens for every outbound call.
	JWTSecret string `yaml:"jwt_secret"`
	// ClientID is the subject placed in minted tokens.
	ClientID string `yaml:"client_id"`

	// MaxUploadBytes is the per-file size limit enforced by the default policy.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// AllowedContentTypes lists accepted MIME types or families ("image/*").
	// Empty allows everything.
	AllowedContentTypes []string `yaml:"allowed_content_types"`

	// QuestionTimeout expires unanswered question-type permission requests.
	QuestionTimeout time.Duration `yaml:"question_timeout"`

	// Store selects task persistence (memory|sqlite|redis).
	Store string `yaml:"store"`
	// StoreDSN is the sqlite path or redis URL.
	StoreDSN string `yaml:"store_dsn"`
	// SealKey, when set, is a base64 32-byte key used to encrypt stored tasks.
	SealKey string `yaml:"seal_key"`

	// DeskHome is where local state and config.yaml live.
	DeskHome string `yaml:"-"`
	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`
	// LogLevel overrides Debug when set (trace|debug|info|warn|error).
	LogLevel string `yaml:"log_level"`
}

// Load reads $DESK_HOME/config.yaml (if present) and then applies environment
// overrides. Environment always wins over the file.
func Load() (*Config, error) {
	home := getenvFirst("DESK_HOME", "BRANDWORK_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".desk")
	}
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("failed to create desk home: %w", err)
	}

	cfg := &Config{DeskHome: home}
	if err := cfg.loadFile(filepath.Join(home, "config.yaml")); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.ServerURL, "DESK_SERVER_URL", "BRANDWORK_SERVER_URL")
	setString(&c.Transport, "DESK_TRANSPORT", "")
	setString(&c.UploadURL, "DESK_UPLOAD_URL", "BRANDWORK_UPLOAD_URL")
	setString(&c.Token, "DESK_TOKEN", "")
	setString(&c.JWTSecret, "DESK_JWT_SECRET", "")
	setString(&c.ClientID, "DESK_CLIENT_ID", "")
	setString(&c.Store, "DESK_STORE", "")
	setString(&c.StoreDSN, "DESK_STORE_DSN", "")
	setString(&c.SealKey, "DESK_SEAL_KEY", "")
	setString(&c.LogLevel, "DESK_LOG_LEVEL", "")

	if raw := os.Getenv("DESK_ALLOWED_TYPES"); raw != "" {
		c.AllowedContentTypes = splitList(raw)
	}
	if raw := os.Getenv("DESK_MAX_UPLOAD_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid DESK_MAX_UPLOAD_BYTES %q: %w", raw, err)
		}
		c.MaxUploadBytes = n
	}
	if raw := os.Getenv("DESK_QUESTION_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid DESK_QUESTION_TIMEOUT %q: %w", raw, err)
		}
		c.QuestionTimeout = d
	}
	if isTrue(os.Getenv("DEBUG")) || isTrue(getenvFirst("DESK_DEBUG", "BRANDWORK_DEBUG")) {
		c.Debug = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:8787"
	}
	if c.Transport == "" {
		c.Transport = "socketio"
	}
	if c.UploadURL == "" {
		c.UploadURL = c.ServerURL
	}
	if c.ClientID == "" {
		c.ClientID = "desk"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.QuestionTimeout <= 0 {
		c.QuestionTimeout = DefaultQuestionTimeout
	}
	if c.Store == "" {
		c.Store = "sqlite"
	}
	if c.Store == "sqlite" && c.StoreDSN == "" {
		c.StoreDSN = filepath.Join(c.DeskHome, "tasks.db")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
		if c.Debug {
			c.LogLevel = "debug"
		}
	}
}

// Validate rejects combinations that cannot be wired.
func (c *Config) Validate() error {
	switch c.Transport {
	case "socketio", "websocket":
	default:
		return fmt.Errorf("invalid transport %q (expected socketio or websocket)", c.Transport)
	}
	switch c.Store {
	case "memory", "sqlite":
	case "redis":
		if c.StoreDSN == "" {
			return fmt.Errorf("store redis requires store_dsn")
		}
	default:
		return fmt.Errorf("invalid store %q (expected memory, sqlite or redis)", c.Store)
	}
	return nil
}

func setString(dst *string, primary, fallback string) {
	if v := getenvFirst(primary, fallback); v != "" {
		*dst = v
	}
}

func getenvFirst(primary, fallback string) string {
	if val := os.Getenv(primary); val != "" {
		return val
	}
	if fallback == "" {
		return ""
	}
	return os.Getenv(fallback)
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
