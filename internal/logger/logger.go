// Package logger is the leveled logging front used across desk.
//
// Messages are formatted printf-style and handed to an xlog logger, which
// owns the output format (text or JSON via LOG_FORMAT). Output goes to stderr
// so it never interleaves with the REPL on stdout. The level threshold here
// is applied first so TRACE output costs nothing when disabled.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/mudler/xlog"
)

// Level is a verbosity threshold. Lower values are more verbose.
type Level int32

const (
	// LevelTrace logs every actor input and protocol frame.
	LevelTrace Level = iota
	// LevelDebug logs state transitions and transport calls.
	LevelDebug
	// LevelInfo is the default.
	LevelInfo
	// LevelWarn logs protocol violations and recoverable failures.
	LevelWarn
	// LevelError logs failures only.
	LevelError
)

var (
	current atomic.Int32
	sink    atomic.Pointer[xlog.Logger]
)

func init() {
	current.Store(int32(LevelInfo))
	sink.Store(newSink(os.Getenv(xlog.EnvLogFormat)))
}

// newSink builds an xlog logger writing to stderr. xlog always writes to
// os.Stdout, so stdout is pointed at stderr while the handler is built. The
// threshold is left to Enabled.
func newSink(format string) *xlog.Logger {
	stdout := os.Stdout
	os.Stdout = os.Stderr
	defer func() { os.Stdout = stdout }()
	return xlog.NewLogger(xlog.LogLevelDebug, format)
}

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses trace|debug|info|warn|error.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// SetLevel sets the global threshold.
func SetLevel(level Level) {
	current.Store(int32(level))
}

// Enabled reports whether level would be emitted.
func Enabled(level Level) bool {
	return level >= Level(current.Load())
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) {
	if Enabled(LevelTrace) {
		sink.Load().Debug(fmt.Sprintf(format, args...), "level", "trace")
	}
}

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) {
	if Enabled(LevelDebug) {
		sink.Load().Debug(fmt.Sprintf(format, args...))
	}
}

// Infof logs at INFO level.
func Infof(format string, args ...any) {
	if Enabled(LevelInfo) {
		sink.Load().Info(fmt.Sprintf(format, args...))
	}
}

// Warnf logs at WARN level.
func Warnf(format string, args ...any) {
	if Enabled(LevelWarn) {
		sink.Load().Warn(fmt.Sprintf(format, args...))
	}
}

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) {
	if Enabled(LevelError) {
		sink.Load().Error(fmt.Sprintf(format, args...))
	}
}
