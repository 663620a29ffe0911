package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Log is the process-wide structured logger. All helpers are no-ops until
// Init has been called, which keeps packages usable from tests without setup.
var Log *slog.Logger

var (
	mu   sync.Mutex
	sink *os.File
)

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a slog
// level. Anything else is Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init configures Log with a text handler at the given level. sinkSpec is
// either empty (stdout) or "file:/path/to/log".
func Init(level, sinkSpec string) error {
	var w io.Writer = os.Stdout
	var f *os.File
	if strings.HasPrefix(sinkSpec, "file:") {
		path := strings.TrimPrefix(sinkSpec, "file:")
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		w = f
	}
	InitWriter(w, level)

	mu.Lock()
	sink = f
	mu.Unlock()
	return nil
}

// InitWriter points Log at w. Used by tests to capture output.
func InitWriter(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Sync closes the file sink, if any.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		_ = sink.Sync()
		_ = sink.Close()
		sink = nil
	}
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
