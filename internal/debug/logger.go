// Package debug provides the process-wide structured logger using log/slog
package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	// logger is the global logger instance; it discards everything until Init
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	// enabled indicates if debug logging is enabled
	enabled bool
	// mu protects the logger and enabled flag
	mu sync.RWMutex
)

// Init initializes the logger writing to os.Stderr.
// When enable is false only errors are written.
func Init(enable bool) {
	InitWriter(os.Stderr, enable)
}

// InitWriter initializes the logger writing to w
func InitWriter(w io.Writer, enable bool) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enable

	level := slog.LevelError
	if enable {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Enabled returns whether debug logging is enabled
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// SQL logs an executed statement with its timing
func SQL(statement string, args []any, started time.Time, err error) {
	l := Logger()
	if err != nil {
		l.Error("sql failed", "sql", statement, "args", len(args), "duration", time.Since(started), "error", err)
		return
	}
	l.Debug("sql", "sql", statement, "args", len(args), "duration", time.Since(started))
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
