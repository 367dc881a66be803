// ABOUTME: Leveled logging on zerolog; printf helpers plus structured component loggers
// ABOUTME: Writes to stderr by default; SetOutput redirects away from the TUI

package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Level constants matching zerolog levels.
const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

var (
	level atomic.Int32

	mu   sync.RWMutex
	base zerolog.Logger
)

func init() {
	level.Store(int32(LevelInfo))
	base = newLogger(os.Stderr)
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel sets the global log level.
func SetLevel(l zerolog.Level) {
	level.Store(int32(l))
}

// GetLevel returns the current log level.
func GetLevel() zerolog.Level {
	return zerolog.Level(level.Load())
}

// ParseLevel maps a config string ("debug", "info", ...) to a level.
// Unknown or empty strings yield LevelInfo.
func ParseLevel(s string) zerolog.Level {
	l, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return LevelInfo
	}
	return l
}

// SetOutput redirects all subsequent log output to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	base = newLogger(w)
	mu.Unlock()
}

// With returns a structured logger tagged with a component name. The global
// level is applied at creation time.
func With(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Level(GetLevel()).With().Str("component", component).Logger()
}

func emit(l zerolog.Level, format string, args ...any) {
	if l < GetLevel() {
		return
	}
	mu.RLock()
	logger := base
	mu.RUnlock()
	logger.WithLevel(l).Msg(fmt.Sprintf(format, args...))
}

// Debug logs a debug message if the level allows it.
func Debug(format string, args ...any) {
	emit(LevelDebug, format, args...)
}

// Info logs an info message if the level allows it.
func Info(format string, args ...any) {
	emit(LevelInfo, format, args...)
}

// Warn logs a warning message if the level allows it.
func Warn(format string, args ...any) {
	emit(LevelWarn, format, args...)
}

// Error logs an error message (always emitted).
func Error(format string, args ...any) {
	mu.RLock()
	logger := base
	mu.RUnlock()
	logger.WithLevel(LevelError).Msg(fmt.Sprintf(format, args...))
}
