package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"
)

// Logger defines a minimal, printf-style logging contract.
//
// Handlers and clients depend on this interface so they can be exercised in
// tests with a no-op logger.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// Config controls the process-wide slog backend.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

var (
	rootMu   sync.RWMutex
	rootSlog = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// Configure replaces the process-wide logging backend. Safe to call before
// any component loggers are used; loggers created afterwards pick up the new
// backend.
func Configure(config Config) {
	level := slog.LevelInfo
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	rootMu.Lock()
	rootSlog = slog.New(handler)
	rootMu.Unlock()
}

type componentLogger struct {
	component string
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

func (l *componentLogger) emit(level slog.Level, format string, args ...any) {
	rootMu.RLock()
	logger := rootSlog
	rootMu.RUnlock()
	logger.With("component", l.component).Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.emit(slog.LevelDebug, format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.emit(slog.LevelInfo, format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.emit(slog.LevelWarn, format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.emit(slog.LevelError, format, args...)
}

// SanitizeAPIKey masks an API key so it can be logged safely.
func SanitizeAPIKey(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
