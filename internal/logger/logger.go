// Package logger provides the leveled logging interface used across
// pbi-refresh-monitor and its zerolog-backed implementation. Every component
// receives a Logger at construction time; nothing logs through a global.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger defines the interface for structured logging with multiple levels.
// Critical is reserved for the last message before a run is aborted.
type Logger interface {
	Debug(msg string, args ...any)
	Debugf(format string, args ...any)

	Info(msg string, args ...any)
	Infof(format string, args ...any)

	Warn(msg string, args ...any)
	Warnf(format string, args ...any)

	Error(msg string, args ...any)
	Errorf(format string, args ...any)

	Critical(msg string, args ...any)
	Criticalf(format string, args ...any)
}

// NoopLogger is a logger that discards all log messages.
// It's useful for testing or when logging is completely disabled.
type NoopLogger struct{}

func (l NoopLogger) Debug(msg string, args ...any)        {}
func (l NoopLogger) Debugf(format string, args ...any)    {}
func (l NoopLogger) Info(msg string, args ...any)         {}
func (l NoopLogger) Infof(format string, args ...any)     {}
func (l NoopLogger) Warn(msg string, args ...any)         {}
func (l NoopLogger) Warnf(format string, args ...any)     {}
func (l NoopLogger) Error(msg string, args ...any)        {}
func (l NoopLogger) Errorf(format string, args ...any)    {}
func (l NoopLogger) Critical(msg string, args ...any)     {}
func (l NoopLogger) Criticalf(format string, args ...any) {}

// ZerologLogger wraps a zerolog.Logger to implement our Logger interface.
// Structured args are passed as alternating key/value pairs.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger writing to w at the given level.
func NewZerologLogger(w io.Writer, level zerolog.Level) *ZerologLogger {
	return &ZerologLogger{
		logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// NewDefaultLogger creates a console logger on stderr. If debug is true it
// logs at Debug level; otherwise at Info level.
func NewDefaultLogger(debug bool) Logger {
	return NewZerologLogger(consoleWriter(os.Stderr), levelFor(debug))
}

// NewFileLogger creates a logger that writes JSON lines to path (truncated on
// open, one log per run) and a human readable copy to stderr. The returned
// closer releases the log file.
func NewFileLogger(path string, debug bool) (Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file '%s': %w", path, err)
	}
	w := zerolog.MultiLevelWriter(f, consoleWriter(os.Stderr))
	return NewZerologLogger(w, levelFor(debug)), f, nil
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
}

func levelFor(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// Debug logs a debug-level message with optional structured attributes
func (l *ZerologLogger) Debug(msg string, args ...any) {
	withFields(l.logger.Debug(), args).Msg(msg)
}

// Debugf logs a debug-level message with printf-style formatting
func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.logger.Debug().Msg(sprintf(format, args...))
}

// Info logs an info-level message with optional structured attributes
func (l *ZerologLogger) Info(msg string, args ...any) {
	withFields(l.logger.Info(), args).Msg(msg)
}

// Infof logs an info-level message with printf-style formatting
func (l *ZerologLogger) Infof(format string, args ...any) {
	l.logger.Info().Msg(sprintf(format, args...))
}

// Warn logs a warning-level message with optional structured attributes
func (l *ZerologLogger) Warn(msg string, args ...any) {
	withFields(l.logger.Warn(), args).Msg(msg)
}

// Warnf logs a warning-level message with printf-style formatting
func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.logger.Warn().Msg(sprintf(format, args...))
}

// Error logs an error-level message with optional structured attributes
func (l *ZerologLogger) Error(msg string, args ...any) {
	withFields(l.logger.Error(), args).Msg(msg)
}

// Errorf logs an error-level message with printf-style formatting
func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msg(sprintf(format, args...))
}

// Critical logs at zerolog's fatal level without exiting the process.
// Callers decide how to terminate.
func (l *ZerologLogger) Critical(msg string, args ...any) {
	withFields(l.logger.WithLevel(zerolog.FatalLevel), args).Msg(msg)
}

// Criticalf is the printf-style variant of Critical.
func (l *ZerologLogger) Criticalf(format string, args ...any) {
	l.logger.WithLevel(zerolog.FatalLevel).Msg(sprintf(format, args...))
}

// withFields attaches key/value pairs to the event. A trailing key without a
// value is dropped by zerolog.
func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	if len(args) == 0 {
		return e
	}
	return e.Fields(args)
}

// sprintf is a helper function that safely formats strings using fmt.Sprintf
func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
