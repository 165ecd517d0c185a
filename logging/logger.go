// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package logging provides the pluggable structured logger used by the
// configurator server, its client library and the test helpers.
package logging

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

// MaxLogValueLength limits the length of log values to prevent log injection
// and excessive log file growth. Values longer than this are truncated.
const MaxLogValueLength = 1024

// Logger interface for pluggable logging support
//
// Implementations should use structured logging with key-value pairs.
// Three implementations are provided:
//   - DefaultLogger: Wraps Go's standard log package with configurable log level
//   - ZapLogger: Forwards to a go.uber.org/zap logger
//   - NoOpLogger: Zero-overhead logging when disabled (default)
//
// Example custom logger integration:
//
//	type SlogAdapter struct {
//	    logger *slog.Logger
//	}
//
//	func (s *SlogAdapter) Debug(ctx context.Context, msg string, keysAndValues ...any) {
//	    s.logger.DebugContext(ctx, msg, keysAndValues...)
//	}
//	// ... implement Info, Warn, Error
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Warn(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// LogLevel represents the severity threshold for logging
type LogLevel int

const (
	// LogLevelDebug enables all log levels (most verbose)
	LogLevelDebug LogLevel = iota

	// LogLevelInfo enables Info, Warn, and Error logs
	LogLevelInfo

	// LogLevelWarn enables Warn and Error logs
	LogLevelWarn

	// LogLevelError enables only Error logs
	LogLevelError

	// LogLevelNone disables all logging
	LogLevelNone
)

// String returns the string representation of a LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLevel converts a level name (case-insensitive) to a LogLevel
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug, nil
	case "INFO", "":
		return LogLevelInfo, nil
	case "WARN", "WARNING":
		return LogLevelWarn, nil
	case "ERROR":
		return LogLevelError, nil
	case "NONE", "OFF":
		return LogLevelNone, nil
	}
	return LogLevelNone, fmt.Errorf("invalid log level: %s (valid values: debug, info, warn, error, none)", s)
}

// DefaultLogger wraps Go's standard log package with configurable log level
//
// Log output format: [LEVEL] message key1=value1 key2=value2
//
// Example:
//
//	logger := logging.NewDefaultLogger(logging.LogLevelDebug)
//	client, _ := confapi.NewClient("localhost:57400",
//	    confapi.WithLogger(logger))
type DefaultLogger struct {
	level  LogLevel
	output *log.Logger
}

// NewDefaultLogger creates a DefaultLogger with the specified log level
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{level: level, output: log.Default()}
}

// NewDefaultLoggerTo creates a DefaultLogger writing to a custom std logger
func NewDefaultLoggerTo(level LogLevel, output *log.Logger) *DefaultLogger {
	if output == nil {
		output = log.Default()
	}
	return &DefaultLogger{level: level, output: output}
}

// Debug logs a debug message with structured key-value pairs
func (l *DefaultLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelDebug, msg, keysAndValues...)
}

// Info logs an informational message with structured key-value pairs
func (l *DefaultLogger) Info(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelInfo, msg, keysAndValues...)
}

// Warn logs a warning message with structured key-value pairs
func (l *DefaultLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelWarn, msg, keysAndValues...)
}

// Error logs an error message with structured key-value pairs
func (l *DefaultLogger) Error(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelError, msg, keysAndValues...)
}

// SanitizeLogValue sanitizes a log value to prevent log injection attacks
// and limit log size. Handles control characters, ANSI escape sequences,
// Unicode attacks (RTL override, zero-width), and excessive length.
//
// Example attack prevented:
//
//	Input: "eth0\n[ERROR] Fake message"
//	Output: "eth0 [ERROR] Fake message"
func SanitizeLogValue(val any) string {
	str := fmt.Sprintf("%v", val)

	if len(str) > MaxLogValueLength {
		str = str[:MaxLogValueLength] + "...[TRUNCATED]"
	}

	var builder strings.Builder
	builder.Grow(len(str))

	for i := 0; i < len(str); i++ {
		r := rune(str[i])

		if r >= 0x80 {
			decoded, size := utf8.DecodeRuneInString(str[i:])
			if decoded == utf8.RuneError {
				builder.WriteRune('.')
				if size == 0 {
					size = 1
				}
				i += size - 1
				continue
			}

			switch decoded {
			case 0x200B, 0x200C, 0x200D, 0xFEFF: // zero-width
			case 0x202E: // right-to-left override
				builder.WriteRune(' ')
			default:
				builder.WriteString(str[i : i+size])
			}
			i += size - 1
			continue
		}

		switch r {
		case '\n', '\r', '\t', 0x0C:
			builder.WriteRune(' ')
		case 0x1B, 0x07, 0x08:
			builder.WriteRune('.')
		default:
			if r < 32 || r == 127 {
				builder.WriteRune('.')
			} else {
				builder.WriteRune(r)
			}
		}
	}

	return builder.String()
}

// log formats and outputs a log message with structured key-value pairs
//
// Keys and values are sanitized; the message comes from library code and
// is written as is.
func (l *DefaultLogger) log(level LogLevel, msg string, keysAndValues ...any) {
	if l.level > level {
		return
	}

	var builder strings.Builder
	builder.Grow(len(msg) + 10 + len(keysAndValues)*25)

	builder.WriteString("[")
	builder.WriteString(level.String())
	builder.WriteString("] ")
	builder.WriteString(msg)

	for i := 0; i < len(keysAndValues); i += 2 {
		builder.WriteString(" ")
		builder.WriteString(SanitizeLogValue(keysAndValues[i]))
		if i+1 < len(keysAndValues) {
			builder.WriteString("=")
			builder.WriteString(SanitizeLogValue(keysAndValues[i+1]))
		} else {
			builder.WriteString("=<MISSING>")
		}
	}

	l.output.Println(builder.String())
}

// NoOpLogger is a no-operation logger that discards all log messages
//
// This is the default logger of clients, servers and databases
// created without WithLogger.
type NoOpLogger struct{}

// Debug discards the log message
func (n *NoOpLogger) Debug(_ context.Context, _ string, _ ...any) {}

// Info discards the log message
func (n *NoOpLogger) Info(_ context.Context, _ string, _ ...any) {}

// Warn discards the log message
func (n *NoOpLogger) Warn(_ context.Context, _ string, _ ...any) {}

// Error discards the log message
func (n *NoOpLogger) Error(_ context.Context, _ string, _ ...any) {}
