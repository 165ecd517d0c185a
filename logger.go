// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confapi

import "github.com/netascode/go-confapi/logging"

// Logger is the structured logger used by the client
type Logger = logging.Logger

// LogLevel is the severity threshold of a DefaultLogger
type LogLevel = logging.LogLevel

// DefaultLogger writes through the standard log package
type DefaultLogger = logging.DefaultLogger

// NoOpLogger discards all messages
type NoOpLogger = logging.NoOpLogger

// Log levels
const (
	LogLevelDebug = logging.LogLevelDebug
	LogLevelInfo  = logging.LogLevelInfo
	LogLevelWarn  = logging.LogLevelWarn
	LogLevelError = logging.LogLevelError
)

// NewDefaultLogger creates a DefaultLogger writing to stderr
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return logging.NewDefaultLogger(level)
}
