// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger forwards log records to a zap SugaredLogger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps a zap logger
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// NewProductionZap builds a JSON zap logger at the given level and wraps it
func NewProductionZap(level LogLevel) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ZapLevel(level))
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

// ZapLevel maps a LogLevel to the zap level
func ZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

// Debug logs at debug level
func (z *ZapLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	z.sugar.Debugw(msg, keysAndValues...)
}

// Info logs at info level
func (z *ZapLogger) Info(_ context.Context, msg string, keysAndValues ...any) {
	z.sugar.Infow(msg, keysAndValues...)
}

// Warn logs at warn level
func (z *ZapLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	z.sugar.Warnw(msg, keysAndValues...)
}

// Error logs at error level
func (z *ZapLogger) Error(_ context.Context, msg string, keysAndValues ...any) {
	z.sugar.Errorw(msg, keysAndValues...)
}

// Sync flushes buffered log entries
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
