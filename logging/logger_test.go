// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package logging

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogLevelString tests LogLevel.String() and ParseLevel
func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelInfo, "INFO"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
		{LogLevelNone, "NONE"},
		{LogLevel(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if tt.level > LogLevelNone {
			continue
		}
		parsed, err := ParseLevel(strings.ToLower(tt.want))
		if err != nil || parsed != tt.level {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.want, parsed, err)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

// TestDefaultLoggerFiltering tests that messages below the level are dropped
func TestDefaultLoggerFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLoggerTo(LogLevelWarn, log.New(&buf, "", 0))
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message", "oid", "/agent:A")
	logger.Error(ctx, "error message", "kind")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("filtered messages leaked: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn message oid=/agent:A") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] error message kind=<MISSING>") {
		t.Errorf("missing error line: %q", out)
	}
}

// TestSanitizeLogValue tests log injection prevention
func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"plain", "eth0", "eth0"},
		{"newline", "eth0\n[ERROR] fake", "eth0 [ERROR] fake"},
		{"escape", "a\x1b[31mb", "a.[31mb"},
		{"zero width", "a\u200bb", "ab"},
		{"rtl override", "a\u202eb", "a b"},
		{"unicode", "größe", "größe"},
		{"int", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeLogValue(tt.input); got != tt.want {
				t.Errorf("SanitizeLogValue() = %q, want %q", got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", MaxLogValueLength+10)
	if got := SanitizeLogValue(long); !strings.HasSuffix(got, "...[TRUNCATED]") {
		t.Error("long value was not truncated")
	}
}

// TestZapLogger tests forwarding to zap
func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))
	ctx := context.Background()

	logger.Debug(ctx, "commit", "oid", "/agent:A")
	logger.Info(ctx, "agent attached", "agent", "A")
	logger.Warn(ctx, "masked destination")
	logger.Error(ctx, "sync failed", "error", "boom")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].Message != "commit" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if got := entries[1].ContextMap()["agent"]; got != "A" {
		t.Errorf("agent field = %v", got)
	}
	if entries[3].Level != zapcore.ErrorLevel {
		t.Errorf("last entry level = %v", entries[3].Level)
	}
}

// TestNoOpLogger tests that NoOpLogger satisfies Logger without output
func TestNoOpLogger(t *testing.T) {
	var l Logger = &NoOpLogger{}
	l.Debug(context.Background(), "x")
	l.Info(context.Background(), "x")
	l.Warn(context.Background(), "x")
	l.Error(context.Background(), "x")
}

// TestZapLevel tests level mapping
func TestZapLevel(t *testing.T) {
	if ZapLevel(LogLevelWarn) != zapcore.WarnLevel {
		t.Error("warn mismatch")
	}
	if ZapLevel(LogLevelNone) != zapcore.FatalLevel {
		t.Error("none must map above error")
	}
}
