// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package cfgerr defines the composite status returned by every
// configuration tree operation: a module tag naming the layer that
// produced the failure plus an error kind.
package cfgerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a configuration tree failure
type Kind int

const (
	// OK is the zero kind; it never appears inside a returned error
	OK Kind = iota
	InvalidArgument
	NotFound
	AlreadyExists
	NameTooLong
	WrongType
	PermissionDenied
	Busy
	BackupMismatch
	OutOfMemory
	Transport
	NoEntry
	EnvMismatch
	Internal
)

var kindNames = map[Kind]string{
	OK:               "ok",
	InvalidArgument:  "invalid-argument",
	NotFound:         "not-found",
	AlreadyExists:    "already-exists",
	NameTooLong:      "name-too-long",
	WrongType:        "wrong-type",
	PermissionDenied: "permission-denied",
	Busy:             "busy",
	BackupMismatch:   "backup-mismatch",
	OutOfMemory:      "out-of-memory",
	Transport:        "transport-error",
	NoEntry:          "no-entry",
	EnvMismatch:      "environment-mismatch",
	Internal:         "internal",
}

// String returns the canonical name of a Kind
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseKind converts a canonical kind name back to a Kind.
// Unknown names map to Internal.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return Internal
}

// Module tags the layer that produced an error
type Module string

const (
	ModuleCS    Module = "cs"
	ModuleAPI   Module = "confapi"
	ModuleTAPI  Module = "tapi"
	ModuleAgent Module = "agent"
	ModuleEnv   Module = "env"
)

// Error is the composite status of a failed operation
type Error struct {
	// Module that produced the error
	Module Module

	// Kind of the failure
	Kind Kind

	// Op is the operation name (add, set, commit, ...)
	Op string

	// OID the operation was applied to, if any
	OID string

	// Msg is a human-readable description
	Msg string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	if e.Module != "" {
		b.WriteString(string(e.Module))
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	if e.OID != "" {
		b.WriteString(e.OID)
		b.WriteString(" ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. A target
// carrying a module tag must match it too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Module == "" || t.Module == e.Module
}

// Sentinels for errors.Is comparisons
var (
	ErrInvalidArgument  = &Error{Kind: InvalidArgument}
	ErrNotFound         = &Error{Kind: NotFound}
	ErrAlreadyExists    = &Error{Kind: AlreadyExists}
	ErrNameTooLong      = &Error{Kind: NameTooLong}
	ErrWrongType        = &Error{Kind: WrongType}
	ErrPermissionDenied = &Error{Kind: PermissionDenied}
	ErrBusy             = &Error{Kind: Busy}
	ErrBackupMismatch   = &Error{Kind: BackupMismatch}
	ErrOutOfMemory      = &Error{Kind: OutOfMemory}
	ErrTransport        = &Error{Kind: Transport}
	ErrNoEntry          = &Error{Kind: NoEntry}
	ErrEnvMismatch      = &Error{Kind: EnvMismatch}
)

// New creates an Error with a formatted message
func New(module Module, kind Kind, format string, args ...any) *Error {
	return &Error{Module: module, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around a cause
func Wrap(module Module, kind Kind, err error, format string, args ...any) *Error {
	return &Error{Module: module, Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithOp returns a copy of e annotated with the operation and OID
func (e *Error) WithOp(op, oid string) *Error {
	c := *e
	c.Op = op
	c.OID = oid
	return &c
}

// KindOf returns the kind of the first *Error in err's chain.
// nil maps to OK, foreign errors to Internal.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ModuleOf returns the module tag of the first *Error in err's chain
func ModuleOf(err error) Module {
	var e *Error
	if errors.As(err, &e) {
		return e.Module
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
