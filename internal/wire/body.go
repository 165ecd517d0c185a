// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package wire

import (
	"fmt"

	"github.com/tidwall/sjson"
)

// Body provides a fluent interface for building JSON documents
// using sjson for path-based manipulation.
//
// The Body builder tracks errors internally to enable method chaining
// while providing error checking through String() or Err() methods.
//
// Example:
//
//	body := wire.Body{}.
//	    Set("op", "get").
//	    Set("handle", 65536).
//	    Set("sync", true)
//
//	doc, err := body.String()
type Body struct {
	str string
	err error
}

// Set sets a value at the specified JSON path and returns a new Body.
// Once an error occurs, all subsequent operations preserve it.
func (b Body) Set(path string, value any) Body {
	if b.err != nil {
		return b
	}

	result, err := sjson.Set(b.str, path, value)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("Set(%q): %w", path, err)}
	}
	return Body{str: result}
}

// SetIf sets a value only when cond holds
func (b Body) SetIf(cond bool, path string, value any) Body {
	if !cond {
		return b
	}
	return b.Set(path, value)
}

// SetRaw sets a raw JSON fragment at the specified path
func (b Body) SetRaw(path, raw string) Body {
	if b.err != nil {
		return b
	}

	result, err := sjson.SetRaw(b.str, path, raw)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("SetRaw(%q): %w", path, err)}
	}
	return Body{str: result}
}

// Delete removes a value at the specified JSON path and returns a new Body
func (b Body) Delete(path string) Body {
	if b.err != nil {
		return b
	}

	result, err := sjson.Delete(b.str, path)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("Delete(%q): %w", path, err)}
	}
	return Body{str: result}
}

// String returns the JSON string and any error encountered during building.
// An untouched Body renders as "{}".
func (b Body) String() (string, error) {
	if b.str == "" && b.err == nil {
		return "{}", nil
	}
	return b.str, b.err
}

// Err returns any error that occurred during the building process
func (b Body) Err() error {
	return b.err
}

// Bytes returns the JSON bytes and any error encountered during building
func (b Body) Bytes() ([]byte, error) {
	s, err := b.String()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
