// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package cfgtype

import "fmt"

// Type is the type of value carried by an instance
type Type int

const (
	// TypeNone marks objects that carry no value
	TypeNone Type = iota

	// TypeInt carries a signed 32-bit integer
	TypeInt

	// TypeString carries a string
	TypeString

	// TypeAddress carries a socket address
	TypeAddress

	// TypeUnspecified is used by callers that let the schema decide
	TypeUnspecified
)

// Type names as they appear in configuration files and on the wire
const (
	TypeNameNone        = "none"
	TypeNameInt         = "int"
	TypeNameString      = "string"
	TypeNameAddress     = "address"
	TypeNameUnspecified = "unspecified"
)

// ValidTypeNames contains the list of valid type names
var ValidTypeNames = []string{
	TypeNameNone,
	TypeNameInt,
	TypeNameString,
	TypeNameAddress,
	TypeNameUnspecified,
}

// String returns the type name
func (t Type) String() string {
	switch t {
	case TypeNone:
		return TypeNameNone
	case TypeInt:
		return TypeNameInt
	case TypeString:
		return TypeNameString
	case TypeAddress:
		return TypeNameAddress
	case TypeUnspecified:
		return TypeNameUnspecified
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType converts a type name to a Type.
// The aliases "integer" and "addr" are accepted.
//
// Example:
//
//	t, err := cfgtype.ParseType("int")
func ParseType(s string) (Type, error) {
	switch s {
	case TypeNameNone, "":
		return TypeNone, nil
	case TypeNameInt, "integer":
		return TypeInt, nil
	case TypeNameString:
		return TypeString, nil
	case TypeNameAddress, "addr":
		return TypeAddress, nil
	case TypeNameUnspecified:
		return TypeUnspecified, nil
	}
	return TypeNone, fmt.Errorf("invalid type: %s (valid values: none, int, string, address, unspecified)", s)
}

// Access is the access mode of an object
type Access int

const (
	// ReadOnly instances are created by agents only
	ReadOnly Access = iota

	// ReadWrite instances may be changed but not added or deleted
	ReadWrite

	// ReadCreate instances may be added, changed and deleted
	ReadCreate
)

// String returns the access mode name
func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "read_only"
	case ReadWrite:
		return "read_write"
	case ReadCreate:
		return "read_create"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// ParseAccess converts an access mode name
func ParseAccess(s string) (Access, error) {
	switch s {
	case "read_only", "read-only", "ro", "":
		return ReadOnly, nil
	case "read_write", "read-write", "rw":
		return ReadWrite, nil
	case "read_create", "read-create", "rc":
		return ReadCreate, nil
	}
	return ReadOnly, fmt.Errorf("invalid access mode: %s (valid values: read_only, read_write, read_create)", s)
}

// Writable reports whether instances may be set by clients
func (a Access) Writable() bool {
	return a == ReadWrite || a == ReadCreate
}
