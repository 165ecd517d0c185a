// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package cfgtype

import "fmt"

// Handle identifies an object or an instance of the configuration tree.
//
// Object handles are table indexes below 0x10000. Instance handles
// carry a non-zero sequence number in the high 16 bits so a handle of
// a deleted instance is never confused with its successor.
type Handle uint32

// InvalidHandle is returned where no object or instance exists
const InvalidHandle Handle = 0xFFFFFFFF

// MaxIndex is the largest table index usable in a handle
const MaxIndex = 0xFFFE

// InstanceHandle builds an instance handle from a table index and a
// non-zero sequence number
func InstanceHandle(index int, seq uint16) Handle {
	return Handle(uint32(index&0xFFFF) | uint32(seq)<<16)
}

// IsValid reports whether h is not the invalid sentinel
func (h Handle) IsValid() bool { return h != InvalidHandle }

// IsInstance reports whether h names an instance
func (h Handle) IsInstance() bool { return h.IsValid() && h>>16 != 0 }

// IsObject reports whether h names an object
func (h Handle) IsObject() bool { return h.IsValid() && h>>16 == 0 }

// Index returns the table index part
func (h Handle) Index() int { return int(h & 0xFFFF) }

// String renders the handle in hex
func (h Handle) String() string {
	if !h.IsValid() {
		return "invalid"
	}
	return fmt.Sprintf("0x%x", uint32(h))
}

// Object describes a schema node
type Object struct {
	// Handle of the object
	Handle Handle

	// OID of the object ("/agent/interface")
	OID string

	// Type of the values of its instances
	Type Type

	// Access mode of its instances
	Access Access

	// Default value text, used when instances are created without one
	Default string

	// Volatile objects are synchronized from the agent before every get
	Volatile bool
}

// Instance is a snapshot of one tree node as seen by a client
type Instance struct {
	Handle Handle
	OID    string
	Value  Value
}
