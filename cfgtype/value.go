// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package cfgtype holds the value, handle and schema types shared by
// the configuration tree server, its client and the test helpers.
package cfgtype

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// Address is a socket address value: an IP address with an optional
// port, a link-layer address, or the unspecified address.
type Address struct {
	ip   netip.Addr
	port uint16
	hw   string
}

// IPAddress returns an Address holding ip without a port
func IPAddress(ip netip.Addr) Address {
	return Address{ip: ip.Unmap()}
}

// SockAddress returns an Address holding ip and port
func SockAddress(ap netip.AddrPort) Address {
	return Address{ip: ap.Addr().Unmap(), port: ap.Port()}
}

// HWAddress returns a link-layer Address
func HWAddress(mac net.HardwareAddr) Address {
	return Address{hw: mac.String()}
}

// ParseAddress parses the textual form produced by Address.String.
// The empty string is the unspecified address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, nil
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return SockAddress(ap), nil
	}
	if ip, err := netip.ParseAddr(s); err == nil {
		return IPAddress(ip), nil
	}
	if mac, err := net.ParseMAC(s); err == nil {
		return HWAddress(mac), nil
	}
	return Address{}, fmt.Errorf("invalid address: %q", s)
}

// IP returns the IP part; invalid for link-layer and unspecified addresses
func (a Address) IP() netip.Addr { return a.ip }

// Port returns the port, 0 if none
func (a Address) Port() uint16 { return a.port }

// HW returns the link-layer address, nil for IP addresses
func (a Address) HW() net.HardwareAddr {
	if a.hw == "" {
		return nil
	}
	mac, _ := net.ParseMAC(a.hw) //nolint:errcheck // hw is always produced by HardwareAddr.String
	return mac
}

// IsUnspecified reports whether the address carries no family
func (a Address) IsUnspecified() bool {
	return !a.ip.IsValid() && a.hw == ""
}

// Family returns "inet", "inet6", "local" (link-layer) or "unspec"
func (a Address) Family() string {
	switch {
	case a.hw != "":
		return "local"
	case a.ip.Is4():
		return "inet"
	case a.ip.Is6():
		return "inet6"
	default:
		return "unspec"
	}
}

// String renders the address
func (a Address) String() string {
	switch {
	case a.hw != "":
		return a.hw
	case !a.ip.IsValid():
		return ""
	case a.port != 0:
		return netip.AddrPortFrom(a.ip, a.port).String()
	default:
		return a.ip.String()
	}
}

// Value is a typed configuration value
type Value struct {
	typ  Type
	i    int
	s    string
	addr Address
}

// None returns a value of type none
func None() Value { return Value{typ: TypeNone} }

// Unspecified returns a value that lets the schema decide the type
// and default
func Unspecified() Value { return Value{typ: TypeUnspecified} }

// Int returns an integer value
func Int(v int) Value { return Value{typ: TypeInt, i: v} }

// Str returns a string value
func Str(s string) Value { return Value{typ: TypeString, s: s} }

// Addr returns an address value
func Addr(a Address) Value { return Value{typ: TypeAddress, addr: a} }

// IP returns an address value holding ip
func IP(ip netip.Addr) Value { return Addr(IPAddress(ip)) }

// Zero returns the zero value of a type
func Zero(t Type) Value { return Value{typ: t} }

// ParseValue parses the textual form of a value of type t
//
// Example:
//
//	v, err := cfgtype.ParseValue(cfgtype.TypeInt, "1500")
func ParseValue(t Type, s string) (Value, error) {
	switch t {
	case TypeNone, TypeUnspecified:
		return Value{typ: t}, nil
	case TypeInt:
		if s == "" {
			return Int(0), nil
		}
		n, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid integer %q: %w", s, err)
		}
		return Int(int(n)), nil
	case TypeString:
		return Str(s), nil
	case TypeAddress:
		a, err := ParseAddress(s)
		if err != nil {
			return Value{}, err
		}
		return Addr(a), nil
	}
	return Value{}, fmt.Errorf("invalid type: %v", t)
}

// Type returns the value type
func (v Value) Type() Type { return v.typ }

// AsInt returns the integer payload (0 for other types)
func (v Value) AsInt() int { return v.i }

// AsString returns the string payload ("" for other types)
func (v Value) AsString() string { return v.s }

// AsAddress returns the address payload
func (v Value) AsAddress() Address { return v.addr }

// Equal reports whether two values have the same type and payload
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeInt:
		return v.i == o.i
	case TypeString:
		return v.s == o.s
	case TypeAddress:
		return v.addr == o.addr
	default:
		return true
	}
}

// String renders the value payload as text
func (v Value) String() string {
	switch v.typ {
	case TypeInt:
		return strconv.Itoa(v.i)
	case TypeString:
		return v.s
	case TypeAddress:
		return v.addr.String()
	default:
		return ""
	}
}

// GoString renders the value with its type, for debugging
func (v Value) GoString() string {
	return fmt.Sprintf("%s(%q)", v.typ, v.String())
}
