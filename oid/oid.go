// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package oid parses, formats and matches configuration tree object
// identifiers.
//
// An OID is a path of components. Object OIDs name schema nodes and use
// bare subids ("/agent/interface"); instance OIDs name tree nodes and
// use subid:name pairs ("/agent:A/interface:eth0"). The root object is
// "/" and the root instance is "/:".
//
// # Grammar
//
//	oid     := "/" | "/" comp ("/" comp)*
//	comp    := subid ":" name?
//	subid   := [A-Za-z_][A-Za-z0-9_]*
//	name    := any chars except "/"
//	pattern := oid with "*" allowed in place of name
//
// Instance names are everything after the first colon of a component,
// so IPv6 addresses can be used as names.
package oid

import (
	"fmt"
	"strings"

	"github.com/netascode/go-confapi/cfgerr"
)

// MaxLen is the maximum printed length of an OID
const MaxLen = 1024

// Wildcard matches any single name (or subid) in a pattern
const Wildcard = "*"

// Component is one subid[:name] element of an OID
type Component struct {
	Subid string
	Name  string
}

// OID is a parsed object or instance identifier
type OID struct {
	comps    []Component
	instance bool
}

var (
	// Root is the root object OID "/"
	Root = OID{}

	// RootInstance is the root instance OID "/:"
	RootInstance = OID{instance: true}
)

// Parse parses a strict object or instance OID
func Parse(s string) (OID, error) {
	return parse(s, false)
}

// ParsePattern parses an OID that may contain "*" wildcards in
// subids and names
func ParsePattern(s string) (OID, error) {
	return parse(s, true)
}

// MustParse is like Parse but panics on error
func MustParse(s string) OID {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

func parse(s string, pattern bool) (OID, error) {
	if s == "" || s[0] != '/' {
		return OID{}, cfgerr.New(cfgerr.ModuleAPI, cfgerr.InvalidArgument, "OID %q must start with '/'", truncate(s))
	}
	if len(s) > MaxLen {
		return OID{}, cfgerr.New(cfgerr.ModuleAPI, cfgerr.NameTooLong, "OID exceeds %d characters: %s", MaxLen, truncate(s))
	}
	switch s {
	case "/":
		return Root, nil
	case "/:":
		return RootInstance, nil
	}

	parts := strings.Split(s[1:], "/")
	o := OID{comps: make([]Component, 0, len(parts))}
	for i, part := range parts {
		if part == "" {
			return OID{}, cfgerr.New(cfgerr.ModuleAPI, cfgerr.InvalidArgument, "OID %q has an empty component", truncate(s))
		}
		subid, name, inst := strings.Cut(part, ":")
		if i == 0 {
			o.instance = inst
		} else if inst != o.instance {
			return OID{}, cfgerr.New(cfgerr.ModuleAPI, cfgerr.InvalidArgument, "OID %q mixes object and instance components", truncate(s))
		}
		if !validSubid(subid, pattern) {
			return OID{}, cfgerr.New(cfgerr.ModuleAPI, cfgerr.InvalidArgument, "OID %q has invalid subid %q", truncate(s), subid)
		}
		o.comps = append(o.comps, Component{Subid: subid, Name: name})
	}
	return o, nil
}

func validSubid(s string, pattern bool) bool {
	if s == "" {
		return false
	}
	if pattern && strings.Contains(s, Wildcard) {
		return true
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func truncate(s string) string {
	if len(s) <= 100 {
		return s
	}
	return s[:100] + "..."
}

// String renders the OID
func (o OID) String() string {
	if len(o.comps) == 0 {
		if o.instance {
			return "/:"
		}
		return "/"
	}
	var b strings.Builder
	for _, c := range o.comps {
		b.WriteByte('/')
		b.WriteString(c.Subid)
		if o.instance {
			b.WriteByte(':')
			b.WriteString(c.Name)
		}
	}
	return b.String()
}

// IsInstance reports whether o names an instance
func (o OID) IsInstance() bool { return o.instance }

// IsRoot reports whether o is the root object or root instance
func (o OID) IsRoot() bool { return len(o.comps) == 0 }

// Len returns the number of components below the root
func (o OID) Len() int { return len(o.comps) }

// Comp returns the i-th component (0-based)
func (o OID) Comp(i int) Component { return o.comps[i] }

// Components returns a copy of the components
func (o OID) Components() []Component {
	c := make([]Component, len(o.comps))
	copy(c, o.comps)
	return c
}

// Last returns the last component; zero Component for the root
func (o OID) Last() Component {
	if len(o.comps) == 0 {
		return Component{}
	}
	return o.comps[len(o.comps)-1]
}

// Name returns the i-th instance name counting the root as 0.
// Out of range indexes return "".
func (o OID) Name(i int) string {
	if i <= 0 || i > len(o.comps) {
		return ""
	}
	return o.comps[i-1].Name
}

// Object returns the object OID an instance OID belongs to
func (o OID) Object() OID {
	obj := OID{comps: make([]Component, len(o.comps))}
	for i, c := range o.comps {
		obj.comps[i] = Component{Subid: c.Subid}
	}
	return obj
}

// Parent returns the parent OID; the root is its own parent
func (o OID) Parent() OID {
	if len(o.comps) == 0 {
		return o
	}
	return OID{comps: o.comps[:len(o.comps)-1:len(o.comps)-1], instance: o.instance}
}

// Child returns o extended by one component
func (o OID) Child(subid, name string) OID {
	c := make([]Component, len(o.comps), len(o.comps)+1)
	copy(c, o.comps)
	return OID{comps: append(c, Component{Subid: subid, Name: name}), instance: o.instance}
}

// HasPrefix reports whether prefix names o or one of its ancestors
func (o OID) HasPrefix(prefix OID) bool {
	if prefix.instance != o.instance || len(prefix.comps) > len(o.comps) {
		return false
	}
	for i, c := range prefix.comps {
		if o.comps[i] != c {
			return false
		}
	}
	return true
}

// Equal reports whether two OIDs are identical
func (o OID) Equal(other OID) bool {
	return len(o.comps) == len(other.comps) && o.HasPrefix(other)
}

// Match reports whether o matches pattern component by component.
// A "*" in a subid or name matches exactly one component; it may be
// surrounded by a literal prefix and suffix ("eth*").
func (o OID) Match(pattern OID) bool {
	if pattern.instance != o.instance || len(pattern.comps) != len(o.comps) {
		return false
	}
	for i, p := range pattern.comps {
		if !MatchName(p.Subid, o.comps[i].Subid) {
			return false
		}
		if o.instance && !MatchName(p.Name, o.comps[i].Name) {
			return false
		}
	}
	return true
}

// MatchName matches a single name against a pattern holding at most
// one "*"
func MatchName(pattern, s string) bool {
	prefix, suffix, wild := strings.Cut(pattern, Wildcard)
	if !wild {
		return pattern == s
	}
	return len(s) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(s, prefix) &&
		strings.HasSuffix(s, suffix)
}

// Format renders a printf-style OID template.
//
// Fails with name-too-long when the rendering exceeds MaxLen.
//
// Example:
//
//	s, err := oid.Format("/agent:%s/interface:%s", ta, ifname)
func Format(format string, args ...any) (string, error) {
	s := fmt.Sprintf(format, args...)
	if len(s) > MaxLen {
		return "", cfgerr.New(cfgerr.ModuleAPI, cfgerr.NameTooLong, "OID exceeds %d characters: %s", MaxLen, truncate(s))
	}
	return s, nil
}

// InstName returns the i-th instance name of an OID string, counting
// the root as 0 ("/agent:A/interface:eth0", 2 → "eth0").
func InstName(s string, i int) (string, error) {
	o, err := Parse(s)
	if err != nil {
		return "", err
	}
	if !o.instance {
		return "", cfgerr.New(cfgerr.ModuleAPI, cfgerr.InvalidArgument, "%q is not an instance OID", s)
	}
	if i <= 0 || i > len(o.comps) {
		return "", cfgerr.New(cfgerr.ModuleAPI, cfgerr.NotFound, "%q has no component %d", s, i)
	}
	return o.Name(i), nil
}

// Join builds an OID string from components
func Join(comps []Component, instance bool) (string, error) {
	s := OID{comps: comps, instance: instance}.String()
	if len(s) > MaxLen {
		return "", cfgerr.New(cfgerr.ModuleAPI, cfgerr.NameTooLong, "OID exceeds %d characters: %s", MaxLen, truncate(s))
	}
	return s, nil
}

// ObjectOf converts an instance OID string to its object OID string
func ObjectOf(s string) (string, error) {
	o, err := Parse(s)
	if err != nil {
		return "", err
	}
	return o.Object().String(), nil
}
