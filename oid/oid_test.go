// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package oid

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/netascode/go-confapi/cfgerr"
)

// TestParse tests OID parsing and rendering
func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		instance bool
		comps    []Component
		wantKind cfgerr.Kind
	}{
		{name: "root object", input: "/", comps: []Component{}},
		{name: "root instance", input: "/:", instance: true, comps: []Component{}},
		{
			name:  "object",
			input: "/agent/interface",
			comps: []Component{{Subid: "agent"}, {Subid: "interface"}},
		},
		{
			name:     "instance",
			input:    "/agent:A/interface:eth0",
			instance: true,
			comps:    []Component{{"agent", "A"}, {"interface", "eth0"}},
		},
		{
			name:     "empty name",
			input:    "/agent:A/hardware:/node:0",
			instance: true,
			comps:    []Component{{"agent", "A"}, {"hardware", ""}, {"node", "0"}},
		},
		{
			name:     "ipv6 name",
			input:    "/agent:A/route:fe80::|64",
			instance: true,
			comps:    []Component{{"agent", "A"}, {"route", "fe80::|64"}},
		},
		{name: "no slash", input: "agent:A", wantKind: cfgerr.InvalidArgument},
		{name: "empty", input: "", wantKind: cfgerr.InvalidArgument},
		{name: "trailing slash", input: "/agent:A/", wantKind: cfgerr.InvalidArgument},
		{name: "mixed", input: "/agent:A/interface", wantKind: cfgerr.InvalidArgument},
		{name: "bad subid", input: "/1agent:A", wantKind: cfgerr.InvalidArgument},
		{name: "wildcard in strict", input: "/a*:x", wantKind: cfgerr.InvalidArgument},
		{name: "too long", input: "/a:" + strings.Repeat("x", MaxLen), wantKind: cfgerr.NameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := Parse(tt.input)
			if tt.wantKind != cfgerr.OK {
				if cfgerr.KindOf(err) != tt.wantKind {
					t.Fatalf("Parse(%q) error = %v, want kind %v", tt.input, err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if o.IsInstance() != tt.instance {
				t.Errorf("IsInstance() = %v, want %v", o.IsInstance(), tt.instance)
			}
			if diff := cmp.Diff(tt.comps, o.Components()); diff != "" {
				t.Errorf("components mismatch (-want +got):\n%s", diff)
			}
			if o.String() != tt.input {
				t.Errorf("String() = %q, want %q", o.String(), tt.input)
			}
		})
	}
}

// TestNavigation tests Parent, Child, Object and Name
func TestNavigation(t *testing.T) {
	o := MustParse("/agent:A/interface:eth0/net_addr:10.0.0.1")

	if got := o.Parent().String(); got != "/agent:A/interface:eth0" {
		t.Errorf("Parent() = %q", got)
	}
	if got := o.Object().String(); got != "/agent/interface/net_addr" {
		t.Errorf("Object() = %q", got)
	}
	if got := o.Name(1); got != "A" {
		t.Errorf("Name(1) = %q", got)
	}
	if got := o.Name(0); got != "" {
		t.Errorf("Name(0) = %q, want root name", got)
	}
	if got := o.Name(4); got != "" {
		t.Errorf("Name(4) = %q, want empty", got)
	}
	if got := o.Parent().Child("mtu", "").String(); got != "/agent:A/interface:eth0/mtu:" {
		t.Errorf("Child() = %q", got)
	}
	if got := RootInstance.Child("agent", "B").String(); got != "/agent:B" {
		t.Errorf("RootInstance.Child() = %q", got)
	}
	if got := MustParse("/agent:A").Parent().String(); got != "/:" {
		t.Errorf("top-level Parent() = %q, want root instance", got)
	}
	if !o.HasPrefix(MustParse("/agent:A")) {
		t.Error("expected /agent:A to be a prefix")
	}
	if o.HasPrefix(MustParse("/agent:B")) {
		t.Error("unexpected prefix match")
	}
	if !o.HasPrefix(RootInstance) {
		t.Error("root instance must prefix every instance")
	}
}

// TestMatch tests wildcard matching
func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		oid     string
		want    bool
	}{
		{"/a:/b:*", "/a:/b:x", true},
		{"/a:/b:*", "/a:/c:z", false},
		{"/a:/b:*", "/a:/b:x/c:y", false},
		{"/agent:*/interface:eth*", "/agent:A/interface:eth1", true},
		{"/agent:*/interface:eth*", "/agent:A/interface:lo", false},
		{"/agent:*/interface:*1", "/agent:A/interface:eth1", true},
		{"/agent:*/*:*", "/agent:A/rsrc:x", true},
		{"/agent/*", "/agent/interface", true},
		{"/agent/*", "/agent:A/interface:x", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.oid, func(t *testing.T) {
			p, err := ParsePattern(tt.pattern)
			if err != nil {
				t.Fatalf("ParsePattern(%q): %v", tt.pattern, err)
			}
			o, err := Parse(tt.oid)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.oid, err)
			}
			if got := o.Match(p); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFormat tests printf rendering and the length bound
func TestFormat(t *testing.T) {
	s, err := Format("/agent:%s/route:%s|%d", "A", "10.0.0.0", 24)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if s != "/agent:A/route:10.0.0.0|24" {
		t.Errorf("Format() = %q", s)
	}

	_, err = Format("/agent:%s", strings.Repeat("x", MaxLen))
	if !cfgerr.IsKind(err, cfgerr.NameTooLong) {
		t.Errorf("expected name-too-long, got %v", err)
	}
}

// TestSplitJoin tests InstName, Join and ObjectOf
func TestSplitJoin(t *testing.T) {
	name, err := InstName("/agent:A/interface:eth0", 2)
	if err != nil || name != "eth0" {
		t.Errorf("InstName() = %q, %v", name, err)
	}
	if _, err := InstName("/agent:A", 3); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("InstName out of range: %v", err)
	}
	if _, err := InstName("/agent", 1); !cfgerr.IsKind(err, cfgerr.InvalidArgument) {
		t.Errorf("InstName on object OID: %v", err)
	}

	s, err := Join([]Component{{"net", "n1"}, {"node", "a"}}, true)
	if err != nil || s != "/net:n1/node:a" {
		t.Errorf("Join() = %q, %v", s, err)
	}
	s, err = Join([]Component{{Subid: "net"}, {Subid: "node"}}, false)
	if err != nil || s != "/net/node" {
		t.Errorf("Join(object) = %q, %v", s, err)
	}

	obj, err := ObjectOf("/net:n1/node:a")
	if err != nil || obj != "/net/node" {
		t.Errorf("ObjectOf() = %q, %v", obj, err)
	}
}
