// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package wire maps configuration tree requests onto gNMI messages.
//
// Instance OIDs travel as gNMI paths with origin "cfg_inst" whose
// elements carry the instance name under the "name" key; object OIDs
// use origin "cfg_obj" and bare elements. Values and records are JSON
// documents in json_ietf typed values. Request options travel in an
// experimental gNMI extension.
package wire

import (
	"strings"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/oid"
)

// Path origins
const (
	OriginInstance = "cfg_inst"
	OriginObject   = "cfg_obj"
)

// NameKey is the element key holding the instance name
const NameKey = "name"

// PathFromOID converts an OID or pattern string to a gNMI path
func PathFromOID(s string) (*gnmipb.Path, error) {
	o, err := oid.ParsePattern(s)
	if err != nil {
		return nil, err
	}

	p := &gnmipb.Path{Origin: OriginObject}
	if o.IsInstance() {
		p.Origin = OriginInstance
	}
	for _, c := range o.Components() {
		elem := &gnmipb.PathElem{Name: c.Subid}
		if o.IsInstance() {
			elem.Key = map[string]string{NameKey: c.Name}
		}
		p.Elem = append(p.Elem, elem)
	}
	return p, nil
}

// OIDFromPath converts a gNMI path back to an OID string
func OIDFromPath(p *gnmipb.Path) (string, error) {
	if p == nil {
		return "", cfgerr.New(cfgerr.ModuleAPI, cfgerr.InvalidArgument, "nil path")
	}

	var instance bool
	switch p.GetOrigin() {
	case OriginInstance:
		instance = true
	case OriginObject, "":
	default:
		return "", cfgerr.New(cfgerr.ModuleAPI, cfgerr.InvalidArgument, "unknown path origin %q", p.GetOrigin())
	}

	comps := make([]oid.Component, 0, len(p.GetElem()))
	for _, e := range p.GetElem() {
		c := oid.Component{Subid: e.GetName()}
		if instance {
			c.Name = e.GetKey()[NameKey]
		}
		if strings.ContainsRune(c.Name, '/') {
			return "", cfgerr.New(cfgerr.ModuleAPI, cfgerr.InvalidArgument, "instance name %q contains '/'", c.Name)
		}
		comps = append(comps, c)
	}
	return oid.Join(comps, instance)
}
