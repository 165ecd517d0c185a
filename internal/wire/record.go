// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package wire

import (
	"fmt"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/tidwall/gjson"

	"github.com/netascode/go-confapi/cfgtype"
)

// ValueBody renders a typed value as {"type": ..., "value": ...}
func ValueBody(v cfgtype.Value) Body {
	return Body{}.
		Set("type", v.Type().String()).
		Set("value", v.String())
}

// DecodeValue parses a {"type", "value"} JSON object
func DecodeValue(r gjson.Result) (cfgtype.Value, error) {
	if !r.IsObject() {
		return cfgtype.Value{}, fmt.Errorf("value must be a JSON object, got %q", r.Raw)
	}
	t, err := cfgtype.ParseType(r.Get("type").String())
	if err != nil {
		return cfgtype.Value{}, err
	}
	return cfgtype.ParseValue(t, r.Get("value").String())
}

// EncodeInstance renders an instance record
func EncodeInstance(inst cfgtype.Instance) ([]byte, error) {
	v, err := ValueBody(inst.Value).String()
	if err != nil {
		return nil, err
	}
	return Body{}.
		Set("handle", uint32(inst.Handle)).
		Set("oid", inst.OID).
		SetRaw("value", v).
		Bytes()
}

// DecodeInstance parses an instance record
func DecodeInstance(b []byte) (cfgtype.Instance, error) {
	if !gjson.ValidBytes(b) {
		return cfgtype.Instance{}, fmt.Errorf("invalid instance record: %q", truncate(string(b)))
	}
	doc := gjson.ParseBytes(b)
	inst := cfgtype.Instance{
		Handle: handleOf(doc.Get("handle")),
		OID:    doc.Get("oid").String(),
	}
	if v := doc.Get("value"); v.Exists() {
		val, err := DecodeValue(v)
		if err != nil {
			return cfgtype.Instance{}, err
		}
		inst.Value = val
	}
	return inst, nil
}

// EncodeObject renders an object description
func EncodeObject(o cfgtype.Object) ([]byte, error) {
	return Body{}.
		Set("handle", uint32(o.Handle)).
		Set("oid", o.OID).
		Set("type", o.Type.String()).
		Set("access", o.Access.String()).
		SetIf(o.Default != "", "default", o.Default).
		SetIf(o.Volatile, "volatile", true).
		Bytes()
}

// DecodeObject parses an object description
func DecodeObject(b []byte) (cfgtype.Object, error) {
	if !gjson.ValidBytes(b) {
		return cfgtype.Object{}, fmt.Errorf("invalid object record: %q", truncate(string(b)))
	}
	return decodeObject(gjson.ParseBytes(b))
}

func decodeObject(doc gjson.Result) (cfgtype.Object, error) {
	t, err := cfgtype.ParseType(doc.Get("type").String())
	if err != nil {
		return cfgtype.Object{}, err
	}
	a, err := cfgtype.ParseAccess(doc.Get("access").String())
	if err != nil {
		return cfgtype.Object{}, err
	}
	return cfgtype.Object{
		Handle:   handleOf(doc.Get("handle")),
		OID:      doc.Get("oid").String(),
		Type:     t,
		Access:   a,
		Default:  doc.Get("default").String(),
		Volatile: doc.Get("volatile").Bool(),
	}, nil
}

// TextRecord wraps free text (tree dumps) in a JSON document
func TextRecord(text string) ([]byte, error) {
	return Body{}.Set("text", text).Bytes()
}

// DecodeText extracts the text of a TextRecord
func DecodeText(b []byte) string {
	return gjson.GetBytes(b, "text").String()
}

// JSONValue wraps a JSON document in a gNMI typed value
func JSONValue(doc []byte) *gnmipb.TypedValue {
	return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_JsonIetfVal{JsonIetfVal: doc}}
}

// ValueUpdate builds a gNMI update carrying a typed value for path
func ValueUpdate(path *gnmipb.Path, v cfgtype.Value) (*gnmipb.Update, error) {
	doc, err := ValueBody(v).Bytes()
	if err != nil {
		return nil, err
	}
	return &gnmipb.Update{Path: path, Val: JSONValue(doc)}, nil
}

// ValueFromUpdate extracts the typed value of a gNMI update
func ValueFromUpdate(u *gnmipb.Update) (cfgtype.Value, error) {
	raw := u.GetVal().GetJsonIetfVal()
	if raw == nil {
		raw = u.GetVal().GetJsonVal()
	}
	if raw == nil {
		return cfgtype.Unspecified(), nil
	}
	if !gjson.ValidBytes(raw) {
		return cfgtype.Value{}, fmt.Errorf("invalid value document: %q", truncate(string(raw)))
	}
	return DecodeValue(gjson.ParseBytes(raw))
}

func handleOf(r gjson.Result) cfgtype.Handle {
	if !r.Exists() {
		return cfgtype.InvalidHandle
	}
	return cfgtype.Handle(uint32(r.Uint()))
}

func truncate(s string) string {
	if len(s) <= 100 {
		return s
	}
	return s[:100] + "..."
}
