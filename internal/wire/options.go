// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package wire

import (
	"fmt"

	"github.com/openconfig/gnmi/proto/gnmi_ext"
	"github.com/tidwall/gjson"

	"github.com/netascode/go-confapi/cfgtype"
)

// Get operations
const (
	OpFind      = "find"
	OpPattern   = "pattern"
	OpGet       = "get"
	OpSon       = "son"
	OpBrother   = "brother"
	OpFather    = "father"
	OpObject    = "object"
	OpOID       = "oid"
	OpEnumerate = "enumerate"
	OpTree      = "tree"
)

// Set commands carried without updates
const (
	OpCommit        = "commit"
	OpSync          = "sync"
	OpBackupCreate  = "backup_create"
	OpBackupVerify  = "backup_verify"
	OpBackupRestore = "backup_restore"
	OpBackupRelease = "backup_release"
	OpRegister      = "register"
	OpUnregister    = "unregister"
	OpWait          = "wait"
	OpCopy          = "copy"
	OpTouch         = "touch"
)

// Options are the request parameters carried in the gNMI extension
type Options struct {
	// Op selects the Get operation or the Set command
	Op string

	// Handle addresses the target by handle instead of by path
	Handle cfgtype.Handle

	// Local stages the change until the next commit
	Local bool

	// Recursive deletes the whole subtree
	Recursive bool

	// Sync refreshes from the agent before reading
	Sync bool

	// Subtree extends a sync to all descendants
	Subtree bool

	// Expect turns a set into a compare-and-set
	Expect *cfgtype.Value

	// Name is the OID or backup name argument of a command
	Name string

	// Source is the OID a copy reads from
	Source string

	// Object is the description passed to register
	Object *cfgtype.Object

	// ID names one logical Set call; retries of the call repeat it so
	// the server can answer them with the first outcome
	ID string
}

// NewOptions returns Options for op addressing no handle
func NewOptions(op string) Options {
	return Options{Op: op, Handle: cfgtype.InvalidHandle}
}

// Extension encodes the options as an experimental gNMI extension
func (o Options) Extension() (*gnmi_ext.Extension, error) {
	body := Body{}.
		SetIf(o.Op != "", "op", o.Op).
		SetIf(o.Handle.IsValid(), "handle", uint32(o.Handle)).
		SetIf(o.Local, "local", true).
		SetIf(o.Recursive, "recursive", true).
		SetIf(o.Sync, "sync", true).
		SetIf(o.Subtree, "subtree", true).
		SetIf(o.Name != "", "name", o.Name).
		SetIf(o.Source != "", "source", o.Source).
		SetIf(o.ID != "", "id", o.ID)

	if o.Expect != nil {
		v, err := ValueBody(*o.Expect).String()
		if err != nil {
			return nil, err
		}
		body = body.SetRaw("expect", v)
	}
	if o.Object != nil {
		obj, err := EncodeObject(*o.Object)
		if err != nil {
			return nil, err
		}
		body = body.SetRaw("object", string(obj))
	}

	b, err := body.Bytes()
	if err != nil {
		return nil, err
	}
	return registeredExtension(b), nil
}

// OptionsFromExtensions decodes the first experimental extension.
// A request without one yields NewOptions("").
func OptionsFromExtensions(exts []*gnmi_ext.Extension) (Options, error) {
	o := NewOptions("")
	msg, ok := experimentalPayload(exts)
	if !ok {
		return o, nil
	}
	if !gjson.ValidBytes(msg) {
		return o, fmt.Errorf("invalid options extension: %q", truncate(string(msg)))
	}

	doc := gjson.ParseBytes(msg)
	o.Op = doc.Get("op").String()
	o.Handle = handleOf(doc.Get("handle"))
	o.Local = doc.Get("local").Bool()
	o.Recursive = doc.Get("recursive").Bool()
	o.Sync = doc.Get("sync").Bool()
	o.Subtree = doc.Get("subtree").Bool()
	o.Name = doc.Get("name").String()
	o.Source = doc.Get("source").String()
	o.ID = doc.Get("id").String()

	if e := doc.Get("expect"); e.Exists() {
		v, err := DecodeValue(e)
		if err != nil {
			return o, err
		}
		o.Expect = &v
	}
	if obj := doc.Get("object"); obj.Exists() {
		d, err := decodeObject(obj)
		if err != nil {
			return o, err
		}
		o.Object = &d
	}
	return o, nil
}

// Result carries Set results back in the response extension
type Result struct {
	// Handles of added instances, in update order
	Handles []cfgtype.Handle

	// Name returned by backup_create
	Name string
}

// Extension encodes the result as an experimental gNMI extension
func (r Result) Extension() (*gnmi_ext.Extension, error) {
	handles := make([]uint32, len(r.Handles))
	for i, h := range r.Handles {
		handles[i] = uint32(h)
	}
	b, err := Body{}.
		SetIf(len(handles) > 0, "handles", handles).
		SetIf(r.Name != "", "name", r.Name).
		Bytes()
	if err != nil {
		return nil, err
	}
	return registeredExtension(b), nil
}

// ResultFromExtensions decodes a Set result; absent results are empty
func ResultFromExtensions(exts []*gnmi_ext.Extension) (Result, error) {
	var r Result
	msg, ok := experimentalPayload(exts)
	if !ok {
		return r, nil
	}
	if !gjson.ValidBytes(msg) {
		return r, fmt.Errorf("invalid result extension: %q", truncate(string(msg)))
	}
	doc := gjson.ParseBytes(msg)
	for _, h := range doc.Get("handles").Array() {
		r.Handles = append(r.Handles, cfgtype.Handle(uint32(h.Uint())))
	}
	r.Name = doc.Get("name").String()
	return r, nil
}

func registeredExtension(msg []byte) *gnmi_ext.Extension {
	return &gnmi_ext.Extension{
		Ext: &gnmi_ext.Extension_RegisteredExt{
			RegisteredExt: &gnmi_ext.RegisteredExtension{
				Id:  gnmi_ext.ExtensionID_EID_EXPERIMENTAL,
				Msg: msg,
			},
		},
	}
}

func experimentalPayload(exts []*gnmi_ext.Extension) ([]byte, bool) {
	for _, ext := range exts {
		reg := ext.GetRegisteredExt()
		if reg != nil && reg.GetId() == gnmi_ext.ExtensionID_EID_EXPERIMENTAL {
			return reg.GetMsg(), true
		}
	}
	return nil, false
}
