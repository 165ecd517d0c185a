// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// Register adds an object to the schema.
//
// The parent object must exist and the OID must be free. The default,
// if any, must parse as the object's type.
func (db *DB) Register(ctx context.Context, desc cfgtype.Object) (cfgtype.Handle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	obj, err := db.register(desc)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	db.logger.Debug(ctx, "object registered", "oid", obj.OID, "type", obj.Type.String(), "access", obj.Access.String())
	return obj.Handle, nil
}

func (db *DB) register(desc cfgtype.Object) (*object, error) {
	o, err := oid.Parse(desc.OID)
	if err != nil {
		return nil, err
	}
	if o.IsInstance() || o.IsRoot() {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "%s is not a registrable object OID", desc.OID)
	}
	if _, ok := db.objByOID[desc.OID]; ok {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.AlreadyExists, "object %s is already registered", desc.OID)
	}
	parent, ok := db.objByOID[o.Parent().String()]
	if !ok {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "parent of object %s is not registered", desc.OID)
	}
	if desc.Type == cfgtype.TypeUnspecified {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "object %s needs a concrete type", desc.OID)
	}
	if _, err := cfgtype.ParseValue(desc.Type, desc.Default); err != nil {
		return nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "default of %s", desc.OID)
	}

	idx := -1
	for i, slot := range db.objects {
		if slot == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		if len(db.objects) > cfgtype.MaxIndex {
			return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.OutOfMemory, "object table is full")
		}
		idx = len(db.objects)
		db.objects = append(db.objects, nil)
	}

	obj := &object{Object: desc, parent: parent}
	obj.Handle = cfgtype.Handle(idx)
	db.objects[idx] = obj
	db.objByOID[obj.OID] = obj
	parent.children = append(parent.children, obj)
	return obj, nil
}

// Unregister removes an object and its descendant objects.
// Fails with busy while any instance of them exists.
func (db *DB) Unregister(ctx context.Context, s string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	obj, ok := db.objByOID[s]
	if !ok {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "object %s is not registered", s)
	}
	if obj.reserved {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.PermissionDenied, "object %s is reserved", s)
	}

	doomed := make(map[*object]bool)
	var collect func(*object)
	collect = func(o *object) {
		doomed[o] = true
		for _, c := range o.children {
			collect(c)
		}
	}
	collect(obj)

	for _, inst := range db.insts {
		if inst != nil && doomed[inst.obj] {
			return cfgerr.New(cfgerr.ModuleCS, cfgerr.Busy, "object %s has instance %s", s, inst.str)
		}
	}

	for o := range doomed {
		db.objects[o.Handle.Index()] = nil
		delete(db.objByOID, o.OID)
	}
	p := obj.parent
	for i, c := range p.children {
		if c == obj {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			break
		}
	}
	db.logger.Debug(ctx, "object unregistered", "oid", s)
	return nil
}

// Object describes the object h names. An instance handle yields the
// object the instance belongs to.
func (db *DB) Object(h cfgtype.Handle) (cfgtype.Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if h.IsInstance() {
		inst, err := db.instanceByHandle(h)
		if err != nil {
			return cfgtype.Object{}, err
		}
		return inst.obj.Object, nil
	}
	obj, err := db.objectByHandle(h)
	if err != nil {
		return cfgtype.Object{}, err
	}
	return obj.Object, nil
}

// ObjectByOID describes the object registered under s
func (db *DB) ObjectByOID(s string) (cfgtype.Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	obj, ok := db.objByOID[s]
	if !ok {
		return cfgtype.Object{}, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "object %s is not registered", s)
	}
	return obj.Object, nil
}

// Objects returns every registered object in pre-order
func (db *DB) Objects() []cfgtype.Object {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []cfgtype.Object
	walkObjects(db.objects[0], func(o *object) {
		out = append(out, o.Object)
	})
	return out
}

func walkObjects(o *object, fn func(*object)) {
	fn(o)
	for _, c := range o.children {
		walkObjects(c, fn)
	}
}
