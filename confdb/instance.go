// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// Patterns matching every object and every instance
const (
	AllObjects   = "*"
	AllInstances = "*:*"
)

// Find returns the handle of the object or instance named s
func (db *DB) Find(s string) (cfgtype.Handle, error) {
	o, err := oid.Parse(s)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if !o.IsInstance() {
		obj, ok := db.objByOID[s]
		if !ok {
			return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "object %s is not registered", s)
		}
		return obj.Handle, nil
	}
	inst, err := db.lookupInstance(o.String())
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	return inst.handle, nil
}

// FindPattern returns the handles of every object or instance matching
// pattern, in tree order. No match yields an empty slice.
func (db *DB) FindPattern(pattern string) ([]cfgtype.Handle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	handles := []cfgtype.Handle{}
	switch pattern {
	case AllObjects:
		walkObjects(db.objects[0], func(o *object) {
			handles = append(handles, o.Handle)
		})
		return handles, nil
	case AllInstances:
		walk(db.insts[0], func(i *instance) bool {
			if !i.removed {
				handles = append(handles, i.handle)
			}
			return true
		})
		return handles, nil
	}

	p, err := oid.ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	if !p.IsInstance() {
		walkObjects(db.objects[0], func(o *object) {
			if oid.MustParse(o.OID).Match(p) {
				handles = append(handles, o.Handle)
			}
		})
		return handles, nil
	}
	walk(db.insts[0], func(i *instance) bool {
		if i.removed {
			return false
		}
		if i.oid.Len() > p.Len() {
			return false
		}
		if i.oid.Len() == p.Len() && i.oid.Match(p) {
			handles = append(handles, i.handle)
		}
		return true
	})
	return handles, nil
}

// OID returns the OID of the object or instance h
func (db *DB) OID(h cfgtype.Handle) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if h.IsObject() {
		obj, err := db.objectByHandle(h)
		if err != nil {
			return "", err
		}
		return obj.OID, nil
	}
	inst, err := db.instanceByHandle(h)
	if err != nil {
		return "", err
	}
	return inst.str, nil
}

// Get returns the instance h. With sync, or when the object is
// volatile, the instance is synchronized from its agent first.
func (db *DB) Get(ctx context.Context, h cfgtype.Handle, sync bool) (cfgtype.Instance, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	inst, err := db.instanceByHandle(h)
	if err != nil {
		return cfgtype.Instance{}, err
	}
	if sync || inst.obj.Volatile {
		if err := db.syncInstance(ctx, inst, false); err != nil {
			return cfgtype.Instance{}, err
		}
		if inst, err = db.instanceByHandle(h); err != nil {
			return cfgtype.Instance{}, err
		}
	}
	return inst.snapshot(), nil
}

// Set replaces the value of instance h.
//
// The object must be read-write or read-create and v must carry its
// type. A non-nil expect turns the call into a compare-and-set that
// fails with busy when the current value differs. Unless local, the
// change is committed to the owning agent immediately.
func (db *DB) Set(ctx context.Context, h cfgtype.Handle, v cfgtype.Value, local bool, expect *cfgtype.Value) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	inst, err := db.instanceByHandle(h)
	if err != nil {
		return err
	}
	if !inst.obj.Access.Writable() {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.PermissionDenied, "%s is read-only", inst.str)
	}
	if v.Type() != inst.obj.Type {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.WrongType, "%s carries %s values, got %s", inst.str, inst.obj.Type, v.Type())
	}
	if expect != nil && !inst.value.Equal(*expect) {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.Busy, "%s is %q, expected %q", inst.str, inst.value.String(), expect.String())
	}

	old, oldChanged := inst.value, inst.changed
	inst.value = v
	inst.changed = true
	if local {
		return nil
	}
	if err := db.commit(ctx, inst); err != nil {
		if db.insts[h.Index()] == inst {
			inst.value, inst.changed = old, oldChanged
		}
		return err
	}
	return nil
}

// Add creates the instance s with value v and returns its handle.
//
// The parent instance and the object must exist, the object must be
// read-create and v must carry its type; an unspecified v takes the
// object's default. Children of non read-create objects are created
// with their defaults. Unless local, the new subtree is committed to
// the owning agent and removed again when that fails.
func (db *DB) Add(ctx context.Context, s string, v cfgtype.Value, local bool) (cfgtype.Handle, error) {
	o, err := oid.Parse(s)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	inst, err := db.stage(o, v)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	db.logger.Debug(ctx, "instance added", "oid", inst.str, "value", inst.value.String(), "local", local)
	if local {
		return inst.handle, nil
	}
	if err := db.commit(ctx, inst); err != nil {
		db.rollbackAdd(ctx, inst)
		return cfgtype.InvalidHandle, err
	}
	return inst.handle, nil
}

// stage links a new uncommitted instance o with its default children.
// A staged delete of the same OID is kept aside for the next push.
func (db *DB) stage(o oid.OID, v cfgtype.Value) (*instance, error) {
	s := o.String()
	if !o.IsInstance() || o.IsRoot() {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "cannot add %s", s)
	}
	parent, err := db.lookupInstance(o.Parent().String())
	if err != nil {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "parent of %s does not exist", s)
	}
	obj, ok := db.objByOID[o.Object().String()]
	if !ok || obj.parent != parent.obj {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "object of %s is not registered", s)
	}
	if obj.Access != cfgtype.ReadCreate {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.PermissionDenied, "%s is not read-create", obj.OID)
	}
	val, err := obj.conform(v)
	if err != nil {
		return nil, err
	}
	stale, exists := db.instByOID[s]
	if exists && !stale.removed {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.AlreadyExists, "%s already exists", s)
	}
	if exists {
		db.detach(stale)
	}

	inst, err := db.newInstance(parent, o, obj, val)
	if err != nil {
		if exists {
			db.reattach(stale)
		}
		return nil, err
	}
	if exists {
		inst.replaces = stale
	}
	if err := db.addDefaults(inst); err != nil {
		db.withdraw(inst)
		return nil, err
	}
	return inst, nil
}

// addDefaults creates the children of inst whose objects are not
// read-create, recursively, with their default values
func (db *DB) addDefaults(inst *instance) error {
	for _, child := range inst.obj.children {
		if child.Access == cfgtype.ReadCreate {
			continue
		}
		o := inst.oid.Child(lastSubid(child.OID), "")
		if _, exists := db.instByOID[o.String()]; exists {
			continue
		}
		v, err := child.defaultValue()
		if err != nil {
			return err
		}
		c, err := db.newInstance(inst, o, child, v)
		if err != nil {
			return err
		}
		if err := db.addDefaults(c); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes instance h.
//
// Only read-create instances may be deleted. Without recursive the
// call fails with busy while read-create descendants exist. Unless
// local, the owning agent is updated first.
func (db *DB) Delete(ctx context.Context, h cfgtype.Handle, recursive, local bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	inst, err := db.instanceByHandle(h)
	if err != nil {
		return err
	}
	if inst.parent == nil {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "cannot delete the root instance")
	}
	if inst.obj.Access != cfgtype.ReadCreate {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.PermissionDenied, "%s is not read-create", inst.str)
	}
	if !recursive {
		var blocker *instance
		for _, c := range inst.children {
			walk(c, func(d *instance) bool {
				if blocker != nil || d.removed {
					return false
				}
				if d.obj.Access == cfgtype.ReadCreate {
					blocker = d
					return false
				}
				return true
			})
			if blocker != nil {
				return cfgerr.New(cfgerr.ModuleCS, cfgerr.Busy, "%s has child %s", inst.str, blocker.str)
			}
		}
	}

	db.logger.Debug(ctx, "instance deleted", "oid", inst.str, "recursive", recursive, "local", local)
	if !inst.added {
		db.withdraw(inst)
		return nil
	}
	if local {
		walk(inst, func(d *instance) bool {
			d.removed = true
			return true
		})
		return nil
	}
	if err := db.pushDelete(ctx, inst); err != nil {
		return err
	}
	db.unlink(inst)
	return nil
}

// Son returns the first child of h, InvalidHandle for a leaf
func (db *DB) Son(h cfgtype.Handle) (cfgtype.Handle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if h.IsObject() {
		obj, err := db.objectByHandle(h)
		if err != nil {
			return cfgtype.InvalidHandle, err
		}
		if len(obj.children) == 0 {
			return cfgtype.InvalidHandle, nil
		}
		return obj.children[0].Handle, nil
	}
	inst, err := db.instanceByHandle(h)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	for _, c := range inst.children {
		if !c.removed {
			return c.handle, nil
		}
	}
	return cfgtype.InvalidHandle, nil
}

// Brother returns the next sibling of h, InvalidHandle for the last one
func (db *DB) Brother(h cfgtype.Handle) (cfgtype.Handle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if h.IsObject() {
		obj, err := db.objectByHandle(h)
		if err != nil {
			return cfgtype.InvalidHandle, err
		}
		if obj.parent == nil {
			return cfgtype.InvalidHandle, nil
		}
		sibs := obj.parent.children
		for i, c := range sibs {
			if c == obj && i+1 < len(sibs) {
				return sibs[i+1].Handle, nil
			}
		}
		return cfgtype.InvalidHandle, nil
	}
	inst, err := db.instanceByHandle(h)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if inst.parent == nil {
		return cfgtype.InvalidHandle, nil
	}
	found := false
	for _, c := range inst.parent.children {
		if found && !c.removed {
			return c.handle, nil
		}
		if c == inst {
			found = true
		}
	}
	return cfgtype.InvalidHandle, nil
}

// Father returns the parent of h, InvalidHandle for the root
func (db *DB) Father(h cfgtype.Handle) (cfgtype.Handle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if h.IsObject() {
		obj, err := db.objectByHandle(h)
		if err != nil {
			return cfgtype.InvalidHandle, err
		}
		if obj.parent == nil {
			return cfgtype.InvalidHandle, nil
		}
		return obj.parent.Handle, nil
	}
	inst, err := db.instanceByHandle(h)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if inst.parent == nil {
		return cfgtype.InvalidHandle, nil
	}
	return inst.parent.handle, nil
}

// Enumerate returns every instance of the object s in tree order
func (db *DB) Enumerate(s string) ([]cfgtype.Instance, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	obj, ok := db.objByOID[s]
	if !ok {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "object %s is not registered", s)
	}
	out := []cfgtype.Instance{}
	walk(db.insts[0], func(i *instance) bool {
		if i.removed {
			return false
		}
		if i.obj == obj {
			out = append(out, i.snapshot())
			return false
		}
		return true
	})
	return out, nil
}

func lastSubid(objOID string) string {
	for i := len(objOID) - 1; i >= 0; i-- {
		if objOID[i] == '/' {
			return objOID[i+1:]
		}
	}
	return objOID
}
