// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// CopySubtree copies instance src and its descendants to dst and
// returns the handle of dst.
//
// dst must name an instance of the same object as src outside src's
// subtree. A missing dst is added with the value of src; an existing
// one is merged: writable values are overwritten and missing
// read-create descendants added, nothing is deleted. Unless local the
// result is committed. A failed commit removes a newly added dst and
// leaves the changes of a merge staged.
func (db *DB) CopySubtree(ctx context.Context, dst, src string, local bool) (cfgtype.Handle, error) {
	d, err := oid.Parse(dst)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	from, err := db.lookupInstance(src)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if from.parent == nil || isAgentRoot(from) {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "cannot copy %s", src)
	}
	if !d.IsInstance() || !d.Object().Equal(from.oid.Object()) {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "%s is not an instance of %s", dst, from.obj.OID)
	}
	if d.HasPrefix(from.oid) {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "cannot copy %s into itself", src)
	}

	to, err := db.lookupInstance(d.String())
	created := err != nil
	if created {
		if to, err = db.stage(d, from.value); err != nil {
			return cfgtype.InvalidHandle, err
		}
	} else {
		db.stageValue(to, from.value)
	}
	if err := db.copyChildren(to, from); err != nil {
		if created {
			db.withdraw(to)
		}
		return cfgtype.InvalidHandle, err
	}

	db.logger.Debug(ctx, "subtree copied", "src", from.str, "dst", to.str, "local", local)
	if local {
		return to.handle, nil
	}
	if err := db.commit(ctx, to); err != nil {
		if created {
			db.rollbackAdd(ctx, to)
		}
		return cfgtype.InvalidHandle, err
	}
	return to.handle, nil
}

func (db *DB) copyChildren(to, from *instance) error {
	for _, c := range append([]*instance(nil), from.children...) {
		if c.removed {
			continue
		}
		last := c.oid.Last()
		o := to.oid.Child(last.Subid, last.Name)
		d, err := db.lookupInstance(o.String())
		switch {
		case err == nil:
			db.stageValue(d, c.value)
		case c.obj.Access == cfgtype.ReadCreate:
			if d, err = db.stage(o, c.value); err != nil {
				return err
			}
		default:
			continue
		}
		if err := db.copyChildren(d, c); err != nil {
			return err
		}
	}
	return nil
}

// stageValue stages v on a writable instance holding another value
func (db *DB) stageValue(inst *instance, v cfgtype.Value) {
	if !inst.obj.Access.Writable() || inst.value.Equal(v) {
		return
	}
	inst.value = v
	inst.changed = true
}

// Touch records a change of every instance matching pattern made by
// means other than this DB, so WaitChanges honours the /conf_delay
// settings for them. It returns the number of matched instances.
func (db *DB) Touch(ctx context.Context, pattern string) (int, error) {
	p, err := oid.ParsePattern(pattern)
	if err != nil {
		return 0, err
	}
	if !p.IsInstance() {
		return 0, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "%s is not an instance pattern", pattern)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	n := 0
	walk(db.insts[0], func(i *instance) bool {
		if i.removed || i.oid.Len() > p.Len() {
			return false
		}
		if i.oid.Len() == p.Len() && i.oid.Match(p) {
			agent := ""
			if i.oid.Comp(0).Subid == "agent" {
				agent = i.oid.Comp(0).Name
			}
			db.noteChange(agent, i)
			n++
		}
		return true
	})
	db.logger.Debug(ctx, "instances touched", "pattern", pattern, "count", n)
	return n, nil
}
