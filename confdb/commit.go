// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"
	"strings"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// Commit pushes the staged changes below prefix to the owning agents
// and synchronizes the committed subtrees back. An empty prefix
// commits the whole tree.
func (db *DB) Commit(ctx context.Context, prefix string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if prefix == "" {
		return db.commit(ctx, db.insts[0])
	}
	o, err := oid.Parse(prefix)
	if err != nil {
		return err
	}
	if !o.IsInstance() {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "cannot commit object %s", prefix)
	}
	for _, c := range o.Components() {
		if strings.Contains(c.Name, oid.Wildcard) {
			return cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "cannot commit pattern %s", prefix)
		}
	}
	inst, ok := db.instByOID[o.String()]
	if !ok {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "instance %s does not exist", o.String())
	}
	return db.commit(ctx, inst)
}

func (db *DB) commit(ctx context.Context, inst *instance) error {
	if inst.parent == nil {
		for _, c := range append([]*instance(nil), inst.children...) {
			if err := db.commit(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}

	agent, name := db.agentOf(inst)
	if agent == nil {
		db.settle(inst)
		return nil
	}

	db.logger.Debug(ctx, "commit", "oid", inst.str, "agent", name)
	removed := inst.removed
	if err := db.push(ctx, agent, name, inst); err != nil {
		db.logger.Warn(ctx, "commit failed", "oid", inst.str, "error", err)
		return err
	}
	if removed {
		return nil
	}
	return db.syncInstance(ctx, inst, true)
}

// push walks inst in pre-order: staged deletes go first and end the
// walk of their subtree, unpushed instances are added (read-create)
// or set, staged values are set.
func (db *DB) push(ctx context.Context, agent Agent, name string, inst *instance) error {
	switch {
	case inst.removed:
		if err := agent.Delete(ctx, inst.str); err != nil && !cfgerr.IsKind(err, cfgerr.NotFound) {
			return agentErr(err, "delete", inst.str)
		}
		db.noteChange(name, inst)
		db.unlink(inst)
		return nil
	case !inst.added && inst.obj.Access == cfgtype.ReadCreate:
		if r := inst.replaces; r != nil {
			if err := agent.Delete(ctx, r.str); err != nil && !cfgerr.IsKind(err, cfgerr.NotFound) {
				return agentErr(err, "delete", r.str)
			}
			db.noteChange(name, r)
			inst.replaces = nil
			db.unlink(r)
		}
		if err := agent.Add(ctx, inst.str, inst.value); err != nil {
			return agentErr(err, "add", inst.str)
		}
		db.noteChange(name, inst)
	case !inst.added || inst.changed:
		if err := agent.Set(ctx, inst.str, inst.value); err != nil {
			return agentErr(err, "set", inst.str)
		}
		db.noteChange(name, inst)
	}
	inst.added = true
	inst.changed = false

	for _, c := range append([]*instance(nil), inst.children...) {
		if err := db.push(ctx, agent, name, c); err != nil {
			return err
		}
	}
	return nil
}

// pushDelete removes a committed instance from its agent
func (db *DB) pushDelete(ctx context.Context, inst *instance) error {
	agent, name := db.agentOf(inst)
	if agent == nil {
		return nil
	}
	if err := agent.Delete(ctx, inst.str); err != nil && !cfgerr.IsKind(err, cfgerr.NotFound) {
		return agentErr(err, "delete", inst.str)
	}
	db.noteChange(name, inst)
	return nil
}

// rollbackAdd undoes a failed non-local add
func (db *DB) rollbackAdd(ctx context.Context, inst *instance) {
	if db.instByOID[inst.str] != inst {
		return
	}
	if inst.added {
		if agent, _ := db.agentOf(inst); agent != nil {
			if err := agent.Delete(ctx, inst.str); err != nil {
				db.logger.Warn(ctx, "rollback of add failed", "oid", inst.str, "error", err)
			}
		}
		db.unlink(inst)
		return
	}
	db.withdraw(inst)
}

// settle clears staging flags of a subtree no agent owns
func (db *DB) settle(inst *instance) {
	var gone []*instance
	walk(inst, func(i *instance) bool {
		if i.removed {
			gone = append(gone, i)
			return false
		}
		i.added = true
		i.changed = false
		return true
	})
	for _, g := range gone {
		db.unlink(g)
	}
}

// agentErr tags errors of foreign agents with the agent module
func agentErr(err error, op, s string) error {
	if cfgerr.ModuleOf(err) != "" {
		return err
	}
	return cfgerr.Wrap(cfgerr.ModuleAgent, cfgerr.Internal, err, "agent failed").WithOp(op, s)
}
