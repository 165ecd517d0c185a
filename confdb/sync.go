// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// Sync pulls the state of instance s (and its descendants with
// subtree) from the owning agent. An empty s or "/:" synchronizes
// every attached agent; instances no agent owns are left alone.
func (db *DB) Sync(ctx context.Context, s string, subtree bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if s == "" || s == "/:" {
		return db.syncAll(ctx)
	}
	inst, err := db.lookupInstance(s)
	if err != nil {
		return err
	}
	return db.syncInstance(ctx, inst, subtree)
}

func (db *DB) syncInstance(ctx context.Context, inst *instance, subtree bool) error {
	agent, _ := db.agentOf(inst)
	if agent == nil {
		return nil
	}

	if !subtree {
		v, err := agent.Get(ctx, inst.str)
		if cfgerr.IsKind(err, cfgerr.NotFound) {
			if inst.added && inst.oid.Len() > 1 {
				db.logger.Debug(ctx, "instance vanished on agent", "oid", inst.str)
				db.unlink(inst)
			}
			return nil
		}
		if err != nil {
			return agentErr(err, "get", inst.str)
		}
		db.applyValue(ctx, inst, v)
		return nil
	}

	entries, err := agent.Snapshot(ctx, inst.str, true)
	if cfgerr.IsKind(err, cfgerr.NotFound) {
		if inst.added && inst.oid.Len() > 1 {
			db.unlink(inst)
		}
		return nil
	}
	if err != nil {
		return agentErr(err, "sync", inst.str)
	}
	db.applySnapshot(ctx, inst, entries)
	return nil
}

// syncAll fetches the snapshots of every agent concurrently and
// applies them in name order
func (db *DB) syncAll(ctx context.Context) error {
	names := make([]string, 0, len(db.agents))
	for name := range db.agents {
		names = append(names, name)
	}
	sort.Strings(names)

	snaps := make([][]Entry, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		agent := db.agents[name]
		root := agentRoot(name)
		g.Go(func() error {
			entries, err := agent.Snapshot(gctx, root, true)
			if err != nil {
				return agentErr(err, "sync", root)
			}
			snaps[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, name := range names {
		inst, ok := db.instByOID[agentRoot(name)]
		if !ok {
			continue
		}
		db.applySnapshot(ctx, inst, snaps[i])
	}
	return nil
}

// applySnapshot reconciles the subtree top with the agent's entries:
// missing instances are created, values refreshed and committed
// instances the agent no longer reports are dropped. Staged instances
// are left alone.
func (db *DB) applySnapshot(ctx context.Context, top *instance, entries []Entry) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[e.OID] = true
		if cur, ok := db.instByOID[e.OID]; ok {
			db.applyValue(ctx, cur, e.Value)
			continue
		}

		o, err := oid.Parse(e.OID)
		if err != nil || !o.IsInstance() || o.IsRoot() {
			db.logger.Warn(ctx, "agent reported a malformed OID", "oid", e.OID)
			continue
		}
		parent, ok := db.instByOID[o.Parent().String()]
		if !ok || !parent.added {
			continue
		}
		obj, ok := db.objByOID[o.Object().String()]
		if !ok {
			db.logger.Debug(ctx, "skipping instance of unknown object", "oid", e.OID)
			continue
		}
		v, err := conformSynced(obj, e.Value)
		if err != nil {
			db.logger.Warn(ctx, "agent reported a value of the wrong type", "oid", e.OID, "error", err)
			continue
		}
		inst, err := db.newInstance(parent, o, obj, v)
		if err != nil {
			db.logger.Error(ctx, "cannot add synchronized instance", "oid", e.OID, "error", err)
			continue
		}
		inst.added = true
	}

	var gone []*instance
	walk(top, func(i *instance) bool {
		if !seen[i.str] && i.added && i.parent != nil && i.oid.Len() > 1 {
			gone = append(gone, i)
			return false
		}
		return true
	})
	for _, g := range gone {
		db.logger.Debug(ctx, "instance vanished on agent", "oid", g.str)
		db.unlink(g)
	}
}

// applyValue refreshes a committed instance from an agent value
func (db *DB) applyValue(ctx context.Context, inst *instance, v cfgtype.Value) {
	if inst.removed || inst.changed || !inst.added {
		return
	}
	val, err := conformSynced(inst.obj, v)
	if err != nil {
		db.logger.Warn(ctx, "agent reported a value of the wrong type", "oid", inst.str, "error", err)
		return
	}
	inst.value = val
}

// conformSynced coerces an agent value to the object type through its
// textual form
func conformSynced(obj *object, v cfgtype.Value) (cfgtype.Value, error) {
	if v.Type() == obj.Type {
		return v, nil
	}
	return cfgtype.ParseValue(obj.Type, v.String())
}

func agentRoot(name string) string {
	return "/agent:" + name
}
