// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

const snapshotVersion = 1

// snapshot is the msgpack image of the instance tree
type snapshot struct {
	Version   int             `msgpack:"version"`
	Instances []snapshotEntry `msgpack:"instances"`
}

type snapshotEntry struct {
	OID   string `msgpack:"oid"`
	Type  string `msgpack:"type"`
	Value string `msgpack:"value"`
}

func (e snapshotEntry) value() (cfgtype.Value, error) {
	t, err := cfgtype.ParseType(e.Type)
	if err != nil {
		return cfgtype.Value{}, err
	}
	return cfgtype.ParseValue(t, e.Value)
}

// image captures every visible instance below the root in pre-order
func (db *DB) image() snapshot {
	snap := snapshot{Version: snapshotVersion}
	walk(db.insts[0], func(i *instance) bool {
		if i.removed {
			return false
		}
		if i.parent != nil {
			snap.Instances = append(snap.Instances, snapshotEntry{
				OID:   i.str,
				Type:  i.value.Type().String(),
				Value: i.value.String(),
			})
		}
		return true
	})
	return snap
}

// CreateBackup stores an image of the tree and returns its name
func (db *DB) CreateBackup(ctx context.Context) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	data, err := msgpack.Marshal(db.image())
	if err != nil {
		return "", cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot encode backup")
	}
	name, err := db.backups.Save(ctx, data)
	if err != nil {
		return "", err
	}
	db.logger.Info(ctx, "backup created", "name", name)
	return name, nil
}

func (db *DB) loadBackup(ctx context.Context, name string) (snapshot, error) {
	var snap snapshot
	data, err := db.backups.Load(ctx, name)
	if err != nil {
		return snap, err
	}
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return snap, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "backup %s is corrupt", name)
	}
	if snap.Version != snapshotVersion {
		return snap, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "backup %s has unsupported version %d", name, snap.Version)
	}
	return snap, nil
}

// VerifyBackup fails with backup-mismatch unless the tree equals the
// backup image
func (db *DB) VerifyBackup(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snap, err := db.loadBackup(ctx, name)
	if err != nil {
		return err
	}
	want := make(map[string]snapshotEntry, len(snap.Instances))
	for _, e := range snap.Instances {
		want[e.OID] = e
	}
	cur := db.image()
	if len(cur.Instances) != len(want) {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.BackupMismatch, "tree has %d instances, backup %s has %d", len(cur.Instances), name, len(want))
	}
	for _, e := range cur.Instances {
		w, ok := want[e.OID]
		if !ok {
			return cfgerr.New(cfgerr.ModuleCS, cfgerr.BackupMismatch, "%s is not in backup %s", e.OID, name)
		}
		if w != e {
			return cfgerr.New(cfgerr.ModuleCS, cfgerr.BackupMismatch, "%s is %q, backup %s has %q", e.OID, e.Value, name, w.Value)
		}
	}
	return nil
}

// RestoreBackup returns the tree to a backup image.
//
// Differences are pushed to the agents first (deletes deepest first,
// then adds parents first, then sets) and the tree is rewritten after.
// Instances present on both sides keep their handles. Agents attached
// since the backup keep their root instance.
func (db *DB) RestoreBackup(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snap, err := db.loadBackup(ctx, name)
	if err != nil {
		return err
	}
	want := make(map[string]snapshotEntry, len(snap.Instances))
	for _, e := range snap.Instances {
		want[e.OID] = e
	}

	// staged re-adds are discarded; the agents still hold what they replace
	var readded []*instance
	walk(db.insts[0], func(i *instance) bool {
		if i.replaces != nil {
			readded = append(readded, i)
		}
		return true
	})
	for _, i := range readded {
		db.withdraw(i)
	}

	var doomed []*instance
	walk(db.insts[0], func(i *instance) bool {
		if i.parent == nil || isAgentRoot(i) {
			return true
		}
		if _, ok := want[i.str]; !ok {
			doomed = append(doomed, i)
		}
		return true
	})

	for k := len(doomed) - 1; k >= 0; k-- {
		i := doomed[k]
		if !i.added || i.obj.Access != cfgtype.ReadCreate {
			continue
		}
		if agent, ta := db.agentOf(i); agent != nil {
			if err := agent.Delete(ctx, i.str); err != nil && !cfgerr.IsKind(err, cfgerr.NotFound) {
				return agentErr(err, "delete", i.str)
			}
			db.noteChange(ta, i)
		}
	}
	for k := len(doomed) - 1; k >= 0; k-- {
		if db.instByOID[doomed[k].str] == doomed[k] {
			db.unlink(doomed[k])
		}
	}

	var sets []*instance
	for _, e := range snap.Instances {
		v, err := e.value()
		if err != nil {
			return cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "backup %s entry %s", name, e.OID)
		}

		if cur, ok := db.instByOID[e.OID]; ok {
			if !cur.value.Equal(v) || cur.changed || !cur.added || cur.removed {
				cur.value = v
				sets = append(sets, cur)
			}
			continue
		}

		o, err := oid.Parse(e.OID)
		if err != nil {
			return cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "backup %s entry %s", name, e.OID)
		}
		parent, ok := db.instByOID[o.Parent().String()]
		obj, known := db.objByOID[o.Object().String()]
		if !ok || !known || (o.Len() == 1 && o.Comp(0).Subid == "agent") {
			db.logger.Warn(ctx, "cannot restore instance", "oid", e.OID, "backup", name)
			continue
		}
		inst, err := db.newInstance(parent, o, obj, v)
		if err != nil {
			return err
		}
		inst.added = true
		if agent, ta := db.agentOf(inst); agent != nil {
			var err error
			switch {
			case obj.Access == cfgtype.ReadCreate:
				err = agent.Add(ctx, inst.str, v)
			case obj.Access.Writable():
				err = agent.Set(ctx, inst.str, v)
			}
			if err != nil {
				return agentErr(err, "restore", inst.str)
			}
			db.noteChange(ta, inst)
		}
	}

	for _, inst := range sets {
		if inst.obj.Access.Writable() {
			if agent, ta := db.agentOf(inst); agent != nil {
				var err error
				if !inst.added && inst.obj.Access == cfgtype.ReadCreate {
					err = agent.Add(ctx, inst.str, inst.value)
				} else {
					err = agent.Set(ctx, inst.str, inst.value)
				}
				if err != nil {
					return agentErr(err, "restore", inst.str)
				}
				db.noteChange(ta, inst)
			}
		}
	}

	walk(db.insts[0], func(i *instance) bool {
		i.added = true
		i.changed = false
		i.removed = false
		return true
	})
	db.logger.Info(ctx, "backup restored", "name", name)
	return nil
}

// ReleaseBackup forgets a backup
func (db *DB) ReleaseBackup(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.backups.Remove(ctx, name); err != nil {
		return err
	}
	db.logger.Debug(ctx, "backup released", "name", name)
	return nil
}

func isAgentRoot(i *instance) bool {
	return i.oid.Len() == 1 && i.oid.Comp(0).Subid == "agent"
}
