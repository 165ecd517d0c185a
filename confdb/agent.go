// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// Agent owns the subtree /agent:<Name> and realises its configuration.
//
// OIDs passed to an agent are full instance OIDs. Implementations
// report a missing instance with a not-found *cfgerr.Error.
type Agent interface {
	// Name returns the agent name used in /agent:<name>
	Name() string

	// Get returns the current value of an instance
	Get(ctx context.Context, oid string) (cfgtype.Value, error)

	// Set creates or updates a non read-create instance
	Set(ctx context.Context, oid string, v cfgtype.Value) error

	// Add creates a read-create instance
	Add(ctx context.Context, oid string, v cfgtype.Value) error

	// Delete removes an instance and its subtree
	Delete(ctx context.Context, oid string) error

	// Snapshot returns oid and, with subtree, all its descendants in
	// pre-order
	Snapshot(ctx context.Context, oid string, subtree bool) ([]Entry, error)
}

// Entry is one instance reported by an agent
type Entry struct {
	OID   string
	Value cfgtype.Value
}

// AttachAgent creates /agent:<name> and synchronizes its subtree
func (db *DB) AttachAgent(ctx context.Context, a Agent) error {
	name := a.Name()
	s, err := oid.Format("/agent:%s", name)
	if err != nil {
		return err
	}
	o, err := oid.Parse(s)
	if err != nil || o.Len() != 1 {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "invalid agent name %q", name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.agents[name]; ok {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.AlreadyExists, "agent %s is already attached", name)
	}
	inst, ok := db.instByOID[s]
	if !ok {
		inst, err = db.newInstance(db.insts[0], o, db.objByOID[AgentOID], cfgtype.None())
		if err != nil {
			return err
		}
		inst.added = true
	}
	db.agents[name] = a
	db.logger.Info(ctx, "agent attached", "agent", name)

	if err := db.syncInstance(ctx, inst, true); err != nil {
		delete(db.agents, name)
		db.unlink(inst)
		return err
	}
	return nil
}

// DetachAgent forgets an agent and drops its subtree
func (db *DB) DetachAgent(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.agents[name]; !ok {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "agent %s is not attached", name)
	}
	delete(db.agents, name)
	if inst, ok := db.instByOID[agentRoot(name)]; ok {
		db.unlink(inst)
	}
	db.logger.Info(ctx, "agent detached", "agent", name)
	return nil
}

// Agents returns the names of the attached agents
func (db *DB) Agents() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.agents))
	walk(db.insts[0], func(i *instance) bool {
		if i.oid.Len() == 1 && i.oid.Comp(0).Subid == "agent" {
			if _, ok := db.agents[i.oid.Comp(0).Name]; ok {
				names = append(names, i.oid.Comp(0).Name)
			}
			return false
		}
		return i.parent == nil
	})
	return names
}
