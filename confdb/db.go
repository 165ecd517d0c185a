// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package confdb implements the configuration tree held by the
// Configurator: the object registry, the instance table, local staging
// and commit, synchronization with agents, backups and configuration
// files.
//
// A DB serialises every operation behind one mutex, so pool entries and
// resource reservations can rely on compare-and-set being atomic.
//
// Example:
//
//	db := confdb.New(confdb.WithLogger(logger))
//	defer db.Close()
//
//	_, err := db.Register(ctx, cfgtype.Object{
//	    OID:    "/agent/vlan",
//	    Type:   cfgtype.TypeInt,
//	    Access: cfgtype.ReadCreate,
//	})
//	...
//	h, err := db.Add(ctx, "/agent:A/vlan:7", cfgtype.Int(1), false)
package confdb

import (
	"sync"
	"time"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/logging"
	"github.com/netascode/go-confapi/oid"
)

// Reserved object OIDs registered by New
const (
	AgentOID       = "/agent"
	RsrcOID        = "/agent/rsrc"
	ConfDelayOID   = "/conf_delay"
	ConfDelayTaOID = "/conf_delay/ta"
)

// DB is the configuration tree
type DB struct {
	mu sync.Mutex

	// objects indexed by object handle; nil slots are unregistered
	objects  []*object
	objByOID map[string]*object

	// instances indexed by handle index; nil slots are free
	insts     []*instance
	instByOID map[string]*instance
	freeSlots []int
	seq       uint16

	agents map[string]Agent

	backups BackupStore

	delayUntil time.Time
	now        func() time.Time

	logger logging.Logger
}

type object struct {
	cfgtype.Object
	parent   *object
	children []*object
	reserved bool
}

type instance struct {
	handle   cfgtype.Handle
	oid      oid.OID
	str      string
	obj      *object
	value    cfgtype.Value
	parent   *instance
	children []*instance

	// added is false while a locally added instance is not yet pushed
	added bool
	// changed marks a staged value
	changed bool
	// removed marks a staged delete; removed instances are invisible
	removed bool
	// replaces is a detached staged delete of the same OID that the
	// agent must see before this instance is added
	replaces *instance
}

// Option configures a DB
type Option func(*DB)

// WithLogger sets the logger; the default discards everything
func WithLogger(l logging.Logger) Option {
	return func(db *DB) {
		db.logger = l
	}
}

// WithBackupStore sets where backups are kept; the default is a
// FileBackupStore in the system temporary directory
func WithBackupStore(s BackupStore) Option {
	return func(db *DB) {
		db.backups = s
	}
}

// WithClock replaces time.Now for delay bookkeeping
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// New creates a DB holding the root object, the root instance and the
// reserved objects
func New(opts ...Option) *DB {
	db := &DB{
		objByOID:  make(map[string]*object),
		instByOID: make(map[string]*instance),
		agents:    make(map[string]Agent),
		now:       time.Now,
		logger:    &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.backups == nil {
		db.backups = NewFileBackupStore("")
	}

	root := &object{Object: cfgtype.Object{Handle: 0, OID: "/", Type: cfgtype.TypeNone, Access: cfgtype.ReadOnly}, reserved: true}
	db.objects = append(db.objects, root)
	db.objByOID["/"] = root

	db.seq = 1
	rootInst := &instance{
		handle: cfgtype.InstanceHandle(0, 1),
		oid:    oid.RootInstance,
		str:    "/:",
		obj:    root,
		value:  cfgtype.None(),
		added:  true,
	}
	db.insts = append(db.insts, rootInst)
	db.instByOID["/:"] = rootInst

	for _, r := range []cfgtype.Object{
		{OID: AgentOID, Type: cfgtype.TypeNone, Access: cfgtype.ReadOnly},
		{OID: RsrcOID, Type: cfgtype.TypeString, Access: cfgtype.ReadCreate},
		{OID: ConfDelayOID, Type: cfgtype.TypeString, Access: cfgtype.ReadCreate},
		{OID: ConfDelayTaOID, Type: cfgtype.TypeInt, Access: cfgtype.ReadCreate},
	} {
		obj, err := db.register(r)
		if err != nil {
			panic(err)
		}
		obj.reserved = true
	}
	return db
}

// Close releases the backup store
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.backups.Close()
}

// instanceByHandle resolves a visible instance handle
func (db *DB) instanceByHandle(h cfgtype.Handle) (*instance, error) {
	if !h.IsInstance() {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "%s is not an instance handle", h)
	}
	idx := h.Index()
	if idx >= len(db.insts) || db.insts[idx] == nil || db.insts[idx].handle != h || db.insts[idx].removed {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "no instance with handle %s", h)
	}
	return db.insts[idx], nil
}

// objectByHandle resolves an object handle
func (db *DB) objectByHandle(h cfgtype.Handle) (*object, error) {
	if !h.IsObject() {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "%s is not an object handle", h)
	}
	idx := h.Index()
	if idx >= len(db.objects) || db.objects[idx] == nil {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "no object with handle %s", h)
	}
	return db.objects[idx], nil
}

// lookupInstance returns the visible instance named s
func (db *DB) lookupInstance(s string) (*instance, error) {
	inst, ok := db.instByOID[s]
	if !ok || inst.removed {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "instance %s does not exist", s)
	}
	return inst, nil
}

// newInstance links a new instance below parent and allocates its handle
func (db *DB) newInstance(parent *instance, o oid.OID, obj *object, v cfgtype.Value) (*instance, error) {
	idx := -1
	if n := len(db.freeSlots); n > 0 {
		idx = db.freeSlots[n-1]
		db.freeSlots = db.freeSlots[:n-1]
	} else if len(db.insts) <= cfgtype.MaxIndex {
		idx = len(db.insts)
		db.insts = append(db.insts, nil)
	}
	if idx < 0 {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.OutOfMemory, "instance table is full")
	}

	db.seq++
	if db.seq == 0 {
		db.seq = 1
	}
	inst := &instance{
		handle: cfgtype.InstanceHandle(idx, db.seq),
		oid:    o,
		str:    o.String(),
		obj:    obj,
		value:  v,
		parent: parent,
	}
	db.insts[idx] = inst
	db.instByOID[inst.str] = inst
	parent.children = append(parent.children, inst)
	return inst, nil
}

// unlink removes inst and its subtree from the table
func (db *DB) unlink(inst *instance) {
	if r := inst.replaces; r != nil {
		inst.replaces = nil
		db.unlink(r)
	}
	for _, c := range inst.children {
		db.unlink(c)
	}
	inst.children = nil

	idx := inst.handle.Index()
	if idx < len(db.insts) && db.insts[idx] == inst {
		db.insts[idx] = nil
		db.freeSlots = append(db.freeSlots, idx)
	}
	if db.instByOID[inst.str] == inst {
		delete(db.instByOID, inst.str)
	}

	if p := inst.parent; p != nil {
		for i, c := range p.children {
			if c == inst {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
		inst.parent = nil
	}
}

// detach takes a staged delete out of the tree and the OID index
// while its handles stay allocated
func (db *DB) detach(inst *instance) {
	walk(inst, func(i *instance) bool {
		if db.instByOID[i.str] == i {
			delete(db.instByOID, i.str)
		}
		return true
	})
	if p := inst.parent; p != nil {
		for i, c := range p.children {
			if c == inst {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
	}
}

// reattach undoes detach
func (db *DB) reattach(inst *instance) {
	walk(inst, func(i *instance) bool {
		if _, taken := db.instByOID[i.str]; !taken {
			db.instByOID[i.str] = i
		}
		return true
	})
	if p := inst.parent; p != nil {
		p.children = append(p.children, inst)
	}
}

// withdraw drops an instance that never reached its agent and puts
// back the staged delete it replaced
func (db *DB) withdraw(inst *instance) {
	r := inst.replaces
	inst.replaces = nil
	db.unlink(inst)
	if r != nil {
		db.reattach(r)
	}
}

// walk visits inst and its descendants in pre-order; a false return
// from fn skips the descendants of the visited instance
func walk(inst *instance, fn func(*instance) bool) {
	if !fn(inst) {
		return
	}
	for _, c := range inst.children {
		walk(c, fn)
	}
}

// agentOf returns the agent owning inst and its name
func (db *DB) agentOf(inst *instance) (Agent, string) {
	if inst.oid.Len() == 0 || inst.oid.Comp(0).Subid != "agent" {
		return nil, ""
	}
	name := inst.oid.Comp(0).Name
	return db.agents[name], name
}

func (i *instance) snapshot() cfgtype.Instance {
	return cfgtype.Instance{Handle: i.handle, OID: i.str, Value: i.value}
}

// defaultValue returns the value of obj's default
func (o *object) defaultValue() (cfgtype.Value, error) {
	v, err := cfgtype.ParseValue(o.Type, o.Default)
	if err != nil {
		return cfgtype.Value{}, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.WrongType, err, "default of %s", o.OID)
	}
	return v, nil
}

// conform checks v against obj's type; unspecified means the default
func (o *object) conform(v cfgtype.Value) (cfgtype.Value, error) {
	if v.Type() == cfgtype.TypeUnspecified {
		return o.defaultValue()
	}
	if v.Type() != o.Type {
		return cfgtype.Value{}, cfgerr.New(cfgerr.ModuleCS, cfgerr.WrongType, "%s carries %s values, got %s", o.OID, o.Type, v.Type())
	}
	return v, nil
}
