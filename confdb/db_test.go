// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// newTestDB returns a DB with /agent/vlan registered and agent A attached
func newTestDB(t *testing.T, opts ...Option) (*DB, *MemAgent) {
	t.Helper()
	ctx := context.Background()

	opts = append([]Option{WithBackupStore(NewFileBackupStore(t.TempDir()))}, opts...)
	db := New(opts...)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	_, err := db.Register(ctx, cfgtype.Object{OID: "/agent/vlan", Type: cfgtype.TypeInt, Access: cfgtype.ReadCreate})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	a := NewMemAgent("A")
	if err := db.AttachAgent(ctx, a); err != nil {
		t.Fatalf("AttachAgent() error = %v", err)
	}
	return db, a
}

func mustFind(t *testing.T, db *DB, s string) cfgtype.Handle {
	t.Helper()
	h, err := db.Find(s)
	if err != nil {
		t.Fatalf("Find(%s) error = %v", s, err)
	}
	return h
}

func mustAdd(t *testing.T, db *DB, s string, v cfgtype.Value) cfgtype.Handle {
	t.Helper()
	h, err := db.Add(context.Background(), s, v, false)
	if err != nil {
		t.Fatalf("Add(%s) error = %v", s, err)
	}
	return h
}

// TestAddGetDelete tests the add/get/delete life cycle of an agent instance
func TestAddGetDelete(t *testing.T) {
	db, a := newTestDB(t)
	ctx := context.Background()

	h := mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))
	if !h.IsInstance() {
		t.Fatalf("Add() returned %s", h)
	}

	inst, err := db.Get(ctx, h, false)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Value.AsInt() != 1 || inst.OID != "/agent:A/vlan:7" {
		t.Errorf("Get() = %#v", inst)
	}
	if v, err := a.Get(ctx, "/agent:A/vlan:7"); err != nil || v.AsInt() != 1 {
		t.Errorf("agent value = %v, %v", v, err)
	}

	if _, err := db.Add(ctx, "/agent:A/vlan:7", cfgtype.Int(1), false); !errors.Is(err, cfgerr.ErrAlreadyExists) {
		t.Errorf("second Add() error = %v, want already-exists", err)
	}

	if err := db.Delete(ctx, h, false, false); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := db.Find("/agent:A/vlan:7"); !errors.Is(err, cfgerr.ErrNotFound) {
		t.Errorf("Find() after delete error = %v, want not-found", err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:7"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("agent still holds the instance: %v", err)
	}
	if _, err := db.Get(ctx, h, false); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("stale handle resolved: %v", err)
	}

	h2 := mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))
	if h2 == h || !h2.IsValid() {
		t.Errorf("re-added handle = %s, old %s", h2, h)
	}
}

// TestAddErrors tests the validation order of Add
func TestAddErrors(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	if _, err := db.Register(ctx, cfgtype.Object{OID: "/agent/state", Type: cfgtype.TypeInt, Access: cfgtype.ReadOnly}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Register(ctx, cfgtype.Object{OID: "/agent/vlan/prio", Type: cfgtype.TypeInt, Access: cfgtype.ReadWrite, Default: "3"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		oid  string
		val  cfgtype.Value
		kind cfgerr.Kind
	}{
		{"no parent", "/agent:B/vlan:1", cfgtype.Int(1), cfgerr.NotFound},
		{"no object", "/agent:A/bridge:1", cfgtype.Int(1), cfgerr.NotFound},
		{"read-only", "/agent:A/state:", cfgtype.Int(1), cfgerr.PermissionDenied},
		{"wrong type", "/agent:A/vlan:1", cfgtype.Str("x"), cfgerr.WrongType},
		{"object OID", "/agent/vlan", cfgtype.Int(1), cfgerr.InvalidArgument},
		{"root", "/:", cfgtype.None(), cfgerr.InvalidArgument},
		{"malformed", "agent:A", cfgtype.Int(1), cfgerr.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Add(ctx, tt.oid, tt.val, false)
			if cfgerr.KindOf(err) != tt.kind {
				t.Errorf("Add() error = %v, want %s", err, tt.kind)
			}
		})
	}

	h := mustAdd(t, db, "/agent:A/vlan:5", cfgtype.Unspecified())
	inst, err := db.Get(ctx, h, false)
	if err != nil || inst.Value.AsInt() != 0 {
		t.Errorf("unspecified value = %#v, %v", inst.Value, err)
	}

	prio := mustFind(t, db, "/agent:A/vlan:5/prio:")
	inst, err = db.Get(ctx, prio, false)
	if err != nil || inst.Value.AsInt() != 3 {
		t.Errorf("auto-created child = %#v, %v", inst.Value, err)
	}
}

// TestSetRules tests access and type checks of Set and compare-and-set
func TestSetRules(t *testing.T) {
	db, a := newTestDB(t)
	ctx := context.Background()
	h := mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(0))

	if err := db.Set(ctx, h, cfgtype.Str("1"), false, nil); !cfgerr.IsKind(err, cfgerr.WrongType) {
		t.Errorf("Set() wrong type error = %v", err)
	}
	if err := db.Set(ctx, mustFind(t, db, "/agent:A"), cfgtype.None(), false, nil); !cfgerr.IsKind(err, cfgerr.PermissionDenied) {
		t.Errorf("Set() on read-only error = %v", err)
	}

	zero := cfgtype.Int(0)
	if err := db.Set(ctx, h, cfgtype.Int(1), false, &zero); err != nil {
		t.Fatalf("compare-and-set error = %v", err)
	}
	if err := db.Set(ctx, h, cfgtype.Int(1), false, &zero); !errors.Is(err, cfgerr.ErrBusy) {
		t.Errorf("second compare-and-set error = %v, want busy", err)
	}
	if v, _ := a.Get(ctx, "/agent:A/vlan:7"); v.AsInt() != 1 {
		t.Errorf("agent value = %d, want 1", v.AsInt())
	}
}

// TestSetLocalCommitRestore tests staged changes, commit and restore
func TestSetLocalCommitRestore(t *testing.T) {
	db, a := newTestDB(t)
	ctx := context.Background()
	h := mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))

	name, err := db.CreateBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range []int{5, 6} {
		if err := db.Set(ctx, h, cfgtype.Int(v), true, nil); err != nil {
			t.Fatal(err)
		}
	}
	if v, _ := a.Get(ctx, "/agent:A/vlan:7"); v.AsInt() != 1 {
		t.Errorf("staged value leaked to the agent: %d", v.AsInt())
	}
	if err := db.Commit(ctx, "/agent:A"); err != nil {
		t.Fatal(err)
	}
	if v, _ := a.Get(ctx, "/agent:A/vlan:7"); v.AsInt() != 6 {
		t.Errorf("agent value after commit = %d, want 6", v.AsInt())
	}

	if err := db.VerifyBackup(ctx, name); !errors.Is(err, cfgerr.ErrBackupMismatch) {
		t.Errorf("VerifyBackup() before restore error = %v", err)
	}
	if err := db.RestoreBackup(ctx, name); err != nil {
		t.Fatal(err)
	}
	if err := db.VerifyBackup(ctx, name); err != nil {
		t.Errorf("VerifyBackup() after restore error = %v", err)
	}
	if v, _ := a.Get(ctx, "/agent:A/vlan:7"); v.AsInt() != 1 {
		t.Errorf("agent value after restore = %d, want 1", v.AsInt())
	}
	if got := mustFind(t, db, "/agent:A/vlan:7"); got != h {
		t.Errorf("handle changed across restore: %s != %s", got, h)
	}
	if err := db.ReleaseBackup(ctx, name); err != nil {
		t.Fatal(err)
	}
	if err := db.VerifyBackup(ctx, name); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("VerifyBackup() after release error = %v", err)
	}
}

// TestAddLocalDeleteLocal tests staged structural changes
func TestAddLocalDeleteLocal(t *testing.T) {
	db, a := newTestDB(t)
	ctx := context.Background()

	h, err := db.Add(ctx, "/agent:A/vlan:9", cfgtype.Int(9), true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:9"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("local add reached the agent")
	}
	if err := db.Commit(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if v, err := a.Get(ctx, "/agent:A/vlan:9"); err != nil || v.AsInt() != 9 {
		t.Errorf("agent value = %v, %v", v, err)
	}

	if err := db.Delete(ctx, h, false, true); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Find("/agent:A/vlan:9"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("locally deleted instance still visible: %v", err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:9"); err != nil {
		t.Errorf("local delete reached the agent: %v", err)
	}
	if err := db.Commit(ctx, "/agent:A/vlan:9"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:9"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("committed delete did not reach the agent: %v", err)
	}
}

// newTreeDB builds the tree /a:/b:x /a:/b:y /a:/c:z outside any agent
func newTreeDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db := New(WithBackupStore(NewFileBackupStore(t.TempDir())))
	for _, s := range []string{"/a", "/a/b", "/a/c"} {
		if _, err := db.Register(ctx, cfgtype.Object{OID: s, Type: cfgtype.TypeNone, Access: cfgtype.ReadCreate}); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range []string{"/a:", "/a:/b:x", "/a:/b:y", "/a:/c:z"} {
		mustAdd(t, db, s, cfgtype.None())
	}
	return db
}

// TestFindPattern tests wildcard lookup
func TestFindPattern(t *testing.T) {
	db := newTreeDB(t)

	tests := []struct {
		pattern string
		want    int
	}{
		{"/a:/b:*", 2},
		{"/a:/*:*", 3},
		{"/a:/c:*", 1},
		{"/a:/d:*", 0},
		{"/a:/b:x", 1},
		{"/*:*", 1},
		{"/a/*", 2},
		{AllInstances, 5},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := db.FindPattern(tt.pattern)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("FindPattern() = %d handles, want %d", len(got), tt.want)
			}
		})
	}
}

// TestNavigation tests son/brother/father traversal
func TestNavigation(t *testing.T) {
	db := newTreeDB(t)
	a := mustFind(t, db, "/a:")
	x := mustFind(t, db, "/a:/b:x")
	y := mustFind(t, db, "/a:/b:y")
	z := mustFind(t, db, "/a:/c:z")

	if son, _ := db.Son(a); son != x {
		t.Errorf("Son(/a:) = %s, want %s", son, x)
	}
	if f, _ := db.Father(x); f != a {
		t.Errorf("Father(son) = %s, want %s", f, a)
	}
	if b, _ := db.Brother(x); b != y {
		t.Errorf("Brother(x) = %s, want %s", b, y)
	}
	if b, _ := db.Brother(y); b != z {
		t.Errorf("Brother(y) = %s, want %s", b, z)
	}
	if b, _ := db.Brother(z); b != cfgtype.InvalidHandle {
		t.Errorf("Brother(last) = %s", b)
	}
	if s, _ := db.Son(z); s != cfgtype.InvalidHandle {
		t.Errorf("Son(leaf) = %s", s)
	}
	if f, _ := db.Father(cfgtype.InstanceHandle(0, 1)); f != cfgtype.InvalidHandle {
		t.Errorf("Father(root) = %s", f)
	}

	obj := mustFind(t, db, "/a")
	if son, _ := db.Son(obj); son != mustFind(t, db, "/a/b") {
		t.Errorf("Son(/a) = %s", son)
	}
}

// TestDeleteChildren tests non-recursive delete refusal
func TestDeleteChildren(t *testing.T) {
	db := newTreeDB(t)
	ctx := context.Background()
	a := mustFind(t, db, "/a:")

	if err := db.Delete(ctx, a, false, false); !errors.Is(err, cfgerr.ErrBusy) {
		t.Errorf("Delete() error = %v, want busy", err)
	}
	if err := db.Delete(ctx, cfgtype.InstanceHandle(0, 1), true, false); !cfgerr.IsKind(err, cfgerr.InvalidArgument) {
		t.Errorf("Delete(root) error = %v", err)
	}
	if err := db.Delete(ctx, a, true, false); err != nil {
		t.Fatal(err)
	}
	got, _ := db.FindPattern("/a:/*:*")
	if len(got) != 0 {
		t.Errorf("%d descendants survived", len(got))
	}
}

// TestSyncFromAgent tests pulling agent state into the tree
func TestSyncFromAgent(t *testing.T) {
	ctx := context.Background()
	db := New(WithBackupStore(NewFileBackupStore(t.TempDir())))
	defer db.Close() //nolint:errcheck

	schema, err := DefaultSchema()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Apply(ctx, schema); err != nil {
		t.Fatal(err)
	}

	a := NewMemAgent("A")
	for _, e := range []Entry{
		{"/agent:A/interface:eth0", cfgtype.None()},
		{"/agent:A/interface:eth0/mtu:", cfgtype.Int(1500)},
		{"/agent:A/interface:eth0/status:", cfgtype.Int(1)},
		{"/agent:A/unknown:x", cfgtype.Int(1)},
	} {
		if err := a.Set(ctx, e.OID, e.Value); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.AttachAgent(ctx, a); err != nil {
		t.Fatal(err)
	}

	mtu := mustFind(t, db, "/agent:A/interface:eth0/mtu:")
	if _, err := db.Find("/agent:A/unknown:x"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("instance of unknown object was synchronized")
	}

	if err := a.Set(ctx, "/agent:A/interface:eth0/mtu:", cfgtype.Int(9000)); err != nil {
		t.Fatal(err)
	}
	if inst, _ := db.Get(ctx, mtu, false); inst.Value.AsInt() != 1500 {
		t.Errorf("value changed without sync: %d", inst.Value.AsInt())
	}
	if inst, _ := db.Get(ctx, mtu, true); inst.Value.AsInt() != 9000 {
		t.Errorf("synchronized value = %d, want 9000", inst.Value.AsInt())
	}

	if err := a.Set(ctx, "/agent:A/interface:eth1", cfgtype.None()); err != nil {
		t.Fatal(err)
	}
	if err := a.Delete(ctx, "/agent:A/interface:eth0"); err != nil {
		t.Fatal(err)
	}
	if err := db.Sync(ctx, "", true); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Find("/agent:A/interface:eth0"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("vanished interface still present: %v", err)
	}
	mustFind(t, db, "/agent:A/interface:eth1")
	if got := db.Agents(); len(got) != 1 || got[0] != "A" {
		t.Errorf("Agents() = %v", got)
	}
}

// TestResourceReservation tests that a resource is reserved only once
func TestResourceReservation(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	res := cfgtype.Str("/agent:A/hardware:/node:0/cpu:0/core:0/thread:0")

	mustAdd(t, db, "/agent:A/rsrc:cpu0", res)
	if _, err := db.Add(ctx, "/agent:A/rsrc:cpu0_again", res, false); !errors.Is(err, cfgerr.ErrPermissionDenied) {
		t.Errorf("duplicate reservation error = %v, want permission-denied", err)
	}
	if _, err := db.Find("/agent:A/rsrc:cpu0_again"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("failed reservation left an instance")
	}
}

// TestAddRollback tests that a failed commit removes a half-built instance
func TestAddRollback(t *testing.T) {
	ctx := context.Background()
	db, a := newTestDB(t)
	schema, err := DefaultSchema()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Apply(ctx, schema); err != nil {
		t.Fatal(err)
	}

	a.SetFault(func(op, s string) error {
		if op == "set" && strings.HasSuffix(s, "/mtu:") {
			return cfgerr.New(cfgerr.ModuleAgent, cfgerr.Internal, "injected")
		}
		return nil
	})
	gw, err := cfgtype.ParseValue(cfgtype.TypeAddress, "10.1.1.1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Add(ctx, "/agent:A/route:10.0.0.0|24", gw, false); err == nil {
		t.Fatal("Add() succeeded despite agent failure")
	}
	if _, err := db.Find("/agent:A/route:10.0.0.0|24"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("half-built route left in the tree")
	}
	ops := a.Ops()
	if len(ops) == 0 || !strings.HasPrefix(ops[0], "add /agent:A/route:") || ops[len(ops)-1] != "delete /agent:A/route:10.0.0.0|24" {
		t.Errorf("agent journal = %v", ops)
	}
}

// TestBoltBackup tests backups kept in bbolt
func TestBoltBackup(t *testing.T) {
	ctx := context.Background()
	store, err := OpenBoltBackupStore(filepath.Join(t.TempDir(), "backups.db"))
	if err != nil {
		t.Fatal(err)
	}
	db, a := newTestDB(t, WithBackupStore(store))

	mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))
	h8 := mustAdd(t, db, "/agent:A/vlan:8", cfgtype.Int(2))

	name, err := db.CreateBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(name, BoltPrefix) {
		t.Errorf("backup name = %q", name)
	}

	if err := db.Set(ctx, h8, cfgtype.Int(20), false, nil); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, db, "/agent:A/vlan:9", cfgtype.Int(3))
	if err := db.Delete(ctx, mustFind(t, db, "/agent:A/vlan:7"), false, false); err != nil {
		t.Fatal(err)
	}

	if err := db.RestoreBackup(ctx, name); err != nil {
		t.Fatal(err)
	}
	if err := db.VerifyBackup(ctx, name); err != nil {
		t.Errorf("VerifyBackup() error = %v", err)
	}
	if v, err := a.Get(ctx, "/agent:A/vlan:7"); err != nil || v.AsInt() != 1 {
		t.Errorf("vlan:7 on agent = %v, %v", v, err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:9"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("vlan:9 survived on the agent")
	}
	if got := mustFind(t, db, "/agent:A/vlan:8"); got != h8 {
		t.Errorf("vlan:8 handle changed")
	}
}

// TestConfDelay tests settle delays requested through /conf_delay
func TestConfDelay(t *testing.T) {
	now := time.Unix(1000, 0)
	db, _ := newTestDB(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	mustAdd(t, db, "/conf_delay:vlan", cfgtype.Str("/agent/vlan"))
	mustAdd(t, db, "/conf_delay:vlan/ta:A", cfgtype.Int(500))
	if d := db.Delay(); d != 0 {
		t.Errorf("Delay() before any change = %v", d)
	}

	mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))
	if d := db.Delay(); d != 500*time.Millisecond {
		t.Errorf("Delay() = %v, want 500ms", d)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := db.WaitChanges(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitChanges() error = %v", err)
	}

	now = now.Add(time.Second)
	if err := db.WaitChanges(ctx); err != nil {
		t.Errorf("WaitChanges() after the delay error = %v", err)
	}
}

// TestUnregister tests object removal rules
func TestUnregister(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	h := mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))

	if err := db.Unregister(ctx, "/agent/vlan"); !errors.Is(err, cfgerr.ErrBusy) {
		t.Errorf("Unregister() with instances error = %v", err)
	}
	if err := db.Unregister(ctx, AgentOID); !errors.Is(err, cfgerr.ErrPermissionDenied) {
		t.Errorf("Unregister(reserved) error = %v", err)
	}
	if err := db.Delete(ctx, h, false, false); err != nil {
		t.Fatal(err)
	}
	if err := db.Unregister(ctx, "/agent/vlan"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Find("/agent/vlan"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("object still registered")
	}
	if _, err := db.Register(ctx, cfgtype.Object{OID: "/nope/x", Type: cfgtype.TypeInt}); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("Register() without parent error = %v", err)
	}
}

// TestTree tests the textual dump
func TestTree(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))
	if _, err := db.Add(ctx, "/agent:A/vlan:8", cfgtype.Int(2), true); err != nil {
		t.Fatal(err)
	}

	out, err := db.Tree("/agent:A")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"/agent:A\n", "  /agent:A/vlan:7 = 1\n", "  /agent:A/vlan:8 = 2 (pending add)\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("Tree() missing %q in:\n%s", want, out)
		}
	}

	schema, err := db.Tree("/agent")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(schema, "  /agent/vlan int read_create") {
		t.Errorf("schema dump:\n%s", schema)
	}
}

// TestReAddAfterLocalDelete tests that a staged delete frees the OID
// for a new instance and that the agent sees the delete before the add
func TestReAddAfterLocalDelete(t *testing.T) {
	tests := []struct {
		name  string
		local bool
	}{
		{"staged re-add", true},
		{"immediate re-add", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, a := newTestDB(t)
			ctx := context.Background()
			old := mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))

			if err := db.Delete(ctx, old, false, true); err != nil {
				t.Fatal(err)
			}
			if _, err := db.Find("/agent:A/vlan:7"); !cfgerr.IsKind(err, cfgerr.NotFound) {
				t.Fatalf("Find() after staged delete error = %v", err)
			}
			h, err := db.Add(ctx, "/agent:A/vlan:7", cfgtype.Int(2), tt.local)
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if h == old {
				t.Errorf("re-added instance reuses handle %s", h)
			}
			if got := mustFind(t, db, "/agent:A/vlan:7"); got != h {
				t.Errorf("Find() = %s, want %s", got, h)
			}
			if _, err := db.Get(ctx, old, false); !cfgerr.IsKind(err, cfgerr.NotFound) {
				t.Errorf("Get(old handle) error = %v", err)
			}
			if tt.local {
				if err := db.Commit(ctx, "/agent:A/vlan:7"); err != nil {
					t.Fatalf("Commit() error = %v", err)
				}
			}

			want := []string{"add /agent:A/vlan:7 1", "delete /agent:A/vlan:7", "add /agent:A/vlan:7 2"}
			if diff := cmp.Diff(want, a.Ops()); diff != "" {
				t.Errorf("agent journal mismatch (-want +got):\n%s", diff)
			}
			inst, err := db.Get(ctx, h, false)
			if err != nil || inst.Value.AsInt() != 2 {
				t.Errorf("Get() = %v, %v", inst, err)
			}
		})
	}
}

// TestDropStagedReAdd tests that deleting a staged re-add brings back
// the staged delete it replaced
func TestDropStagedReAdd(t *testing.T) {
	db, a := newTestDB(t)
	ctx := context.Background()
	old := mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))
	if err := db.Delete(ctx, old, false, true); err != nil {
		t.Fatal(err)
	}
	h, err := db.Add(ctx, "/agent:A/vlan:7", cfgtype.Int(2), true)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(ctx, h, false, true); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Find("/agent:A/vlan:7"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("Find() error = %v, want not-found", err)
	}
	if err := db.Commit(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:7"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("staged delete was lost: agent Get() error = %v", err)
	}
}

// TestRestoreDiscardsStagedReAdd tests restoring a backup over a staged
// delete and re-add of the same instance
func TestRestoreDiscardsStagedReAdd(t *testing.T) {
	db, a := newTestDB(t)
	ctx := context.Background()
	old := mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))
	name, err := db.CreateBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Delete(ctx, old, false, true); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Add(ctx, "/agent:A/vlan:7", cfgtype.Int(2), true); err != nil {
		t.Fatal(err)
	}
	if err := db.RestoreBackup(ctx, name); err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}
	if err := db.VerifyBackup(ctx, name); err != nil {
		t.Errorf("VerifyBackup() error = %v", err)
	}
	if got := mustFind(t, db, "/agent:A/vlan:7"); got != old {
		t.Errorf("Find() = %s, want the original handle %s", got, old)
	}
	if v, err := a.Get(ctx, "/agent:A/vlan:7"); err != nil || v.AsInt() != 1 {
		t.Errorf("agent value = %v, %v", v, err)
	}
}

// TestCommitPrefix tests how Commit resolves its prefix
func TestCommitPrefix(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	if _, err := db.Add(ctx, "/agent:A/vlan:7", cfgtype.Int(1), true); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		prefix string
		kind   cfgerr.Kind
	}{
		{"/agent:A/", cfgerr.InvalidArgument},
		{"/agent:*", cfgerr.InvalidArgument},
		{"/agent:A/vlan:*", cfgerr.InvalidArgument},
		{"/agent", cfgerr.InvalidArgument},
		{"agent:A", cfgerr.InvalidArgument},
		{"/agent:B", cfgerr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			if err := db.Commit(ctx, tt.prefix); !cfgerr.IsKind(err, tt.kind) {
				t.Errorf("Commit(%q) error = %v, want %s", tt.prefix, err, tt.kind)
			}
		})
	}

	for _, prefix := range []string{"/:", "/agent:A"} {
		if err := db.Commit(ctx, prefix); err != nil {
			t.Errorf("Commit(%q) error = %v", prefix, err)
		}
	}
}

// TestWalkVisitsSiblingsOfSkipped tests lookups over a tree where
// matched instances have descendants of their own
func TestWalkVisitsSiblingsOfSkipped(t *testing.T) {
	db := newTreeDB(t)
	ctx := context.Background()
	if _, err := db.Register(ctx, cfgtype.Object{OID: "/a/b/d", Type: cfgtype.TypeInt, Access: cfgtype.ReadCreate}); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, db, "/a:/b:x/d:1", cfgtype.Int(1))
	mustAdd(t, db, "/a:/b:y/d:1", cfgtype.Int(2))

	for pattern, want := range map[string]int{
		"/a:/*:*":     3,
		"/a:/b:*/d:*": 2,
		"/*:*":        1,
		AllInstances:  7,
	} {
		got, err := db.FindPattern(pattern)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != want {
			t.Errorf("FindPattern(%q) = %d handles, want %d", pattern, len(got), want)
		}
	}
	if n, err := db.Touch(ctx, "/a:/b:*/d:1"); err != nil || n != 2 {
		t.Errorf("Touch() = %d, %v, want 2", n, err)
	}

	second := NewMemAgent("B")
	if err := db.AttachAgent(ctx, second); err != nil {
		t.Fatal(err)
	}
	if err := db.AttachAgent(ctx, NewMemAgent("C")); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"B", "C"}, db.Agents()); diff != "" {
		t.Errorf("Agents() mismatch (-want +got):\n%s", diff)
	}
}

// newIfaceDB returns a DB with interfaces registered, agents A and B
// attached and /agent:A/interface:eth0 configured
func newIfaceDB(t *testing.T) (*DB, *MemAgent, *MemAgent) {
	t.Helper()
	ctx := context.Background()
	db, a := newTestDB(t)
	for _, obj := range []cfgtype.Object{
		{OID: "/agent/interface", Type: cfgtype.TypeNone, Access: cfgtype.ReadCreate},
		{OID: "/agent/interface/mtu", Type: cfgtype.TypeInt, Access: cfgtype.ReadWrite, Default: "1500"},
		{OID: "/agent/interface/addr", Type: cfgtype.TypeString, Access: cfgtype.ReadCreate},
	} {
		if _, err := db.Register(ctx, obj); err != nil {
			t.Fatal(err)
		}
	}
	b := NewMemAgent("B")
	if err := db.AttachAgent(ctx, b); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, db, "/agent:A/interface:eth0", cfgtype.None())
	if err := db.Set(ctx, mustFind(t, db, "/agent:A/interface:eth0/mtu:"), cfgtype.Int(9000), false, nil); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, db, "/agent:A/interface:eth0/addr:ip1", cfgtype.Str("10.0.0.1"))
	return db, a, b
}

// TestCopySubtree tests copying an instance subtree to a new instance
func TestCopySubtree(t *testing.T) {
	tests := []struct {
		name  string
		dst   string
		agent string
	}{
		{"same agent", "/agent:A/interface:eth1", "A"},
		{"other agent", "/agent:B/interface:eth0", "B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, a, b := newIfaceDB(t)
			ctx := context.Background()
			target := map[string]*MemAgent{"A": a, "B": b}[tt.agent]

			h, err := db.CopySubtree(ctx, tt.dst, "/agent:A/interface:eth0", false)
			if err != nil {
				t.Fatalf("CopySubtree() error = %v", err)
			}
			if got := mustFind(t, db, tt.dst); got != h {
				t.Errorf("Find() = %s, want %s", got, h)
			}
			if v, err := target.Get(ctx, tt.dst+"/mtu:"); err != nil || v.AsInt() != 9000 {
				t.Errorf("agent mtu = %v, %v, want 9000", v, err)
			}
			if v, err := target.Get(ctx, tt.dst+"/addr:ip1"); err != nil || v.AsString() != "10.0.0.1" {
				t.Errorf("agent addr = %v, %v", v, err)
			}
		})
	}
}

// TestCopySubtreeMerge tests copying onto an existing instance
func TestCopySubtreeMerge(t *testing.T) {
	db, a, _ := newIfaceDB(t)
	ctx := context.Background()
	mustAdd(t, db, "/agent:A/interface:eth1", cfgtype.None())
	mustAdd(t, db, "/agent:A/interface:eth1/addr:ip2", cfgtype.Str("10.0.0.2"))

	if _, err := db.CopySubtree(ctx, "/agent:A/interface:eth1", "/agent:A/interface:eth0", true); err != nil {
		t.Fatalf("CopySubtree() error = %v", err)
	}
	if v, _ := a.Get(ctx, "/agent:A/interface:eth1/mtu:"); v.AsInt() != 1500 {
		t.Errorf("local copy reached the agent: mtu %d", v.AsInt())
	}
	if err := db.Commit(ctx, "/agent:A/interface:eth1"); err != nil {
		t.Fatal(err)
	}

	got, err := db.Enumerate("/agent/interface/addr")
	if err != nil {
		t.Fatal(err)
	}
	var oids []string
	for _, i := range got {
		oids = append(oids, i.OID)
	}
	want := []string{"/agent:A/interface:eth0/addr:ip1", "/agent:A/interface:eth1/addr:ip2", "/agent:A/interface:eth1/addr:ip1"}
	if diff := cmp.Diff(want, oids); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
	if v, _ := a.Get(ctx, "/agent:A/interface:eth1/mtu:"); v.AsInt() != 9000 {
		t.Errorf("agent mtu = %d, want 9000", v.AsInt())
	}
}

// TestCopySubtreeErrors tests rejected copies
func TestCopySubtreeErrors(t *testing.T) {
	db, _, _ := newIfaceDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		dst  string
		src  string
		kind cfgerr.Kind
	}{
		{"missing source", "/agent:A/interface:eth1", "/agent:A/interface:eth9", cfgerr.NotFound},
		{"other object", "/agent:A/vlan:1", "/agent:A/interface:eth0", cfgerr.InvalidArgument},
		{"object destination", "/agent/interface", "/agent:A/interface:eth0", cfgerr.InvalidArgument},
		{"onto itself", "/agent:A/interface:eth0", "/agent:A/interface:eth0", cfgerr.InvalidArgument},
		{"agent root", "/agent:B", "/agent:A", cfgerr.InvalidArgument},
		{"missing parent", "/agent:Z/interface:eth0", "/agent:A/interface:eth0", cfgerr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.CopySubtree(ctx, tt.dst, tt.src, false); !cfgerr.IsKind(err, tt.kind) {
				t.Errorf("CopySubtree() error = %v, want %s", err, tt.kind)
			}
		})
	}
	if _, err := db.Find("/agent:A/interface:eth1"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("failed copy left %v", err)
	}
}

// TestTouch tests that touched instances extend the settle delay
func TestTouch(t *testing.T) {
	now := time.Unix(1000, 0)
	db, _ := newTestDB(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	mustAdd(t, db, "/agent:A/vlan:7", cfgtype.Int(1))
	mustAdd(t, db, "/conf_delay:vlan", cfgtype.Str("/agent/vlan"))
	mustAdd(t, db, "/conf_delay:vlan/ta:A", cfgtype.Int(200))
	if d := db.Delay(); d != 0 {
		t.Fatalf("Delay() before touch = %v", d)
	}

	n, err := db.Touch(ctx, "/agent:*/vlan:*")
	if err != nil || n != 1 {
		t.Fatalf("Touch() = %d, %v", n, err)
	}
	if d := db.Delay(); d != 200*time.Millisecond {
		t.Errorf("Delay() = %v, want 200ms", d)
	}
	if n, err := db.Touch(ctx, "/agent:A/vlan:8"); err != nil || n != 0 {
		t.Errorf("Touch(missing) = %d, %v", n, err)
	}
	if _, err := db.Touch(ctx, "/agent/vlan"); !cfgerr.IsKind(err, cfgerr.InvalidArgument) {
		t.Errorf("Touch(object) error = %v", err)
	}
}
