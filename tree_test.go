// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confapi

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/confdb"
	"github.com/netascode/go-confapi/server"
)

// newLocalClient returns a client bound in-process to a tree with
// /agent/vlan (int, read-create) and /agent/vlan/prio (int, read-write,
// default 3) registered and agent A attached
func newLocalClient(t *testing.T, opts ...func(*Client)) (*Client, *confdb.MemAgent) {
	t.Helper()
	ctx := context.Background()

	db := confdb.New(confdb.WithBackupStore(confdb.NewFileBackupStore(t.TempDir())))
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	for _, obj := range []cfgtype.Object{
		{OID: "/agent/vlan", Type: cfgtype.TypeInt, Access: cfgtype.ReadCreate},
		{OID: "/agent/vlan/prio", Type: cfgtype.TypeInt, Access: cfgtype.ReadWrite, Default: "3"},
	} {
		if _, err := db.Register(ctx, obj); err != nil {
			t.Fatalf("Register(%s) error = %v", obj.OID, err)
		}
	}
	a := confdb.NewMemAgent("A")
	if err := db.AttachAgent(ctx, a); err != nil {
		t.Fatalf("AttachAgent() error = %v", err)
	}

	opts = append([]func(*Client){WithTransport(server.Local(server.New(db)))}, opts...)
	c, err := NewClient("local", opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	return c, a
}

func mustAddf(t *testing.T, c *Client, v cfgtype.Value, format string, args ...any) cfgtype.Handle {
	t.Helper()
	h, err := c.Addf(context.Background(), v, format, args...)
	if err != nil {
		t.Fatalf("Addf(%s) error = %v", format, err)
	}
	return h
}

// TestAddGetSetDelete tests the life cycle of an instance through the client
func TestAddGetSetDelete(t *testing.T) {
	c, a := newLocalClient(t)
	ctx := context.Background()

	h := mustAddf(t, c, cfgtype.Int(1), "/agent:%s/vlan:%d", "A", 7)
	if !h.IsInstance() {
		t.Fatalf("Addf() = %s", h)
	}

	if v, err := c.Get(ctx, h); err != nil || v.AsInt() != 1 {
		t.Errorf("Get() = %v, %v", v, err)
	}
	if prio, err := c.GetIntf(ctx, "/agent:%s/vlan:%d/prio:", "A", 7); err != nil || prio != 3 {
		t.Errorf("default prio = %d, %v", prio, err)
	}
	if s, err := c.OID(ctx, h); err != nil || s != "/agent:A/vlan:7" {
		t.Errorf("OID() = %q, %v", s, err)
	}

	if err := c.Set(ctx, h, cfgtype.Int(2)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, err := a.Get(ctx, "/agent:A/vlan:7"); err != nil || v.AsInt() != 2 {
		t.Errorf("agent value = %v, %v", v, err)
	}
	if n, err := c.GetIntByOID(ctx, "/agent:A/vlan:7"); err != nil || n != 2 {
		t.Errorf("GetIntByOID() = %d, %v", n, err)
	}

	if _, err := c.GetString(ctx, h); !errors.Is(err, cfgerr.ErrWrongType) {
		t.Errorf("GetString() error = %v, want wrong-type", err)
	}
	if err := c.Set(ctx, h, cfgtype.Str("x")); !errors.Is(err, cfgerr.ErrWrongType) {
		t.Errorf("Set(string) error = %v, want wrong-type", err)
	}
	if _, err := c.Add(ctx, "/agent:A/vlan:7", cfgtype.Int(1)); !errors.Is(err, cfgerr.ErrAlreadyExists) {
		t.Errorf("second Add() error = %v, want already-exists", err)
	}
	if _, err := c.Add(ctx, "/agent:A/bridge:1", cfgtype.Int(1)); !errors.Is(err, cfgerr.ErrNotFound) {
		t.Errorf("Add(unknown object) error = %v, want not-found", err)
	}

	obj, err := c.FindObjectByInstance(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	want, err := c.Find(ctx, "/agent/vlan")
	if err != nil || obj != want {
		t.Errorf("FindObjectByInstance() = %s, want %s (%v)", obj, want, err)
	}
	desc, err := c.GetObject(ctx, obj)
	if err != nil {
		t.Fatal(err)
	}
	if desc.OID != "/agent/vlan" || desc.Type != cfgtype.TypeInt || desc.Access != cfgtype.ReadCreate {
		t.Errorf("GetObject() = %+v", desc)
	}

	if err := c.Delete(ctx, h, false); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := c.Find(ctx, "/agent:A/vlan:7"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("Find() after delete error = %v", err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:7"); err == nil {
		t.Error("agent still holds the deleted instance")
	}
}

// TestFindPattern tests wildcard lookups
func TestFindPattern(t *testing.T) {
	c, _ := newLocalClient(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		mustAddf(t, c, cfgtype.Int(i), "/agent:A/vlan:%d", i)
	}

	tests := []struct {
		pattern string
		want    int
	}{
		{"/agent:A/vlan:*", 3},
		{"/agent:*/vlan:2", 1},
		{"/agent:A/vlan:*/prio:", 3},
		{"/agent:B/vlan:*", 0},
		{"/agent/vlan/*", 1},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := c.FindPattern(ctx, tt.pattern)
			if err != nil {
				t.Fatalf("FindPattern() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("FindPattern() = %d handles, want %d", len(got), tt.want)
			}
		})
	}

	hs, err := c.FindPatternf(ctx, "/agent:%s/vlan:*", "A")
	if err != nil || len(hs) != 3 {
		t.Fatalf("FindPatternf() = %v, %v", hs, err)
	}
	var names []string
	for _, h := range hs {
		s, err := c.OID(ctx, h)
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, s)
	}
	if diff := cmp.Diff([]string{"/agent:A/vlan:1", "/agent:A/vlan:2", "/agent:A/vlan:3"}, names); diff != "" {
		t.Errorf("pattern order mismatch (-want +got):\n%s", diff)
	}
}

// TestNavigation tests son, brother and father
func TestNavigation(t *testing.T) {
	c, _ := newLocalClient(t)
	ctx := context.Background()

	v1 := mustAddf(t, c, cfgtype.Int(1), "/agent:A/vlan:1")
	v2 := mustAddf(t, c, cfgtype.Int(2), "/agent:A/vlan:2")
	agent, err := c.Find(ctx, "/agent:A")
	if err != nil {
		t.Fatal(err)
	}

	if h, err := c.Son(ctx, agent); err != nil || h != v1 {
		t.Errorf("Son(agent) = %s, %v; want %s", h, err, v1)
	}
	if h, err := c.Brother(ctx, v1); err != nil || h != v2 {
		t.Errorf("Brother(v1) = %s, %v; want %s", h, err, v2)
	}
	if h, err := c.Brother(ctx, v2); err != nil || h.IsValid() {
		t.Errorf("Brother(v2) = %s, %v; want invalid", h, err)
	}
	if h, err := c.Father(ctx, v2); err != nil || h != agent {
		t.Errorf("Father(v2) = %s, %v; want %s", h, err, agent)
	}

	prio, err := c.Son(ctx, v1)
	if err != nil || !prio.IsValid() {
		t.Fatalf("Son(v1) = %s, %v", prio, err)
	}
	if h, err := c.Son(ctx, prio); err != nil || h.IsValid() {
		t.Errorf("Son(leaf) = %s, %v; want invalid", h, err)
	}
}

// TestEnumerate tests the per-instance callback and early stop
func TestEnumerate(t *testing.T) {
	c, _ := newLocalClient(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		mustAddf(t, c, cfgtype.Int(i*10), "/agent:A/vlan:%d", i)
	}
	obj, err := c.Find(ctx, "/agent/vlan")
	if err != nil {
		t.Fatal(err)
	}

	var sum int
	if err := c.Enumerate(ctx, obj, func(inst cfgtype.Instance) error {
		sum += inst.Value.AsInt()
		return nil
	}); err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if sum != 60 {
		t.Errorf("sum = %d, want 60", sum)
	}

	errStop := errors.New("stop")
	calls := 0
	err = c.EnumerateByOID(ctx, "/agent/vlan", func(cfgtype.Instance) error {
		calls++
		return errStop
	})
	if !errors.Is(err, errStop) || calls != 1 {
		t.Errorf("EnumerateByOID() = %v after %d calls", err, calls)
	}
}

// TestLocalCommit tests that staged changes reach the agent on commit only
func TestLocalCommit(t *testing.T) {
	c, a := newLocalClient(t)
	ctx := context.Background()

	h, err := c.AddLocalf(ctx, cfgtype.Int(9), "/agent:%s/vlan:%d", "A", 9)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:9"); err == nil {
		t.Fatal("staged add reached the agent")
	}
	if err := c.Commitf(ctx, "/agent:%s", "A"); err != nil {
		t.Fatalf("Commitf() error = %v", err)
	}
	if v, err := a.Get(ctx, "/agent:A/vlan:9"); err != nil || v.AsInt() != 9 {
		t.Errorf("agent value after commit = %v, %v", v, err)
	}

	if err := c.SetLocal(ctx, h, cfgtype.Int(10)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetLocalf(ctx, cfgtype.Int(5), "/agent:A/vlan:9/prio:"); err != nil {
		t.Fatal(err)
	}
	if v, _ := a.Get(ctx, "/agent:A/vlan:9"); v.AsInt() != 9 {
		t.Errorf("staged set reached the agent: %v", v)
	}
	if err := c.Commit(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if v, _ := a.Get(ctx, "/agent:A/vlan:9/prio:"); v.AsInt() != 5 {
		t.Errorf("agent prio after commit = %v", v)
	}

	if err := c.DeleteLocal(ctx, h, true); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:9"); err != nil {
		t.Error("staged delete reached the agent")
	}
	if err := c.Commit(ctx, "/agent:A/vlan:9"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:9"); err == nil {
		t.Error("agent still holds the instance after commit")
	}
}

// TestBackupRestore tests backup verification, restore and release
func TestBackupRestore(t *testing.T) {
	c, a := newLocalClient(t)
	ctx := context.Background()

	mustAddf(t, c, cfgtype.Int(1), "/agent:A/vlan:1")
	name, err := c.CreateBackup(ctx)
	if err != nil || name == "" {
		t.Fatalf("CreateBackup() = %q, %v", name, err)
	}
	if err := c.VerifyBackup(ctx, name); err != nil {
		t.Errorf("VerifyBackup() of unchanged tree error = %v", err)
	}

	mustAddf(t, c, cfgtype.Int(5), "/agent:A/vlan:5")
	if err := c.Setf(ctx, cfgtype.Int(7), "/agent:A/vlan:1"); err != nil {
		t.Fatal(err)
	}
	if err := c.VerifyBackup(ctx, name); !errors.Is(err, cfgerr.ErrBackupMismatch) {
		t.Errorf("VerifyBackup() error = %v, want backup-mismatch", err)
	}

	if err := c.RestoreBackup(ctx, name); err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}
	if err := c.VerifyBackup(ctx, name); err != nil {
		t.Errorf("VerifyBackup() after restore error = %v", err)
	}
	if _, err := c.Find(ctx, "/agent:A/vlan:5"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("instance added after the backup survived: %v", err)
	}
	if v, _ := a.Get(ctx, "/agent:A/vlan:1"); v.AsInt() != 1 {
		t.Errorf("agent value after restore = %v", v)
	}

	if err := c.ReleaseBackup(ctx, &name); err != nil || name != "" {
		t.Errorf("ReleaseBackup() = %v, name %q", err, name)
	}
	if err := c.ReleaseBackup(ctx, &name); err != nil {
		t.Errorf("second ReleaseBackup() error = %v", err)
	}
	if err := c.VerifyBackup(ctx, ""); !errors.Is(err, cfgerr.ErrInvalidArgument) {
		t.Errorf("VerifyBackup(\"\") error = %v", err)
	}
}

// TestCompareAndSet tests the ExpectValue modifier
func TestCompareAndSet(t *testing.T) {
	c, _ := newLocalClient(t)
	ctx := context.Background()

	h := mustAddf(t, c, cfgtype.Int(0), "/agent:A/vlan:1")
	if err := c.Set(ctx, h, cfgtype.Int(1), ExpectValue(cfgtype.Int(0))); err != nil {
		t.Fatalf("first compare-and-set error = %v", err)
	}
	if err := c.Set(ctx, h, cfgtype.Int(1), ExpectValue(cfgtype.Int(0))); !errors.Is(err, cfgerr.ErrBusy) {
		t.Errorf("second compare-and-set error = %v, want busy", err)
	}
	if v, _ := c.Get(ctx, h); v.AsInt() != 1 {
		t.Errorf("value = %v", v)
	}
}

// TestSync tests pulling agent state into the tree
func TestSync(t *testing.T) {
	c, a := newLocalClient(t)
	ctx := context.Background()

	h := mustAddf(t, c, cfgtype.Int(1), "/agent:A/vlan:7")
	if err := a.Set(ctx, "/agent:A/vlan:7", cfgtype.Int(5)); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Get(ctx, h); v.AsInt() != 1 {
		t.Errorf("Get() without sync = %v", v)
	}
	if v, err := c.GetSync(ctx, h); err != nil || v.AsInt() != 5 {
		t.Errorf("GetSync() = %v, %v", v, err)
	}

	if err := a.Set(ctx, "/agent:A/vlan:7/prio:", cfgtype.Int(6)); err != nil {
		t.Fatal(err)
	}
	if err := c.SyncTreef(ctx, "/agent:%s", "A"); err != nil {
		t.Fatalf("SyncTreef() error = %v", err)
	}
	if prio, _ := c.GetIntByOID(ctx, "/agent:A/vlan:7/prio:"); prio != 6 {
		t.Errorf("prio after sync = %d", prio)
	}
	if err := c.Sync(ctx, "/agent:A/vlan:8"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("Sync(missing) error = %v", err)
	}
}

// TestRegisterAndTree tests schema changes and the text dump
func TestRegisterAndTree(t *testing.T) {
	c, _ := newLocalClient(t)
	ctx := context.Background()

	obj, err := c.Register(ctx, cfgtype.Object{OID: "/agent/bridge", Type: cfgtype.TypeInt, Access: cfgtype.ReadCreate, Default: "100"})
	if err != nil || !obj.IsObject() {
		t.Fatalf("Register() = %s, %v", obj, err)
	}
	h := mustAddf(t, c, cfgtype.Unspecified(), "/agent:A/bridge:1")
	if v, _ := c.Get(ctx, h); v.AsInt() != 100 {
		t.Errorf("default value = %v", v)
	}

	text, err := c.Tree(ctx, "/agent:A")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "  /agent:A/bridge:1 = 100\n") {
		t.Errorf("Tree():\n%s", text)
	}

	if err := c.Deletef(ctx, false, "/agent:%s/bridge:%d", "A", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.Unregister(ctx, "/agent/bridge"); err != nil {
		t.Errorf("Unregister() error = %v", err)
	}
	if _, err := c.Find(ctx, "/agent/bridge"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("object still registered: %v", err)
	}
	if err := c.WaitChanges(ctx); err != nil {
		t.Errorf("WaitChanges() error = %v", err)
	}
}

// TestFormatErrors tests that bad templates fail before any request
func TestFormatErrors(t *testing.T) {
	c, _ := newLocalClient(t)
	ctx := context.Background()
	long := strings.Repeat("x", 1100)

	if _, err := c.Findf(ctx, "/agent:%s", long); !errors.Is(err, cfgerr.ErrNameTooLong) {
		t.Errorf("Findf() error = %v, want name-too-long", err)
	}
	if _, err := c.Addf(ctx, cfgtype.Int(1), "/agent:A/vlan:%s", long); !errors.Is(err, cfgerr.ErrNameTooLong) {
		t.Errorf("Addf() error = %v, want name-too-long", err)
	}
	if _, err := c.Find(ctx, "agent:A"); !errors.Is(err, cfgerr.ErrInvalidArgument) {
		t.Errorf("Find(relative) error = %v, want invalid-argument", err)
	}
}

// TestCopySubtree tests subtree copies through the client
func TestCopySubtree(t *testing.T) {
	c, a := newLocalClient(t)
	ctx := context.Background()
	mustAddf(t, c, cfgtype.Int(10), "/agent:A/vlan:10")
	if err := c.Setf(ctx, cfgtype.Int(7), "/agent:A/vlan:10/prio:"); err != nil {
		t.Fatal(err)
	}

	h, err := c.CopySubtreef(ctx, "/agent:A/vlan:20", "/agent:%s/vlan:%d", "A", 10)
	if err != nil {
		t.Fatalf("CopySubtreef() error = %v", err)
	}
	if got, err := c.Find(ctx, "/agent:A/vlan:20"); err != nil || got != h {
		t.Errorf("Find() = %s, %v, want %s", got, err, h)
	}
	if v, err := a.Get(ctx, "/agent:A/vlan:20/prio:"); err != nil || v.AsInt() != 7 {
		t.Errorf("agent prio = %v, %v, want 7", v, err)
	}

	if _, err := c.CopySubtreeLocal(ctx, "/agent:A/vlan:30", "/agent:A/vlan:10"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get(ctx, "/agent:A/vlan:30"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("local copy reached the agent: %v", err)
	}
	if err := c.Commit(ctx, "/agent:A/vlan:30"); err != nil {
		t.Fatal(err)
	}
	if v, err := a.Get(ctx, "/agent:A/vlan:30"); err != nil || v.AsInt() != 10 {
		t.Errorf("agent value after commit = %v, %v", v, err)
	}

	if _, err := c.CopySubtree(ctx, "/agent:A/vlan:40", "/agent:A/vlan:99"); !cfgerr.IsKind(err, cfgerr.NotFound) {
		t.Errorf("CopySubtree(missing) error = %v", err)
	}
}

// TestTouchAndPatternIter tests touch notifications and pattern
// iteration
func TestTouchAndPatternIter(t *testing.T) {
	c, _ := newLocalClient(t)
	ctx := context.Background()
	for _, id := range []int{1, 2, 3} {
		mustAddf(t, c, cfgtype.Int(id), "/agent:A/vlan:%d", id)
	}

	var seen []string
	err := c.FindPatternIter(ctx, func(h cfgtype.Handle) error {
		s, err := c.OID(ctx, h)
		seen = append(seen, s)
		return err
	}, "/agent:%s/vlan:*", "A")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"/agent:A/vlan:1", "/agent:A/vlan:2", "/agent:A/vlan:3"}, seen); diff != "" {
		t.Errorf("visited mismatch (-want +got):\n%s", diff)
	}

	stop := errors.New("stop")
	calls := 0
	err = c.FindPatternIter(ctx, func(cfgtype.Handle) error {
		calls++
		return stop
	}, "/agent:A/vlan:*")
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("FindPatternIter() = %v after %d calls", err, calls)
	}

	if err := c.Touchf(ctx, "/agent:%s/vlan:*", "A"); err != nil {
		t.Errorf("Touchf() error = %v", err)
	}
	if err := c.Touch(ctx, "/agent/vlan"); !cfgerr.IsKind(err, cfgerr.InvalidArgument) {
		t.Errorf("Touch(object) error = %v", err)
	}
}
