// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confapi

import (
	"context"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/internal/wire"
	"github.com/netascode/go-confapi/oid"
)

// Find resolves an object or instance OID to its handle. It fails
// with not-found if the OID does not exist.
func (c *Client) Find(ctx context.Context, s string) (cfgtype.Handle, error) {
	inst, err := c.one(ctx, wire.NewOptions(wire.OpFind), s)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	return inst.Handle, nil
}

// Findf is Find with a printf-style OID template
func (c *Client) Findf(ctx context.Context, format string, args ...any) (cfgtype.Handle, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	return c.Find(ctx, s)
}

// FindPattern returns the handles matching a pattern, in tree order.
// "*" matches all objects and "*:*" all instances. No match is not an
// error.
func (c *Client) FindPattern(ctx context.Context, pattern string) ([]cfgtype.Handle, error) {
	o := wire.NewOptions(wire.OpPattern)
	o.Name = pattern
	insts, err := c.instances(ctx, o, nil)
	if err != nil {
		return nil, err
	}
	handles := make([]cfgtype.Handle, len(insts))
	for i, inst := range insts {
		handles[i] = inst.Handle
	}
	return handles, nil
}

// FindPatternf is FindPattern with a printf-style template
func (c *Client) FindPatternf(ctx context.Context, format string, args ...any) ([]cfgtype.Handle, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return nil, err
	}
	return c.FindPattern(ctx, s)
}

// FindPatternIter calls fn for every handle matching the pattern built
// from format and stops at the first error fn returns
func (c *Client) FindPatternIter(ctx context.Context, fn func(cfgtype.Handle) error, format string, args ...any) error {
	handles, err := c.FindPatternf(ctx, format, args...)
	if err != nil {
		return err
	}
	for _, h := range handles {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

// FindObjectByInstance returns the handle of the object of instance h
func (c *Client) FindObjectByInstance(ctx context.Context, h cfgtype.Handle) (cfgtype.Handle, error) {
	obj, err := c.GetObject(ctx, h)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	return obj.Handle, nil
}

// GetObject returns the description of object h, or of the object of
// instance h
func (c *Client) GetObject(ctx context.Context, h cfgtype.Handle) (cfgtype.Object, error) {
	o := wire.NewOptions(wire.OpObject)
	o.Handle = h
	docs, err := c.get(ctx, o, nil)
	if err != nil {
		return cfgtype.Object{}, err
	}
	if len(docs) != 1 {
		return cfgtype.Object{}, cfgerr.New(cfgerr.ModuleAPI, cfgerr.Internal, "object of %s: %d records", h, len(docs))
	}
	obj, err := wire.DecodeObject(docs[0])
	if err != nil {
		return cfgtype.Object{}, cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Internal, err, "object of %s", h)
	}
	return obj, nil
}

// OID returns the OID of object or instance h
func (c *Client) OID(ctx context.Context, h cfgtype.Handle) (string, error) {
	o := wire.NewOptions(wire.OpOID)
	o.Handle = h
	inst, err := c.one(ctx, o, "")
	if err != nil {
		return "", err
	}
	return inst.OID, nil
}

// Get returns the value of instance h
func (c *Client) Get(ctx context.Context, h cfgtype.Handle, mods ...func(*Req)) (cfgtype.Value, error) {
	inst, err := c.GetInstance(ctx, h, false, mods...)
	return inst.Value, err
}

// GetSync synchronizes instance h from its agent, then returns its value
func (c *Client) GetSync(ctx context.Context, h cfgtype.Handle, mods ...func(*Req)) (cfgtype.Value, error) {
	inst, err := c.GetInstance(ctx, h, true, mods...)
	return inst.Value, err
}

// GetInstance returns a snapshot of instance h, synchronized from its
// agent first if sync is set
func (c *Client) GetInstance(ctx context.Context, h cfgtype.Handle, sync bool, mods ...func(*Req)) (cfgtype.Instance, error) {
	o := wire.NewOptions(wire.OpGet)
	o.Handle = h
	o.Sync = sync
	return c.one(ctx, o, "", mods...)
}

// GetByOID returns the value of the instance named by s
func (c *Client) GetByOID(ctx context.Context, s string, mods ...func(*Req)) (cfgtype.Value, error) {
	inst, err := c.one(ctx, wire.NewOptions(wire.OpGet), s, mods...)
	return inst.Value, err
}

// Getf is GetByOID with a printf-style OID template
func (c *Client) Getf(ctx context.Context, format string, args ...any) (cfgtype.Value, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return cfgtype.Value{}, err
	}
	return c.GetByOID(ctx, s)
}

// GetInt returns the value of an integer instance
func (c *Client) GetInt(ctx context.Context, h cfgtype.Handle) (int, error) {
	v, err := c.Get(ctx, h)
	if err != nil {
		return 0, err
	}
	if err := expectType(v, cfgtype.TypeInt, h.String()); err != nil {
		return 0, err
	}
	return v.AsInt(), nil
}

// GetString returns the value of a string instance
func (c *Client) GetString(ctx context.Context, h cfgtype.Handle) (string, error) {
	v, err := c.Get(ctx, h)
	if err != nil {
		return "", err
	}
	if err := expectType(v, cfgtype.TypeString, h.String()); err != nil {
		return "", err
	}
	return v.AsString(), nil
}

// GetAddr returns the value of an address instance
func (c *Client) GetAddr(ctx context.Context, h cfgtype.Handle) (cfgtype.Address, error) {
	v, err := c.Get(ctx, h)
	if err != nil {
		return cfgtype.Address{}, err
	}
	if err := expectType(v, cfgtype.TypeAddress, h.String()); err != nil {
		return cfgtype.Address{}, err
	}
	return v.AsAddress(), nil
}

// GetIntByOID returns the value of the integer instance named by s
func (c *Client) GetIntByOID(ctx context.Context, s string) (int, error) {
	v, err := c.GetByOID(ctx, s)
	if err != nil {
		return 0, err
	}
	if err := expectType(v, cfgtype.TypeInt, s); err != nil {
		return 0, err
	}
	return v.AsInt(), nil
}

// GetStringByOID returns the value of the string instance named by s
func (c *Client) GetStringByOID(ctx context.Context, s string) (string, error) {
	v, err := c.GetByOID(ctx, s)
	if err != nil {
		return "", err
	}
	if err := expectType(v, cfgtype.TypeString, s); err != nil {
		return "", err
	}
	return v.AsString(), nil
}

// GetAddrByOID returns the value of the address instance named by s
func (c *Client) GetAddrByOID(ctx context.Context, s string) (cfgtype.Address, error) {
	v, err := c.GetByOID(ctx, s)
	if err != nil {
		return cfgtype.Address{}, err
	}
	if err := expectType(v, cfgtype.TypeAddress, s); err != nil {
		return cfgtype.Address{}, err
	}
	return v.AsAddress(), nil
}

// GetIntf is GetIntByOID with a printf-style OID template
func (c *Client) GetIntf(ctx context.Context, format string, args ...any) (int, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return 0, err
	}
	return c.GetIntByOID(ctx, s)
}

// GetStringf is GetStringByOID with a printf-style OID template
func (c *Client) GetStringf(ctx context.Context, format string, args ...any) (string, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return "", err
	}
	return c.GetStringByOID(ctx, s)
}

// GetAddrf is GetAddrByOID with a printf-style OID template
func (c *Client) GetAddrf(ctx context.Context, format string, args ...any) (cfgtype.Address, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return cfgtype.Address{}, err
	}
	return c.GetAddrByOID(ctx, s)
}

// Set replaces the value of instance h and pushes it to the agent.
// Use ExpectValue for a compare-and-set.
func (c *Client) Set(ctx context.Context, h cfgtype.Handle, v cfgtype.Value, mods ...func(*Req)) error {
	return c.update(ctx, h, "", v, false, mods...)
}

// SetLocal stages a new value of instance h until the next Commit on
// an ancestor
func (c *Client) SetLocal(ctx context.Context, h cfgtype.Handle, v cfgtype.Value, mods ...func(*Req)) error {
	return c.update(ctx, h, "", v, true, mods...)
}

// SetByOID is Set on the instance named by s
func (c *Client) SetByOID(ctx context.Context, s string, v cfgtype.Value, mods ...func(*Req)) error {
	return c.update(ctx, cfgtype.InvalidHandle, s, v, false, mods...)
}

// SetLocalByOID is SetLocal on the instance named by s
func (c *Client) SetLocalByOID(ctx context.Context, s string, v cfgtype.Value, mods ...func(*Req)) error {
	return c.update(ctx, cfgtype.InvalidHandle, s, v, true, mods...)
}

// Setf is SetByOID with a printf-style OID template
func (c *Client) Setf(ctx context.Context, v cfgtype.Value, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return c.SetByOID(ctx, s, v)
}

// SetLocalf is SetLocalByOID with a printf-style OID template
func (c *Client) SetLocalf(ctx context.Context, v cfgtype.Value, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return c.SetLocalByOID(ctx, s, v)
}

// Add creates instance s with value v. An unspecified value means
// the object default.
func (c *Client) Add(ctx context.Context, s string, v cfgtype.Value, mods ...func(*Req)) (cfgtype.Handle, error) {
	return c.add(ctx, s, v, false, mods...)
}

// AddLocal stages the creation of instance s until the next Commit
func (c *Client) AddLocal(ctx context.Context, s string, v cfgtype.Value, mods ...func(*Req)) (cfgtype.Handle, error) {
	return c.add(ctx, s, v, true, mods...)
}

// Addf is Add with a printf-style OID template
func (c *Client) Addf(ctx context.Context, v cfgtype.Value, format string, args ...any) (cfgtype.Handle, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	return c.Add(ctx, s, v)
}

// AddLocalf is AddLocal with a printf-style OID template
func (c *Client) AddLocalf(ctx context.Context, v cfgtype.Value, format string, args ...any) (cfgtype.Handle, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	return c.AddLocal(ctx, s, v)
}

func (c *Client) add(ctx context.Context, s string, v cfgtype.Value, local bool, mods ...func(*Req)) (cfgtype.Handle, error) {
	p, err := wire.PathFromOID(s)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	u, err := wire.ValueUpdate(p, v)
	if err != nil {
		return cfgtype.InvalidHandle, cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.InvalidArgument, err, "cannot encode value")
	}

	o := wire.NewOptions("")
	o.Local = local
	res, err := c.set(ctx, &gnmipb.SetRequest{Replace: []*gnmipb.Update{u}}, o, mods...)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if len(res.Handles) != 1 {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleAPI, cfgerr.Internal, "add %s: %d handles returned", s, len(res.Handles))
	}
	return res.Handles[0], nil
}

// Delete removes instance h. Without recursive it fails with busy if
// the instance has client-created descendants.
func (c *Client) Delete(ctx context.Context, h cfgtype.Handle, recursive bool) error {
	return c.delete(ctx, h, rootPath, recursive, false)
}

// DeleteLocal stages the removal of instance h until the next Commit
func (c *Client) DeleteLocal(ctx context.Context, h cfgtype.Handle, recursive bool) error {
	return c.delete(ctx, h, rootPath, recursive, true)
}

// DeleteByOID is Delete on the instance named by s
func (c *Client) DeleteByOID(ctx context.Context, s string, recursive bool) error {
	return c.delete(ctx, cfgtype.InvalidHandle, s, recursive, false)
}

// Deletef is DeleteByOID with a printf-style OID template
func (c *Client) Deletef(ctx context.Context, recursive bool, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return c.DeleteByOID(ctx, s, recursive)
}

func (c *Client) delete(ctx context.Context, h cfgtype.Handle, s string, recursive, local bool) error {
	p, err := wire.PathFromOID(s)
	if err != nil {
		return err
	}
	o := wire.NewOptions("")
	o.Handle = h
	o.Recursive = recursive
	o.Local = local
	_, err = c.set(ctx, &gnmipb.SetRequest{Delete: []*gnmipb.Path{p}}, o)
	return err
}

// Commit pushes the staged changes below prefix to the agents. An
// empty prefix commits everything.
func (c *Client) Commit(ctx context.Context, prefix string) error {
	o := wire.NewOptions(wire.OpCommit)
	o.Name = prefix
	_, err := c.command(ctx, o)
	return err
}

// Commitf is Commit with a printf-style OID template
func (c *Client) Commitf(ctx context.Context, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return c.Commit(ctx, s)
}

// Son returns the oldest child of instance h, InvalidHandle for a leaf
func (c *Client) Son(ctx context.Context, h cfgtype.Handle) (cfgtype.Handle, error) {
	return c.navigate(ctx, wire.OpSon, h)
}

// Brother returns the next sibling of instance h, InvalidHandle for
// the youngest
func (c *Client) Brother(ctx context.Context, h cfgtype.Handle) (cfgtype.Handle, error) {
	return c.navigate(ctx, wire.OpBrother, h)
}

// Father returns the parent of instance h, InvalidHandle for the root
func (c *Client) Father(ctx context.Context, h cfgtype.Handle) (cfgtype.Handle, error) {
	return c.navigate(ctx, wire.OpFather, h)
}

func (c *Client) navigate(ctx context.Context, op string, h cfgtype.Handle) (cfgtype.Handle, error) {
	o := wire.NewOptions(op)
	o.Handle = h
	insts, err := c.instances(ctx, o, nil)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if len(insts) == 0 {
		return cfgtype.InvalidHandle, nil
	}
	return insts[0].Handle, nil
}

// Enumerate calls fn once per instance of object obj. A non-nil
// return from fn stops the iteration and is returned.
func (c *Client) Enumerate(ctx context.Context, obj cfgtype.Handle, fn func(cfgtype.Instance) error) error {
	s, err := c.OID(ctx, obj)
	if err != nil {
		return err
	}
	return c.EnumerateByOID(ctx, s, fn)
}

// EnumerateByOID is Enumerate on the object named by s
func (c *Client) EnumerateByOID(ctx context.Context, s string, fn func(cfgtype.Instance) error) error {
	o := wire.NewOptions(wire.OpEnumerate)
	o.Name = s
	insts, err := c.instances(ctx, o, nil)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		if err := fn(inst); err != nil {
			return err
		}
	}
	return nil
}

// Sync pulls the state of instance s from its agent
func (c *Client) Sync(ctx context.Context, s string) error {
	return c.sync(ctx, s, false)
}

// SyncTree pulls the state of instance s and all its descendants
func (c *Client) SyncTree(ctx context.Context, s string) error {
	return c.sync(ctx, s, true)
}

// Syncf is Sync with a printf-style OID template
func (c *Client) Syncf(ctx context.Context, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return c.Sync(ctx, s)
}

// SyncTreef is SyncTree with a printf-style OID template
func (c *Client) SyncTreef(ctx context.Context, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return c.SyncTree(ctx, s)
}

func (c *Client) sync(ctx context.Context, s string, subtree bool) error {
	o := wire.NewOptions(wire.OpSync)
	o.Name = s
	o.Subtree = subtree
	_, err := c.command(ctx, o)
	return err
}

// Register adds an object to the schema and returns its handle
func (c *Client) Register(ctx context.Context, obj cfgtype.Object) (cfgtype.Handle, error) {
	o := wire.NewOptions(wire.OpRegister)
	o.Object = &obj
	res, err := c.command(ctx, o)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if len(res.Handles) != 1 {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleAPI, cfgerr.Internal, "register %s: %d handles returned", obj.OID, len(res.Handles))
	}
	return res.Handles[0], nil
}

// Unregister removes an object without instances from the schema
func (c *Client) Unregister(ctx context.Context, s string) error {
	o := wire.NewOptions(wire.OpUnregister)
	o.Name = s
	_, err := c.command(ctx, o)
	return err
}

// Tree renders the instances below prefix as indented text; an empty
// prefix renders the whole tree
func (c *Client) Tree(ctx context.Context, prefix string) (string, error) {
	o := wire.NewOptions(wire.OpTree)
	o.Name = prefix
	docs, err := c.get(ctx, o, nil)
	if err != nil {
		return "", err
	}
	var text string
	for _, d := range docs {
		text += wire.DecodeText(d)
	}
	return text, nil
}

// WaitChanges blocks until the configuration delay requested by the
// agents of recent changes has passed
func (c *Client) WaitChanges(ctx context.Context) error {
	_, err := c.command(ctx, wire.NewOptions(wire.OpWait))
	return err
}

// CopySubtree copies instance src and its descendants to dst, an
// instance of the same object, and returns the handle of dst. An
// existing dst is merged into; nothing below it is deleted.
func (c *Client) CopySubtree(ctx context.Context, dst, src string) (cfgtype.Handle, error) {
	return c.copySubtree(ctx, dst, src, false)
}

// CopySubtreeLocal is CopySubtree staged until the next commit
func (c *Client) CopySubtreeLocal(ctx context.Context, dst, src string) (cfgtype.Handle, error) {
	return c.copySubtree(ctx, dst, src, true)
}

// CopySubtreef is CopySubtree with a printf-style source template
func (c *Client) CopySubtreef(ctx context.Context, dst, srcFormat string, args ...any) (cfgtype.Handle, error) {
	src, err := oid.Format(srcFormat, args...)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	return c.CopySubtree(ctx, dst, src)
}

func (c *Client) copySubtree(ctx context.Context, dst, src string, local bool) (cfgtype.Handle, error) {
	o := wire.NewOptions(wire.OpCopy)
	o.Name = dst
	o.Source = src
	o.Local = local
	res, err := c.command(ctx, o)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if len(res.Handles) != 1 {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleAPI, cfgerr.Internal, "copy to %s: %d handles returned", dst, len(res.Handles))
	}
	return res.Handles[0], nil
}

// Touch tells the Configurator that the instances matching pattern
// were changed behind its back, so WaitChanges accounts for them
func (c *Client) Touch(ctx context.Context, pattern string) error {
	o := wire.NewOptions(wire.OpTouch)
	o.Name = pattern
	_, err := c.command(ctx, o)
	return err
}

// Touchf is Touch with a printf-style template
func (c *Client) Touchf(ctx context.Context, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return c.Touch(ctx, s)
}

// one sends a lookup and expects exactly one record
func (c *Client) one(ctx context.Context, o wire.Options, s string, mods ...func(*Req)) (cfgtype.Instance, error) {
	var paths []string
	if s != "" {
		paths = []string{s}
	}
	insts, err := c.instances(ctx, o, paths, mods...)
	if err != nil {
		return cfgtype.Instance{}, err
	}
	if len(insts) != 1 {
		return cfgtype.Instance{}, cfgerr.New(cfgerr.ModuleAPI, cfgerr.Internal, "%s %s: %d records", o.Op, s, len(insts))
	}
	return insts[0], nil
}

func (c *Client) instances(ctx context.Context, o wire.Options, paths []string, mods ...func(*Req)) ([]cfgtype.Instance, error) {
	docs, err := c.get(ctx, o, paths, mods...)
	if err != nil {
		return nil, err
	}
	insts := make([]cfgtype.Instance, 0, len(docs))
	for _, d := range docs {
		inst, err := wire.DecodeInstance(d)
		if err != nil {
			return nil, cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Internal, err, "%s record", o.Op)
		}
		insts = append(insts, inst)
	}
	return insts, nil
}

func expectType(v cfgtype.Value, t cfgtype.Type, what string) error {
	if v.Type() != t {
		return cfgerr.New(cfgerr.ModuleAPI, cfgerr.WrongType, "%s holds %s, not %s", what, v.Type(), t)
	}
	return nil
}
