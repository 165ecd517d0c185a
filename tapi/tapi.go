// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package tapi holds test helpers built over the configuration tree:
// pools, address allocation, routes, neighbours and thin translators
// for interface, PHY, PCI, CPU, VM, process, iptables, OVS and NetEm
// subtrees of an agent.
//
// Helpers propagate the errors of the tree unchanged; errors they
// detect themselves carry the tapi module tag.
//
// Example:
//
//	client, _ := confapi.NewClient("localhost:57400")
//	t := tapi.New(client)
//	h, err := t.AddRoute(ctx, "Agt_A", tapi.Route{
//	    Dst:    netip.MustParsePrefix("10.0.0.0/24"),
//	    Gateway: netip.MustParseAddr("10.1.1.1"),
//	    Dev:    "eth0",
//	})
package tapi

import (
	"context"

	"github.com/netascode/go-confapi"
	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/logging"
	"github.com/netascode/go-confapi/oid"
)

// Tree is the part of the configurator client the helpers use.
// *confapi.Client satisfies it.
type Tree interface {
	Find(ctx context.Context, s string) (cfgtype.Handle, error)
	FindPattern(ctx context.Context, pattern string) ([]cfgtype.Handle, error)
	OID(ctx context.Context, h cfgtype.Handle) (string, error)

	Get(ctx context.Context, h cfgtype.Handle, mods ...func(*confapi.Req)) (cfgtype.Value, error)
	GetByOID(ctx context.Context, s string, mods ...func(*confapi.Req)) (cfgtype.Value, error)

	Set(ctx context.Context, h cfgtype.Handle, v cfgtype.Value, mods ...func(*confapi.Req)) error
	SetByOID(ctx context.Context, s string, v cfgtype.Value, mods ...func(*confapi.Req)) error
	SetLocalByOID(ctx context.Context, s string, v cfgtype.Value, mods ...func(*confapi.Req)) error

	Add(ctx context.Context, s string, v cfgtype.Value, mods ...func(*confapi.Req)) (cfgtype.Handle, error)
	AddLocal(ctx context.Context, s string, v cfgtype.Value, mods ...func(*confapi.Req)) (cfgtype.Handle, error)

	Delete(ctx context.Context, h cfgtype.Handle, recursive bool) error
	DeleteByOID(ctx context.Context, s string, recursive bool) error

	Commit(ctx context.Context, prefix string) error
	Sync(ctx context.Context, s string) error
	SyncTree(ctx context.Context, s string) error

	Son(ctx context.Context, h cfgtype.Handle) (cfgtype.Handle, error)
	Brother(ctx context.Context, h cfgtype.Handle) (cfgtype.Handle, error)
}

// Helper runs test helpers against one configurator
type Helper struct {
	tree   Tree
	logger logging.Logger
}

// Option configures a Helper
type Option func(*Helper)

// WithLogger sets the logger used for warnings; the default discards
// everything
func WithLogger(l logging.Logger) Option {
	return func(h *Helper) {
		if l != nil {
			h.logger = l
		}
	}
}

// New returns helpers working on tree
func New(tree Tree, opts ...Option) *Helper {
	h := &Helper{tree: tree, logger: &logging.NoOpLogger{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Tree returns the client the helpers work on
func (t *Helper) Tree() Tree {
	return t.tree
}

func (t *Helper) getInt(ctx context.Context, format string, args ...any) (int, error) {
	v, err := t.getf(ctx, cfgtype.TypeInt, format, args...)
	return v.AsInt(), err
}

func (t *Helper) getString(ctx context.Context, format string, args ...any) (string, error) {
	v, err := t.getf(ctx, cfgtype.TypeString, format, args...)
	return v.AsString(), err
}

func (t *Helper) getAddr(ctx context.Context, format string, args ...any) (cfgtype.Address, error) {
	v, err := t.getf(ctx, cfgtype.TypeAddress, format, args...)
	return v.AsAddress(), err
}

func (t *Helper) getf(ctx context.Context, typ cfgtype.Type, format string, args ...any) (cfgtype.Value, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return cfgtype.Value{}, err
	}
	v, err := t.tree.GetByOID(ctx, s)
	if err != nil {
		return cfgtype.Value{}, err
	}
	if v.Type() != typ {
		return cfgtype.Value{}, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.WrongType, "%s holds %s, not %s", s, v.Type(), typ)
	}
	return v, nil
}

func (t *Helper) setf(ctx context.Context, v cfgtype.Value, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return t.tree.SetByOID(ctx, s, v)
}

func (t *Helper) setLocalf(ctx context.Context, v cfgtype.Value, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return t.tree.SetLocalByOID(ctx, s, v)
}

func (t *Helper) addf(ctx context.Context, v cfgtype.Value, format string, args ...any) (cfgtype.Handle, error) {
	s, err := oid.Format(format, args...)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	return t.tree.Add(ctx, s, v)
}

func (t *Helper) deletef(ctx context.Context, recursive bool, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return t.tree.DeleteByOID(ctx, s, recursive)
}

func (t *Helper) commitf(ctx context.Context, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	return t.tree.Commit(ctx, s)
}

func (t *Helper) syncf(ctx context.Context, subtree bool, format string, args ...any) error {
	s, err := oid.Format(format, args...)
	if err != nil {
		return err
	}
	if subtree {
		return t.tree.SyncTree(ctx, s)
	}
	return t.tree.Sync(ctx, s)
}

// names returns the last instance names of every instance matching
// the pattern
func (t *Helper) names(ctx context.Context, format string, args ...any) ([]string, error) {
	pattern, err := oid.Format(format, args...)
	if err != nil {
		return nil, err
	}
	hs, err := t.tree.FindPattern(ctx, pattern)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		s, err := t.tree.OID(ctx, h)
		if err != nil {
			return nil, err
		}
		o, err := oid.Parse(s)
		if err != nil {
			return nil, err
		}
		names = append(names, o.Last().Name)
	}
	return names, nil
}

// children walks the children of parent in son/brother order
func (t *Helper) children(ctx context.Context, parent cfgtype.Handle, fn func(cfgtype.Handle) (bool, error)) error {
	h, err := t.tree.Son(ctx, parent)
	for err == nil && h.IsValid() {
		more, ferr := fn(h)
		if ferr != nil || !more {
			return ferr
		}
		h, err = t.tree.Brother(ctx, h)
	}
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
