// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"

	"github.com/netascode/go-confapi"
	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// AllocEntry takes the first free slot of the pool instance parent:
// the first child, in son/brother order, whose value is 0 is set to 1
// and its handle returned. Fails with no-entry when every slot is in
// use.
func (t *Helper) AllocEntry(ctx context.Context, parent string) (cfgtype.Handle, error) {
	h, err := t.tree.Find(ctx, parent)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	return t.AllocEntryByHandle(ctx, h)
}

// AllocEntryByHandle is AllocEntry on a pool handle.
//
// A slot is taken with a compare-and-set from 0 to 1, so two clients
// racing for the same slot never both win; the loser moves on.
func (t *Helper) AllocEntryByHandle(ctx context.Context, parent cfgtype.Handle) (cfgtype.Handle, error) {
	entry := cfgtype.InvalidHandle
	err := t.children(ctx, parent, func(h cfgtype.Handle) (bool, error) {
		v, err := t.tree.Get(ctx, h)
		if err != nil {
			return false, err
		}
		if v.Type() != cfgtype.TypeInt {
			return false, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.WrongType, "pool entry %s holds %s", h, v.Type())
		}
		if v.AsInt() != 0 {
			return true, nil
		}
		err = t.tree.Set(ctx, h, cfgtype.Int(1), confapi.ExpectValue(cfgtype.Int(0)))
		if cfgerr.IsKind(err, cfgerr.Busy) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		entry = h
		return false, nil
	})
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if !entry.IsValid() {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.NoEntry, "no free entries in pool %s", parent)
	}
	t.logger.Debug(ctx, "pool entry allocated", "pool", parent.String(), "entry", entry.String())
	return entry, nil
}

// FreeEntry returns a slot to its pool and invalidates *entry. An
// invalid handle is a no-op.
func (t *Helper) FreeEntry(ctx context.Context, entry *cfgtype.Handle) error {
	if entry == nil {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "nil pool entry")
	}
	if !entry.IsValid() {
		return nil
	}
	if err := t.tree.Set(ctx, *entry, cfgtype.Int(0)); err != nil {
		return err
	}
	t.logger.Debug(ctx, "pool entry freed", "entry", entry.String())
	*entry = cfgtype.InvalidHandle
	return nil
}
