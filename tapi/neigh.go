// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/multierr"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// NeighState is the state of a neighbour cache entry
type NeighState int

// Neighbour states, as the kernel reports them
const (
	NeighIncomplete NeighState = 0x01
	NeighReachable  NeighState = 0x02
	NeighStale      NeighState = 0x04
	NeighDelay      NeighState = 0x08
	NeighProbe      NeighState = 0x10
	NeighFailed     NeighState = 0x20
	NeighNoARP      NeighState = 0x40
	NeighPermanent  NeighState = 0x80
)

// Neigh is a neighbour cache entry
type Neigh struct {
	Addr   netip.Addr
	HW     net.HardwareAddr
	Static bool
	State  NeighState
}

type neighOp int

const (
	neighAdd neighOp = iota
	neighDelete
	neighGet
	neighModify
)

func neighOID(ta, ifname string, static bool, addr netip.Addr) string {
	kind := "dynamic"
	if static {
		kind = "static"
	}
	return fmt.Sprintf("/agent:%s/interface:%s/neigh_%s:%s", ta, ifname, kind, addr)
}

// GetNeigh looks addr up in the neighbour cache of interface ifname.
// Static entries are preferred; dynamic ones are read after a forced
// synchronization of the interface.
func (t *Helper) GetNeigh(ctx context.Context, ta, ifname string, addr netip.Addr) (Neigh, error) {
	n := Neigh{Addr: addr}
	err := t.neigh(ctx, neighGet, ta, ifname, &n)
	return n, err
}

// AddNeigh adds a static or dynamic neighbour entry
func (t *Helper) AddNeigh(ctx context.Context, ta, ifname string, n Neigh) error {
	return t.neigh(ctx, neighAdd, ta, ifname, &n)
}

// SetNeigh changes the link-layer address of an existing entry
func (t *Helper) SetNeigh(ctx context.Context, ta, ifname string, n Neigh) error {
	return t.neigh(ctx, neighModify, ta, ifname, &n)
}

// DelNeigh removes the entry for addr. An empty ifname removes it from
// every interface of the agent. A missing entry is not an error.
func (t *Helper) DelNeigh(ctx context.Context, ta, ifname string, addr netip.Addr) error {
	if ifname != "" {
		return t.neigh(ctx, neighDelete, ta, ifname, &Neigh{Addr: addr})
	}
	ifs, err := t.Interfaces(ctx, ta)
	if err != nil {
		return err
	}
	var errs error
	for _, name := range ifs {
		errs = multierr.Append(errs, t.neigh(ctx, neighDelete, ta, name, &Neigh{Addr: addr}))
	}
	return errs
}

// PurgeDynamicNeighs removes every dynamic entry of interface ifname,
// or of every interface when ifname is empty
func (t *Helper) PurgeDynamicNeighs(ctx context.Context, ta, ifname string) error {
	if ifname == "" {
		ifs, err := t.Interfaces(ctx, ta)
		if err != nil {
			return err
		}
		var errs error
		for _, name := range ifs {
			errs = multierr.Append(errs, t.PurgeDynamicNeighs(ctx, ta, name))
		}
		return errs
	}

	if err := t.syncf(ctx, true, "/agent:%s/interface:%s", ta, ifname); err != nil {
		return err
	}
	hs, err := t.tree.FindPattern(ctx, fmt.Sprintf("/agent:%s/interface:%s/neigh_dynamic:*", ta, ifname))
	if err != nil {
		return err
	}
	var errs error
	for _, h := range hs {
		if err := t.tree.Delete(ctx, h, false); err != nil && !cfgerr.IsKind(err, cfgerr.NotFound) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (t *Helper) neigh(ctx context.Context, op neighOp, ta, ifname string, n *Neigh) error {
	if ta == "" || ifname == "" || !n.Addr.IsValid() {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "neighbour needs an agent, an interface and an address")
	}

	switch op {
	case neighGet:
		static := neighOID(ta, ifname, true, n.Addr)
		err := t.tree.Sync(ctx, static)
		if err == nil {
			var v cfgtype.Value
			if v, err = t.tree.GetByOID(ctx, static); err == nil {
				n.HW = v.AsAddress().HW()
				n.Static = true
				n.State = NeighReachable
				return nil
			}
		}
		if !cfgerr.IsKind(err, cfgerr.NotFound) {
			return err
		}

		if err := t.syncf(ctx, true, "/agent:%s/interface:%s", ta, ifname); err != nil {
			return err
		}
		dynamic := neighOID(ta, ifname, false, n.Addr)
		hw, err := t.getAddr(ctx, "%s", dynamic)
		if err != nil {
			return err
		}
		state, err := t.getInt(ctx, "%s/state:", dynamic)
		if err != nil {
			return err
		}
		n.HW = hw.HW()
		n.Static = false
		n.State = NeighState(state)
		return nil

	case neighAdd, neighModify:
		if len(n.HW) == 0 {
			return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "neighbour %s has no link-layer address", n.Addr)
		}
		s := neighOID(ta, ifname, n.Static, n.Addr)
		v := cfgtype.Addr(cfgtype.HWAddress(n.HW))
		if op == neighAdd {
			_, err := t.tree.Add(ctx, s, v)
			return err
		}
		return t.tree.SetByOID(ctx, s, v)

	case neighDelete:
		err := t.tree.DeleteByOID(ctx, neighOID(ta, ifname, true, n.Addr), false)
		if !cfgerr.IsKind(err, cfgerr.NotFound) {
			return err
		}
		if err := t.syncf(ctx, true, "/agent:%s/interface:%s", ta, ifname); err != nil {
			return err
		}
		err = t.tree.DeleteByOID(ctx, neighOID(ta, ifname, false, n.Addr), false)
		if cfgerr.IsKind(err, cfgerr.NotFound) {
			t.logger.Info(ctx, "no neighbour entry to delete", "agent", ta, "interface", ifname, "address", n.Addr.String())
			return nil
		}
		return err
	}
	return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "unknown neighbour operation %d", op)
}
