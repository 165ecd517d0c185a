// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"
	"net/netip"

	"go4.org/netipx"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// Family is an IP address family
type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "inet6"
	}
	return "inet"
}

// FamilyOf returns the family of an address
func FamilyOf(a netip.Addr) Family {
	if a.Unmap().Is4() {
		return IPv4
	}
	return IPv6
}

// Subnet pool instances
const (
	IPv4Pool = "/net_pool:ip4"
	IPv6Pool = "/net_pool:ip6"
)

// PoolOID returns the subnet pool of a family
func PoolOID(f Family) string {
	if f == IPv6 {
		return IPv6Pool
	}
	return IPv4Pool
}

// AddNet adds the subnet p to pool with the given state (0 free, 1 in
// use). p is masked to its prefix length. A subnet overlapping one
// already in the pool fails with already-exists.
func (t *Helper) AddNet(ctx context.Context, pool string, p netip.Prefix, state int) (cfgtype.Handle, error) {
	if !p.IsValid() {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "invalid subnet %v", p)
	}
	p = p.Masked()

	poolH, err := t.tree.Find(ctx, pool)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}

	var b netipx.IPSetBuilder
	err = t.children(ctx, poolH, func(h cfgtype.Handle) (bool, error) {
		s, q, err := t.subnet(ctx, h)
		if err != nil {
			return false, err
		}
		if q.Addr().BitLen() != p.Addr().BitLen() {
			return false, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "pool %s holds %s, cannot add %s", pool, s, p)
		}
		b.AddPrefix(q)
		return true, nil
	})
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	used, err := b.IPSet()
	if err != nil {
		return cfgtype.InvalidHandle, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.Internal, err, "pool %s", pool)
	}
	if used.OverlapsPrefix(p) {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.AlreadyExists, "network %s interferes with pool %s", p, pool)
	}

	h, err := t.addf(ctx, cfgtype.Int(state), "%s/entry:%s", pool, p.Addr())
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if err := t.setf(ctx, cfgtype.Int(p.Bits()), "%s/entry:%s/prefix:", pool, p.Addr()); err != nil {
		return cfgtype.InvalidHandle, err
	}
	if err := t.setf(ctx, cfgtype.Int(0), "%s/entry:%s/n_entries:", pool, p.Addr()); err != nil {
		return cfgtype.InvalidHandle, err
	}
	t.logger.Info(ctx, "network added to the pool", "pool", pool, "network", p.String())
	return h, nil
}

// AllocNet takes a free subnet from the pool of family f
func (t *Helper) AllocNet(ctx context.Context, f Family) (cfgtype.Handle, error) {
	return t.AllocEntry(ctx, PoolOID(f))
}

// Subnet returns the OID and prefix of a subnet pool entry
func (t *Helper) Subnet(ctx context.Context, net cfgtype.Handle) (string, netip.Prefix, error) {
	return t.subnet(ctx, net)
}

func (t *Helper) subnet(ctx context.Context, net cfgtype.Handle) (string, netip.Prefix, error) {
	s, a, err := t.entryAddr(ctx, net)
	if err != nil {
		return "", netip.Prefix{}, err
	}
	bits, err := t.getInt(ctx, "%s/prefix:", s)
	if err != nil {
		return "", netip.Prefix{}, err
	}
	p, err := a.Prefix(bits)
	if err != nil {
		return "", netip.Prefix{}, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, err, "prefix of %s", s)
	}
	return s, p, nil
}

// entryAddr returns the OID of an instance and its name parsed as an
// IP address
func (t *Helper) entryAddr(ctx context.Context, h cfgtype.Handle) (string, netip.Addr, error) {
	s, err := t.tree.OID(ctx, h)
	if err != nil {
		return "", netip.Addr{}, err
	}
	o, err := oid.Parse(s)
	if err != nil {
		return "", netip.Addr{}, err
	}
	a, err := netip.ParseAddr(o.Last().Name)
	if err != nil {
		return "", netip.Addr{}, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, err, "name of %s", s)
	}
	return s, a, nil
}

// AllocNetAddr allocates an address of the subnet net. A released
// address is reused first; otherwise the next unused host address is
// taken. Fails with no-entry when the subnet is exhausted.
func (t *Helper) AllocNetAddr(ctx context.Context, net cfgtype.Handle) (cfgtype.Handle, netip.Addr, error) {
	return t.insertNetAddr(ctx, net, netip.Addr{})
}

// AddNetAddr records addr as used in the subnet net. Fails with
// invalid-argument when addr lies outside the subnet and with
// already-exists when it is in use.
func (t *Helper) AddNetAddr(ctx context.Context, net cfgtype.Handle, addr netip.Addr) (cfgtype.Handle, error) {
	if !addr.IsValid() {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "invalid address")
	}
	h, _, err := t.insertNetAddr(ctx, net, addr)
	return h, err
}

// AllocIP4Addr is AllocNetAddr restricted to IPv4 subnets
func (t *Helper) AllocIP4Addr(ctx context.Context, net cfgtype.Handle) (cfgtype.Handle, netip.Addr, error) {
	s, p, err := t.subnet(ctx, net)
	if err != nil {
		return cfgtype.InvalidHandle, netip.Addr{}, err
	}
	if !p.Addr().Is4() {
		return cfgtype.InvalidHandle, netip.Addr{}, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "%s is not an IPv4 subnet", s)
	}
	return t.insertNetAddr(ctx, net, netip.Addr{})
}

// FreeNetAddr releases an address taken by AllocNetAddr or AddNetAddr
// for reuse and invalidates *entry
func (t *Helper) FreeNetAddr(ctx context.Context, entry *cfgtype.Handle) error {
	return t.FreeEntry(ctx, entry)
}

func (t *Helper) insertNetAddr(ctx context.Context, net cfgtype.Handle, addr netip.Addr) (cfgtype.Handle, netip.Addr, error) {
	s, p, err := t.subnet(ctx, net)
	if err != nil {
		return cfgtype.InvalidHandle, netip.Addr{}, err
	}
	poolH, err := t.tree.Find(ctx, s+"/pool:")
	if err != nil {
		return cfgtype.InvalidHandle, netip.Addr{}, err
	}

	if !addr.IsValid() {
		h, err := t.AllocEntryByHandle(ctx, poolH)
		if err == nil {
			_, a, err := t.entryAddr(ctx, h)
			return h, a, err
		}
		if !cfgerr.IsKind(err, cfgerr.NoEntry) {
			return cfgtype.InvalidHandle, netip.Addr{}, err
		}
	} else {
		addr = addr.Unmap()
		if !p.Contains(addr) {
			return cfgtype.InvalidHandle, netip.Addr{}, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "address %s does not fit %s", addr, p)
		}
		h, err := t.tree.Find(ctx, fmt.Sprintf("%s/pool:/entry:%s", s, addr))
		switch {
		case err == nil:
			if err := t.reclaim(ctx, h); err != nil {
				return cfgtype.InvalidHandle, netip.Addr{}, err
			}
			return h, addr, nil
		case !cfgerr.IsKind(err, cfgerr.NotFound):
			return cfgtype.InvalidHandle, netip.Addr{}, err
		}
	}

	n, err := t.getInt(ctx, "%s/n_entries:", s)
	if err != nil {
		return cfgtype.InvalidHandle, netip.Addr{}, err
	}
	n++
	hostBits := p.Addr().BitLen() - p.Bits()
	if hostBits < 31 && n > (1<<hostBits)-2 {
		return cfgtype.InvalidHandle, netip.Addr{}, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.NoEntry, "all addresses of %s are used", s)
	}

	if !addr.IsValid() {
		if addr, err = t.nextFree(ctx, s, p); err != nil {
			return cfgtype.InvalidHandle, netip.Addr{}, err
		}
	}

	h, err := t.addf(ctx, cfgtype.Int(1), "%s/pool:/entry:%s", s, addr)
	if err != nil {
		return cfgtype.InvalidHandle, netip.Addr{}, err
	}
	if err := t.setf(ctx, cfgtype.Int(n), "%s/n_entries:", s); err != nil {
		return cfgtype.InvalidHandle, netip.Addr{}, err
	}
	t.logger.Debug(ctx, "address added to the pool", "subnet", s, "address", addr.String())
	return h, addr, nil
}

// reclaim takes a released pool address back; an address in use fails
// with already-exists
func (t *Helper) reclaim(ctx context.Context, h cfgtype.Handle) error {
	v, err := t.tree.Get(ctx, h)
	if err != nil {
		return err
	}
	if v.AsInt() != 0 {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.AlreadyExists, "address %s is in use", h)
	}
	err = t.tree.Set(ctx, h, cfgtype.Int(1))
	return err
}

// nextFree searches the hosts of p linearly for an address without a
// pool entry
func (t *Helper) nextFree(ctx context.Context, s string, p netip.Prefix) (netip.Addr, error) {
	last := netipx.PrefixLastIP(p)
	for a := p.Addr().Next(); a.IsValid() && a.Less(last); a = a.Next() {
		_, err := t.tree.Find(ctx, fmt.Sprintf("%s/pool:/entry:%s", s, a))
		if cfgerr.IsKind(err, cfgerr.NotFound) {
			return a, nil
		}
		if err != nil {
			return netip.Addr{}, err
		}
	}
	return netip.Addr{}, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.NoEntry, "no free address in %s", s)
}
