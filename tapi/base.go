// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// Interfaces returns the interface names of agent ta
func (t *Helper) Interfaces(ctx context.Context, ta string) ([]string, error) {
	return t.names(ctx, "/agent:%s/interface:*", ta)
}

// SetIfStatus brings an interface administratively up or down
func (t *Helper) SetIfStatus(ctx context.Context, ta, ifname string, up bool) error {
	return t.setf(ctx, cfgtype.Int(boolInt(up)), "/agent:%s/interface:%s/status:", ta, ifname)
}

// IfStatus reports whether an interface is administratively up
func (t *Helper) IfStatus(ctx context.Context, ta, ifname string) (bool, error) {
	v, err := t.getInt(ctx, "/agent:%s/interface:%s/status:", ta, ifname)
	return v != 0, err
}

// SetIfMTU changes the MTU of an interface
func (t *Helper) SetIfMTU(ctx context.Context, ta, ifname string, mtu int) error {
	if mtu <= 0 {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "invalid MTU %d", mtu)
	}
	return t.setf(ctx, cfgtype.Int(mtu), "/agent:%s/interface:%s/mtu:", ta, ifname)
}

// IfMTU returns the MTU of an interface
func (t *Helper) IfMTU(ctx context.Context, ta, ifname string) (int, error) {
	return t.getInt(ctx, "/agent:%s/interface:%s/mtu:", ta, ifname)
}

// SetLinkAddr changes the link-layer address of an interface
func (t *Helper) SetLinkAddr(ctx context.Context, ta, ifname string, hw net.HardwareAddr) error {
	if len(hw) == 0 {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "empty link-layer address")
	}
	return t.setf(ctx, cfgtype.Addr(cfgtype.HWAddress(hw)), "/agent:%s/interface:%s/link_addr:", ta, ifname)
}

// LinkAddr returns the link-layer address of an interface
func (t *Helper) LinkAddr(ctx context.Context, ta, ifname string) (net.HardwareAddr, error) {
	a, err := t.getAddr(ctx, "/agent:%s/interface:%s/link_addr:", ta, ifname)
	if err != nil {
		return nil, err
	}
	hw := a.HW()
	if hw == nil {
		return nil, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.WrongType, "link_addr of %s on %s is %q", ifname, ta, a.String())
	}
	return hw, nil
}

// SetPromisc switches promiscuous mode of an interface
func (t *Helper) SetPromisc(ctx context.Context, ta, ifname string, on bool) error {
	return t.setf(ctx, cfgtype.Int(boolInt(on)), "/agent:%s/interface:%s/promisc:", ta, ifname)
}

// Promisc reports whether an interface is in promiscuous mode
func (t *Helper) Promisc(ctx context.Context, ta, ifname string) (bool, error) {
	v, err := t.getInt(ctx, "/agent:%s/interface:%s/promisc:", ta, ifname)
	return v != 0, err
}

// AddIfAddr assigns p to an interface. An address that is already
// assigned counts as success; the returned handle is then invalid.
func (t *Helper) AddIfAddr(ctx context.Context, ta, ifname string, p netip.Prefix) (cfgtype.Handle, error) {
	if !p.IsValid() {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "invalid address %v", p)
	}
	h, err := t.addf(ctx, cfgtype.Int(p.Bits()), "/agent:%s/interface:%s/net_addr:%s", ta, ifname, p.Addr())
	if cfgerr.IsKind(err, cfgerr.AlreadyExists) {
		t.logger.Debug(ctx, "address already assigned", "agent", ta, "interface", ifname, "address", p.Addr().String())
		return cfgtype.InvalidHandle, nil
	}
	return h, err
}

// DelIfAddr removes an address from an interface
func (t *Helper) DelIfAddr(ctx context.Context, ta, ifname string, addr netip.Addr) error {
	return t.deletef(ctx, false, "/agent:%s/interface:%s/net_addr:%s", ta, ifname, addr)
}

// IfAddrs returns the addresses assigned to an interface
func (t *Helper) IfAddrs(ctx context.Context, ta, ifname string) ([]netip.Prefix, error) {
	names, err := t.names(ctx, "/agent:%s/interface:%s/net_addr:*", ta, ifname)
	if err != nil {
		return nil, err
	}
	out := make([]netip.Prefix, 0, len(names))
	for _, name := range names {
		a, err := netip.ParseAddr(name)
		if err != nil {
			return nil, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, err, "net_addr %q of %s", name, ifname)
		}
		bits, err := t.getInt(ctx, "/agent:%s/interface:%s/net_addr:%s", ta, ifname, name)
		if err != nil {
			return nil, err
		}
		p := netip.PrefixFrom(a, bits)
		if !p.IsValid() {
			return nil, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "prefix length %d of %s", bits, name)
		}
		out = append(out, p)
	}
	return out, nil
}

// ifOID returns the OID of an interface
func ifOID(ta, ifname string) string {
	return fmt.Sprintf("/agent:%s/interface:%s", ta, ifname)
}
