// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package env binds a declarative test environment to the networks
// registered in the configuration tree.
//
// The tree describes concrete networks as /net:<n>/node:<m>, where the
// node value is the OID of an agent interface and the child type marks
// the agent as tester (0), NUT (1) or NUT peer (2). Subnets of a net
// are listed as /net:<n>/ip4_subnet:<i> and /net:<n>/ip6_subnet:<i>,
// each holding the OID of a /net_pool entry.
//
// Example:
//
//	e, err := env.Get(ctx, tapi.New(client),
//	    `'net1':IUT{'iut'{{'pco_iut':IUT},addr:'iut_addr':inet:unicast,if:'iut_if'},
//	                'tst'{{'pco_tst':tester},addr:'tst_addr':inet:unicast}}`)
//	if err != nil {
//	    return err
//	}
//	defer e.Free(ctx)
//	a, _ := e.Addr("iut_addr")
package env

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"strconv"

	"go.uber.org/multierr"
	"go4.org/netipx"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/logging"
	"github.com/netascode/go-confapi/oid"
	"github.com/netascode/go-confapi/tapi"
)

// NodeType is the role of a node in a concrete net
type NodeType int

const (
	NodeTester NodeType = iota
	NodeNUT
	NodeNUTPeer
	NodeInvalid
)

// Net is a declarative net bound to a concrete one
type Net struct {
	Name string
	// OID is the concrete /net instance
	OID string
	// Subnet4 and Subnet6 are invalid when the net has no such subnet
	Subnet4 netip.Prefix
	Subnet6 netip.Prefix

	spec    *NetSpec
	subnet4 cfgtype.Handle
	subnet6 cfgtype.Handle
}

// Host is a declarative host bound to an agent
type Host struct {
	Name string
	TA   string
	PCOs []*PCO
}

// Iface is a host interface bound to a net node
type Iface struct {
	Name string
	Net  *Net
	Host *Host
	// Node is the /net/node instance the interface is bound to
	Node string
	// OID is the agent interface the node refers to
	OID    string
	IfName string

	spec *HostSpec
}

// PCO is an RPC server requested on a host
type PCO struct {
	Name string
	Type Type
	Host *Host
}

// Addr is an address obtained for an interface
type Addr struct {
	Name   string
	Family AddrFamily
	Kind   AddrKind
	Iface  *Iface
	// IP is set for inet and inet6 addresses, HW for ether ones
	IP     netip.Addr
	Prefix int
	HW     net.HardwareAddr

	entry    cfgtype.Handle
	assigned bool
}

// Env is a bound environment. It owns the addresses it allocated.
type Env struct {
	helper *tapi.Helper
	logger logging.Logger

	nets   map[string]*Net
	hosts  map[string]*Host
	ifs    map[string]*Iface
	pcos   map[string]*PCO
	addrs  map[string]*Addr
	order  []*Addr
	bound  []*Iface
	alien  byte
	closed bool
}

// Option configures Get
type Option func(*Env)

// WithLogger sets the logger; the default discards everything
func WithLogger(l logging.Logger) Option {
	return func(e *Env) {
		if l != nil {
			e.logger = l
		}
	}
}

// Get parses description cfg, binds it to the nets of the tree and
// allocates the requested addresses. A description that cannot be
// bound fails with environment-mismatch.
func Get(ctx context.Context, h *tapi.Helper, cfg string, opts ...Option) (*Env, error) {
	spec, err := Parse(cfg)
	if err != nil {
		return nil, err
	}
	e := &Env{
		helper: h,
		logger: &logging.NoOpLogger{},
		nets:   map[string]*Net{},
		hosts:  map[string]*Host{},
		ifs:    map[string]*Iface{},
		pcos:   map[string]*PCO{},
		addrs:  map[string]*Addr{},
	}
	for _, opt := range opts {
		opt(e)
	}

	cnets, err := readNets(ctx, h.Tree())
	if err != nil {
		return nil, err
	}
	if len(cnets) < len(spec.Nets) {
		return nil, cfgerr.New(cfgerr.ModuleEnv, cfgerr.EnvMismatch, "%d nets required, %d available", len(spec.Nets), len(cnets))
	}

	b := newBinder(spec, cnets)
	if !b.bind(0) {
		e.logger.Error(ctx, "failed to bind environment to the available nets", "env", cfg)
		return nil, cfgerr.New(cfgerr.ModuleEnv, cfgerr.EnvMismatch, "cannot bind environment to the available nets")
	}

	if err := e.prepare(ctx, b); err != nil {
		if ferr := e.Free(ctx); ferr != nil {
			e.logger.Warn(ctx, "failed to release partially prepared environment", "error", ferr)
		}
		return nil, err
	}
	return e, nil
}

func (e *Env) prepare(ctx context.Context, b *binder) error {
	nets := map[*NetSpec]*Net{}
	for i, ns := range b.spec.Nets {
		cn := b.cnets[b.netOf[ns]]
		n := &Net{Name: ns.Name, OID: cn.oid, spec: ns, subnet4: cfgtype.InvalidHandle, subnet6: cfgtype.InvalidHandle}
		var err error
		if n.subnet4, n.Subnet4, err = e.subnetOf(ctx, cn.subnet4); err != nil {
			return err
		}
		if n.subnet6, n.Subnet6, err = e.subnetOf(ctx, cn.subnet6); err != nil {
			return err
		}
		nets[ns] = n
		name := ns.Name
		if name == "" {
			name = anonName("net", i)
		}
		e.nets[name] = n
	}

	hosts := map[string]*Host{}
	for i, bi := range b.ifs {
		node := b.cnets[bi.net].nodes[bi.node]
		ta, err := oid.InstName(node.value, 1)
		if err != nil {
			return cfgerr.Wrap(cfgerr.ModuleEnv, cfgerr.InvalidArgument, err, "node %s", node.oid)
		}
		o, err := oid.Parse(node.value)
		if err != nil {
			return cfgerr.Wrap(cfgerr.ModuleEnv, cfgerr.InvalidArgument, err, "node %s", node.oid)
		}

		key := bi.spec.Name
		if key == "" {
			key = anonName("host", i)
		}
		host, ok := hosts[key]
		if !ok {
			host = &Host{Name: bi.spec.Name, TA: ta}
			hosts[key] = host
			e.hosts[key] = host
		}
		iface := &Iface{
			Name:   bi.spec.If,
			Net:    nets[bi.netSpec],
			Host:   host,
			Node:   node.oid,
			OID:    node.value,
			IfName: o.Last().Name,
			spec:   bi.spec,
		}
		e.bound = append(e.bound, iface)
		if iface.Name != "" {
			e.ifs[iface.Name] = iface
		}
		for _, ps := range bi.spec.PCOs {
			pco := &PCO{Name: ps.Name, Type: ps.Type, Host: host}
			host.PCOs = append(host.PCOs, pco)
			e.pcos[pco.Name] = pco
		}
		e.logger.Debug(ctx, "host interface bound", "host", key, "net", iface.Net.OID, "node", node.oid)
	}

	for _, iface := range e.bound {
		for _, as := range iface.spec.Addrs {
			a, err := e.addAddress(ctx, iface, as)
			if err != nil {
				return err
			}
			e.addrs[a.Name] = a
		}
	}
	return nil
}

func anonName(kind string, i int) string {
	return "#" + kind + strconv.Itoa(i)
}

// subnetOf resolves the /net_pool entry a subnet instance refers to
func (e *Env) subnetOf(ctx context.Context, s string) (cfgtype.Handle, netip.Prefix, error) {
	if s == "" {
		return cfgtype.InvalidHandle, netip.Prefix{}, nil
	}
	h, err := e.helper.Tree().Find(ctx, s)
	if err != nil {
		return cfgtype.InvalidHandle, netip.Prefix{}, err
	}
	_, p, err := e.helper.Subnet(ctx, h)
	if err != nil {
		return cfgtype.InvalidHandle, netip.Prefix{}, err
	}
	return h, p, nil
}

func (e *Env) addAddress(ctx context.Context, iface *Iface, as AddrSpec) (*Addr, error) {
	a := &Addr{Name: as.Name, Family: as.Family, Kind: as.Kind, Iface: iface, entry: cfgtype.InvalidHandle}
	e.order = append(e.order, a)
	ta := iface.Host.TA

	if as.Family == FamilyEther {
		switch as.Kind {
		case Unicast:
			hw, err := e.helper.LinkAddr(ctx, ta, iface.IfName)
			if err != nil {
				return nil, err
			}
			a.HW = hw
		case FakeUnicast:
			e.alien++
			a.HW = net.HardwareAddr{0x02, 0x00, 0x00, 0xa1, 0x1e, e.alien}
		case Broadcast:
			a.HW = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
		case Multicast:
			a.HW = net.HardwareAddr{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01}
		}
		return a, nil
	}

	subnet, p := iface.Net.subnet4, iface.Net.Subnet4
	if as.Family == FamilyInet6 {
		subnet, p = iface.Net.subnet6, iface.Net.Subnet6
	}

	switch as.Kind {
	case Multicast:
		if as.Family == FamilyInet6 {
			a.IP = netip.MustParseAddr("ff02::1")
		} else {
			a.IP = netip.MustParseAddr("224.0.0.1")
		}
		return a, nil
	case Broadcast:
		if as.Family == FamilyInet6 {
			return nil, cfgerr.New(cfgerr.ModuleEnv, cfgerr.InvalidArgument, "address %q: inet6 has no broadcast", as.Name)
		}
	}

	if !subnet.IsValid() {
		return nil, cfgerr.New(cfgerr.ModuleEnv, cfgerr.EnvMismatch, "net %s has no %s subnet for address %q", iface.Net.OID, as.Family, as.Name)
	}
	a.Prefix = p.Bits()

	if as.Kind == Broadcast {
		a.IP = netipx.PrefixLastIP(p)
		return a, nil
	}

	entry, ip, err := e.helper.AllocNetAddr(ctx, subnet)
	if err != nil {
		return nil, err
	}
	a.entry, a.IP = entry, ip
	if as.Kind == FakeUnicast {
		return a, nil
	}

	h, err := e.helper.AddIfAddr(ctx, ta, iface.IfName, netip.PrefixFrom(ip, p.Bits()))
	if err != nil {
		return nil, err
	}
	// an address configured before is left in place by Free
	a.assigned = h.IsValid()
	e.logger.Info(ctx, "address assigned", "agent", ta, "interface", iface.IfName, "address", ip.String())
	return a, nil
}

// Free removes assigned addresses and returns allocated ones to their
// subnets. Errors are collected; Free keeps going after a failure.
func (e *Env) Free(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	for _, a := range slices.Backward(e.order) {
		if a.assigned {
			if derr := e.helper.DelIfAddr(ctx, a.Iface.Host.TA, a.Iface.IfName, a.IP); derr != nil && !cfgerr.IsKind(derr, cfgerr.NotFound) {
				err = multierr.Append(err, derr)
			}
			a.assigned = false
		}
		if a.entry.IsValid() {
			err = multierr.Append(err, e.helper.FreeNetAddr(ctx, &a.entry))
		}
	}
	return err
}

// Net returns a bound net by name
func (e *Env) Net(name string) (*Net, error) {
	return lookup(e.nets, "net", name)
}

// Host returns a bound host by name
func (e *Env) Host(name string) (*Host, error) {
	return lookup(e.hosts, "host", name)
}

// If returns a bound interface by name
func (e *Env) If(name string) (*Iface, error) {
	return lookup(e.ifs, "interface", name)
}

// PCO returns a PCO by name
func (e *Env) PCO(name string) (*PCO, error) {
	return lookup(e.pcos, "PCO", name)
}

// Addr returns an address by name
func (e *Env) Addr(name string) (*Addr, error) {
	return lookup(e.addrs, "address", name)
}

// Ifaces returns every bound interface in description order
func (e *Env) Ifaces() []*Iface {
	return slices.Clone(e.bound)
}

// NetsCount returns the number of declarative nets
func (e *Env) NetsCount() int {
	return len(e.nets)
}

func lookup[T any](m map[string]*T, what, name string) (*T, error) {
	v, ok := m[name]
	if !ok {
		return nil, cfgerr.New(cfgerr.ModuleEnv, cfgerr.NotFound, "%s %q is not in the environment", what, name)
	}
	return v, nil
}
