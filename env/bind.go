// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package env

import (
	"context"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
	"github.com/netascode/go-confapi/tapi"
)

type cfgNode struct {
	oid   string
	value string
	ta    string
	typ   NodeType
}

type cfgNet struct {
	oid     string
	nodes   []cfgNode
	subnet4 string
	subnet6 string
}

// readNets reads the concrete nets registered under /net
func readNets(ctx context.Context, tree tapi.Tree) ([]cfgNet, error) {
	nets, err := tree.FindPattern(ctx, "/net:*")
	if err != nil {
		return nil, err
	}
	out := make([]cfgNet, 0, len(nets))
	for _, nh := range nets {
		s, err := tree.OID(ctx, nh)
		if err != nil {
			return nil, err
		}
		n := cfgNet{oid: s}

		nodes, err := tree.FindPattern(ctx, s+"/node:*")
		if err != nil {
			return nil, err
		}
		for _, h := range nodes {
			node, err := readNode(ctx, tree, h)
			if err != nil {
				return nil, err
			}
			n.nodes = append(n.nodes, node)
		}

		if n.subnet4, err = firstString(ctx, tree, s+"/ip4_subnet:*"); err != nil {
			return nil, err
		}
		if n.subnet6, err = firstString(ctx, tree, s+"/ip6_subnet:*"); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func readNode(ctx context.Context, tree tapi.Tree, h cfgtype.Handle) (cfgNode, error) {
	s, err := tree.OID(ctx, h)
	if err != nil {
		return cfgNode{}, err
	}
	v, err := tree.Get(ctx, h)
	if err != nil {
		return cfgNode{}, err
	}
	if v.Type() != cfgtype.TypeString {
		return cfgNode{}, cfgerr.New(cfgerr.ModuleEnv, cfgerr.WrongType, "node %s is %s, not string", s, v.Type())
	}
	ta, err := oid.InstName(v.AsString(), 1)
	if err != nil {
		return cfgNode{}, cfgerr.Wrap(cfgerr.ModuleEnv, cfgerr.InvalidArgument, err, "value of node %s", s)
	}
	t, err := tree.GetByOID(ctx, s+"/type:")
	if err != nil {
		return cfgNode{}, err
	}
	typ := NodeType(t.AsInt())
	if typ < NodeTester || typ >= NodeInvalid {
		return cfgNode{}, cfgerr.New(cfgerr.ModuleEnv, cfgerr.InvalidArgument, "node %s has unknown type %d", s, typ)
	}
	return cfgNode{oid: s, value: v.AsString(), ta: ta, typ: typ}, nil
}

func firstString(ctx context.Context, tree tapi.Tree, pattern string) (string, error) {
	hs, err := tree.FindPattern(ctx, pattern)
	if err != nil || len(hs) == 0 {
		return "", err
	}
	v, err := tree.Get(ctx, hs[0])
	if err != nil {
		return "", err
	}
	return v.AsString(), nil
}

// boundIf is one host appearance to place on a (net, node) pair
type boundIf struct {
	netSpec *NetSpec
	spec    *HostSpec
	net     int
	node    int
}

type binder struct {
	spec  *Config
	cnets []cfgNet
	ifs   []*boundIf
	netOf map[*NetSpec]int
	used  map[[2]int]bool
	// pcos are the PCOs of each named host over all its appearances
	pcos map[string][]PCOSpec
}

func newBinder(spec *Config, cnets []cfgNet) *binder {
	b := &binder{
		spec:  spec,
		cnets: cnets,
		netOf: map[*NetSpec]int{},
		used:  map[[2]int]bool{},
		pcos:  map[string][]PCOSpec{},
	}
	for _, ns := range spec.Nets {
		for _, hs := range ns.Hosts {
			b.ifs = append(b.ifs, &boundIf{netSpec: ns, spec: hs, net: -1, node: -1})
			if hs.Name != "" {
				b.pcos[hs.Name] = append(b.pcos[hs.Name], hs.PCOs...)
			}
		}
	}
	return b
}

func (b *binder) hostPCOs(bi *boundIf) []PCOSpec {
	if bi.spec.Name == "" {
		return bi.spec.PCOs
	}
	return b.pcos[bi.spec.Name]
}

// bind places b.ifs[k:] by depth-first search over unused nodes
func (b *binder) bind(k int) bool {
	if k == len(b.ifs) {
		return true
	}
	bi := b.ifs[k]
	for i := range b.cnets {
		if !netTypeMatches(b.cnets[i], bi.netSpec.Type) {
			continue
		}
		for j := range b.cnets[i].nodes {
			if b.used[[2]int{i, j}] {
				continue
			}
			if !b.nodeMatchesPCOs(i, j, b.hostPCOs(bi)) {
				continue
			}
			if b.conflicts(k, i, j) {
				continue
			}
			bi.net, bi.node = i, j
			b.used[[2]int{i, j}] = true
			prev, hadNet := b.netOf[bi.netSpec]
			b.netOf[bi.netSpec] = i
			if b.bind(k + 1) {
				return true
			}
			delete(b.used, [2]int{i, j})
			if hadNet {
				b.netOf[bi.netSpec] = prev
			} else {
				delete(b.netOf, bi.netSpec)
			}
			bi.net, bi.node = -1, -1
		}
	}
	return false
}

// conflicts checks placing b.ifs[k] on node j of net i against the
// appearances placed before it
func (b *binder) conflicts(k, i, j int) bool {
	bi := b.ifs[k]
	ta := b.cnets[i].nodes[j].ta
	for _, p := range b.ifs[:k] {
		if p.netSpec == bi.netSpec && p.net != i {
			return true
		}
		oneHost := bi.spec.Name != "" && bi.spec.Name == p.spec.Name
		oneTA := ta == b.cnets[p.net].nodes[p.node].ta
		if oneHost != oneTA && (bi.spec.Name != "" || p.spec.Name != "") {
			return true
		}
	}
	return false
}

// netTypeMatches reports whether a concrete net suits a declarative net
// of type t. A net with at least one NUT node is an IUT net.
func netTypeMatches(n cfgNet, t Type) bool {
	iut := false
	for _, node := range n.nodes {
		if node.typ == NodeNUT {
			iut = true
			break
		}
	}
	switch t {
	case TypeUnspec:
		return true
	case TypeIUT:
		return iut
	case TypeTester:
		return !iut
	}
	return false
}

// pcosType folds the PCO types of a host: tester PCOs go anywhere, IUT
// and IUT_peer PCOs may not share a host
func pcosType(pcos []PCOSpec) Type {
	t := TypeTester
	for _, p := range pcos {
		switch t {
		case TypeTester:
			t = p.Type
		case TypeIUT, TypeIUTPeer:
			if p.Type != t && p.Type != TypeTester {
				return TypeInvalid
			}
		}
	}
	return t
}

// taType is the role of the agent behind node j of net i over every
// net it appears in
func (b *binder) taType(i, j int) NodeType {
	node := b.cnets[i].nodes[j]
	t := node.typ
	for ni, n := range b.cnets {
		for nj, other := range n.nodes {
			if (ni == i && nj == j) || other.ta != node.ta || other.typ == NodeTester {
				continue
			}
			switch {
			case t == NodeTester:
				t = other.typ
			case t != other.typ:
				return NodeInvalid
			}
		}
	}
	return t
}

func (b *binder) nodeMatchesPCOs(i, j int, pcos []PCOSpec) bool {
	switch pcosType(pcos) {
	case TypeTester:
		return true
	case TypeIUT:
		return b.taType(i, j) == NodeNUT
	case TypeIUTPeer:
		return b.taType(i, j) == NodeNUTPeer
	}
	return false
}
