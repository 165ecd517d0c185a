// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"

	"github.com/netascode/go-confapi/cfgtype"
)

func chainOID(ta, ifname, table, chain string) string {
	return fmt.Sprintf("%s/iptables:/table:%s/chain:%s", ifOID(ta, ifname), table, chain)
}

// AddChain creates a per-interface iptables chain in table
func (t *Helper) AddChain(ctx context.Context, ta, ifname, table, chain string) (cfgtype.Handle, error) {
	return t.tree.Add(ctx, chainOID(ta, ifname, table, chain), cfgtype.None())
}

// DelChain removes a per-interface iptables chain
func (t *Helper) DelChain(ctx context.Context, ta, ifname, table, chain string) error {
	return t.tree.DeleteByOID(ctx, chainOID(ta, ifname, table, chain), false)
}

// Chains returns the per-interface chains of table
func (t *Helper) Chains(ctx context.Context, ta, ifname, table string) ([]string, error) {
	return t.names(ctx, "%s/iptables:/table:%s/chain:*", ifOID(ta, ifname), table)
}

// SetChainRules replaces the rules of a chain; rules are in
// iptables-save syntax, one per line
func (t *Helper) SetChainRules(ctx context.Context, ta, ifname, table, chain, rules string) error {
	return t.setf(ctx, cfgtype.Str(rules), "%s/rules:", chainOID(ta, ifname, table, chain))
}

// ChainRules returns the rules of a chain
func (t *Helper) ChainRules(ctx context.Context, ta, ifname, table, chain string) (string, error) {
	return t.getString(ctx, "%s/rules:", chainOID(ta, ifname, table, chain))
}
