// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"

	"github.com/netascode/go-confapi/cfgtype"
)

func ovsOID(ta string) string {
	return fmt.Sprintf("/agent:%s/ovs:", ta)
}

// StartOVS starts Open vSwitch on agent ta
func (t *Helper) StartOVS(ctx context.Context, ta string) error {
	return t.setf(ctx, cfgtype.Int(1), "%s/status:", ovsOID(ta))
}

// StopOVS stops Open vSwitch on agent ta
func (t *Helper) StopOVS(ctx context.Context, ta string) error {
	return t.setf(ctx, cfgtype.Int(0), "%s/status:", ovsOID(ta))
}

// OVSRunning reports whether Open vSwitch runs on agent ta
func (t *Helper) OVSRunning(ctx context.Context, ta string) (bool, error) {
	v, err := t.getInt(ctx, "%s/status:", ovsOID(ta))
	return v != 0, err
}

// AddBridge creates an OVS bridge
func (t *Helper) AddBridge(ctx context.Context, ta, bridge string) (cfgtype.Handle, error) {
	return t.addf(ctx, cfgtype.None(), "%s/bridge:%s", ovsOID(ta), bridge)
}

// DelBridge removes an OVS bridge together with its ports
func (t *Helper) DelBridge(ctx context.Context, ta, bridge string) error {
	return t.deletef(ctx, true, "%s/bridge:%s", ovsOID(ta), bridge)
}

// Bridges returns the OVS bridges of agent ta
func (t *Helper) Bridges(ctx context.Context, ta string) ([]string, error) {
	return t.names(ctx, "%s/bridge:*", ovsOID(ta))
}

// AddBridgePort attaches port to an OVS bridge
func (t *Helper) AddBridgePort(ctx context.Context, ta, bridge, port string) (cfgtype.Handle, error) {
	return t.addf(ctx, cfgtype.None(), "%s/bridge:%s/port:%s", ovsOID(ta), bridge, port)
}

// DelBridgePort detaches port from an OVS bridge
func (t *Helper) DelBridgePort(ctx context.Context, ta, bridge, port string) error {
	return t.deletef(ctx, false, "%s/bridge:%s/port:%s", ovsOID(ta), bridge, port)
}

// BridgePorts returns the ports of an OVS bridge
func (t *Helper) BridgePorts(ctx context.Context, ta, bridge string) ([]string, error) {
	return t.names(ctx, "%s/bridge:%s/port:*", ovsOID(ta), bridge)
}
