// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// Autonegotiation states
const (
	AutonegUnknown = -1
	AutonegOff     = 0
	AutonegOn      = 1
)

// Duplex modes
const (
	DuplexHalf = "half"
	DuplexFull = "full"
)

// PhyState is the link state of a PHY
type PhyState int

const (
	PhyDown PhyState = 0
	PhyUp   PhyState = 1
)

// The admin setters stage their change; PhyCommit applies them.

// SetAutonegAdmin stages the autonegotiation mode of an interface
func (t *Helper) SetAutonegAdmin(ctx context.Context, ta, ifname string, mode int) error {
	if mode != AutonegOff && mode != AutonegOn {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "invalid autonegotiation mode %d", mode)
	}
	return t.setLocalf(ctx, cfgtype.Int(mode), "%s/phy:/autoneg_admin:", ifOID(ta, ifname))
}

// AutonegOper returns the negotiated autonegotiation mode
func (t *Helper) AutonegOper(ctx context.Context, ta, ifname string) (int, error) {
	return t.getInt(ctx, "%s/phy:/autoneg_oper:", ifOID(ta, ifname))
}

// SetDuplexAdmin stages the duplex mode of an interface
func (t *Helper) SetDuplexAdmin(ctx context.Context, ta, ifname, duplex string) error {
	if duplex != DuplexHalf && duplex != DuplexFull {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "invalid duplex %q", duplex)
	}
	return t.setLocalf(ctx, cfgtype.Str(duplex), "%s/phy:/duplex_admin:", ifOID(ta, ifname))
}

// DuplexOper returns the operational duplex mode
func (t *Helper) DuplexOper(ctx context.Context, ta, ifname string) (string, error) {
	return t.getString(ctx, "%s/phy:/duplex_oper:", ifOID(ta, ifname))
}

// SetSpeedAdmin stages the speed of an interface in Mbit/s
func (t *Helper) SetSpeedAdmin(ctx context.Context, ta, ifname string, speed int) error {
	if speed < 0 {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "invalid speed %d", speed)
	}
	return t.setLocalf(ctx, cfgtype.Int(speed), "%s/phy:/speed_admin:", ifOID(ta, ifname))
}

// SpeedOper returns the operational speed in Mbit/s
func (t *Helper) SpeedOper(ctx context.Context, ta, ifname string) (int, error) {
	return t.getInt(ctx, "%s/phy:/speed_oper:", ifOID(ta, ifname))
}

// PhyLinkState returns the link state of an interface
func (t *Helper) PhyLinkState(ctx context.Context, ta, ifname string) (PhyState, error) {
	v, err := t.getInt(ctx, "%s/phy:/state:", ifOID(ta, ifname))
	return PhyState(v), err
}

// PhyCommit applies the staged PHY settings of an interface
func (t *Helper) PhyCommit(ctx context.Context, ta, ifname string) error {
	return t.commitf(ctx, "%s/phy:", ifOID(ta, ifname))
}
