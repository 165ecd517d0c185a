// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// NetEm parameter names
const (
	NetemDelay     = "delay"
	NetemJitter    = "jitter"
	NetemLoss      = "loss"
	NetemDuplicate = "duplicate"
	NetemReorder   = "reorder"
	NetemCorrupt   = "corrupt"
	NetemLimit     = "limit"
)

// QdiscNetem is the qdisc kind emulating network properties
const QdiscNetem = "netem"

func qdiscOID(ta, ifname string) string {
	return ifOID(ta, ifname) + "/tc:/qdisc:"
}

// SetQdiscKind selects the root qdisc of an interface
func (t *Helper) SetQdiscKind(ctx context.Context, ta, ifname, kind string) error {
	return t.setf(ctx, cfgtype.Str(kind), "%s/kind:", qdiscOID(ta, ifname))
}

// QdiscKind returns the root qdisc kind of an interface
func (t *Helper) QdiscKind(ctx context.Context, ta, ifname string) (string, error) {
	return t.getString(ctx, "%s/kind:", qdiscOID(ta, ifname))
}

// EnableQdisc switches the root qdisc of an interface on or off
func (t *Helper) EnableQdisc(ctx context.Context, ta, ifname string, on bool) error {
	return t.setf(ctx, cfgtype.Int(boolInt(on)), "%s/enabled:", qdiscOID(ta, ifname))
}

// QdiscEnabled reports whether the root qdisc of an interface is on
func (t *Helper) QdiscEnabled(ctx context.Context, ta, ifname string) (bool, error) {
	v, err := t.getInt(ctx, "%s/enabled:", qdiscOID(ta, ifname))
	return v != 0, err
}

// SetNetemParam sets a qdisc parameter, adding it when missing
func (t *Helper) SetNetemParam(ctx context.Context, ta, ifname, param, value string) error {
	s := fmt.Sprintf("%s/param:%s", qdiscOID(ta, ifname), param)
	err := t.tree.SetByOID(ctx, s, cfgtype.Str(value))
	if cfgerr.IsKind(err, cfgerr.NotFound) {
		_, err = t.tree.Add(ctx, s, cfgtype.Str(value))
	}
	return err
}

// NetemParamValue returns a qdisc parameter
func (t *Helper) NetemParamValue(ctx context.Context, ta, ifname, param string) (string, error) {
	return t.getString(ctx, "%s/param:%s", qdiscOID(ta, ifname), param)
}

// SetNetemDelay sets the NetEm delay; the agent keeps microseconds
func (t *Helper) SetNetemDelay(ctx context.Context, ta, ifname string, d time.Duration) error {
	return t.SetNetemParam(ctx, ta, ifname, NetemDelay, strconv.FormatInt(d.Microseconds(), 10))
}

// NetemDelayValue returns the NetEm delay
func (t *Helper) NetemDelayValue(ctx context.Context, ta, ifname string) (time.Duration, error) {
	s, err := t.NetemParamValue(ctx, ta, ifname, NetemDelay)
	if err != nil {
		return 0, err
	}
	us, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.WrongType, err, "delay of %s on %s", ifname, ta)
	}
	return time.Duration(us) * time.Microsecond, nil
}

// SetNetemLoss sets the packet loss probability in percent
func (t *Helper) SetNetemLoss(ctx context.Context, ta, ifname string, percent float64) error {
	if percent < 0 || percent > 100 {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "loss %g%% out of range", percent)
	}
	return t.SetNetemParam(ctx, ta, ifname, NetemLoss, strconv.FormatFloat(percent, 'g', -1, 64))
}

// NetemLossValue returns the packet loss probability in percent
func (t *Helper) NetemLossValue(ctx context.Context, ta, ifname string) (float64, error) {
	s, err := t.NetemParamValue(ctx, ta, ifname, NetemLoss)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.WrongType, err, "loss of %s on %s", ifname, ta)
	}
	return v, nil
}
