// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// MainTable is the routing table routes land in unless told otherwise
const MainTable = 254

// Route describes an entry of an agent routing table. Zero values of
// the optional fields mean "not set".
type Route struct {
	Dst      netip.Prefix
	Gateway  netip.Addr
	Src      netip.Addr
	Dev      string
	Type     string
	Metric   int
	TOS      int
	Table    int
	Win      int
	MTU      int
	IRTT     int
	Hoplimit int
}

type routeOp int

const (
	routeAdd routeOp = iota
	routeDelete
	routeGet
	routeModify
)

func (op routeOp) String() string {
	return [...]string{"add", "delete", "get", "modify"}[op]
}

// RouteKey returns the instance name of r:
// <dst>|<prefix>[,metric=N][,tos=N][,table=N]. A destination with host
// bits set is masked. IPv6 routes get metric 1 when none is given.
func RouteKey(r Route) (string, error) {
	if !r.Dst.IsValid() {
		return "", cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "invalid route destination %v", r.Dst)
	}
	dst := r.Dst.Masked()
	metric := r.Metric
	if dst.Addr().Is6() && metric < 1 {
		metric = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d", dst.Addr(), dst.Bits())
	if metric > 0 {
		fmt.Fprintf(&b, ",metric=%d", metric)
	}
	if r.TOS > 0 {
		fmt.Fprintf(&b, ",tos=%d", r.TOS)
	}
	if r.Table != 0 && r.Table != MainTable {
		fmt.Fprintf(&b, ",table=%d", r.Table)
	}
	return b.String(), nil
}

// ParseRouteKey parses an instance name built by RouteKey into the
// key fields of a Route. Table defaults to MainTable.
func ParseRouteKey(name string) (Route, error) {
	r := Route{Table: MainTable}
	dst, rest, ok := strings.Cut(name, "|")
	if !ok {
		return r, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "route %q has no prefix length", name)
	}
	addr, err := netip.ParseAddr(dst)
	if err != nil {
		return r, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, err, "destination of route %q", name)
	}
	fields := strings.Split(rest, ",")
	bits, err := strconv.Atoi(fields[0])
	if err != nil {
		return r, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, err, "prefix length of route %q", name)
	}
	if r.Dst, err = addr.Prefix(bits); err != nil {
		return r, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, err, "prefix length of route %q", name)
	}
	for _, f := range fields[1:] {
		k, v, _ := strings.Cut(f, "=")
		n, err := strconv.Atoi(v)
		if err != nil {
			return r, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, err, "%s of route %q", k, name)
		}
		switch k {
		case "metric":
			r.Metric = n
		case "tos":
			r.TOS = n
		case "table":
			r.Table = n
		default:
			return r, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "unknown attribute %q of route %q", k, name)
		}
	}
	return r, nil
}

// AddRoute adds r to the routing table of agent ta and returns the
// handle of the route instance. When any attribute cannot be set the
// half-built route is removed.
func (t *Helper) AddRoute(ctx context.Context, ta string, r Route) (cfgtype.Handle, error) {
	return t.route(ctx, routeAdd, ta, &r)
}

// ModifyRoute replaces the gateway and attributes of an existing route
func (t *Helper) ModifyRoute(ctx context.Context, ta string, r Route) error {
	_, err := t.route(ctx, routeModify, ta, &r)
	return err
}

// DelRoute removes the route with the key fields of r
func (t *Helper) DelRoute(ctx context.Context, ta string, r Route) error {
	_, err := t.route(ctx, routeDelete, ta, &r)
	return err
}

// DelRouteByHandle removes the route instance h
func (t *Helper) DelRouteByHandle(ctx context.Context, h cfgtype.Handle) error {
	if !h.IsValid() {
		return cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "invalid route handle")
	}
	return t.tree.Delete(ctx, h, false)
}

// GetRoute reads the route with the key fields of r
func (t *Helper) GetRoute(ctx context.Context, ta string, r Route) (Route, error) {
	_, err := t.route(ctx, routeGet, ta, &r)
	return r, err
}

// RouteTable returns the routes of agent ta in family f
func (t *Helper) RouteTable(ctx context.Context, ta string, f Family) ([]Route, error) {
	if err := t.syncf(ctx, true, "/agent:%s", ta); err != nil {
		return nil, err
	}
	keys, err := t.names(ctx, "/agent:%s/route:*", ta)
	if err != nil {
		return nil, err
	}
	var routes []Route
	for _, key := range keys {
		r, err := ParseRouteKey(key)
		if err != nil {
			return nil, err
		}
		if FamilyOf(r.Dst.Addr()) != f {
			continue
		}
		if err := t.readRoute(ctx, ta, key, &r); err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

func (t *Helper) route(ctx context.Context, op routeOp, ta string, r *Route) (cfgtype.Handle, error) {
	if r.Dst.IsValid() && r.Dst.Masked() != r.Dst {
		t.logger.Warn(ctx, "route destination is not cleared according to the prefix",
			"destination", r.Dst.String(), "used", r.Dst.Masked().String())
	}
	key, err := RouteKey(*r)
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	if r.Dst.Addr().Is6() && r.Metric < 1 {
		t.logger.Warn(ctx, "IPv6 route metric set to 1", "route", key)
		r.Metric = 1
	}
	r.Dst = r.Dst.Masked()
	base := fmt.Sprintf("/agent:%s/route:%s", ta, key)

	switch op {
	case routeAdd:
		h, err := t.tree.AddLocal(ctx, base, t.gateway(*r))
		if err != nil {
			return cfgtype.InvalidHandle, err
		}
		err = t.stageRoute(ctx, base, *r, false)
		if err == nil {
			err = t.tree.Commit(ctx, base)
		}
		if err != nil {
			t.logger.Error(ctx, "failed to add route", "route", base, "error", err)
			if derr := t.tree.DeleteByOID(ctx, base, true); derr != nil && !cfgerr.IsKind(derr, cfgerr.NotFound) {
				t.logger.Warn(ctx, "failed to remove half-built route", "route", base, "error", derr)
			}
			return cfgtype.InvalidHandle, err
		}
		return h, nil

	case routeModify:
		h, err := t.tree.Find(ctx, base)
		if err != nil {
			return cfgtype.InvalidHandle, err
		}
		if err := t.tree.SetLocalByOID(ctx, base, t.gateway(*r)); err != nil {
			return cfgtype.InvalidHandle, err
		}
		if err := t.stageRoute(ctx, base, *r, true); err != nil {
			return cfgtype.InvalidHandle, err
		}
		return h, t.tree.Commit(ctx, base)

	case routeDelete:
		return cfgtype.InvalidHandle, t.tree.DeleteByOID(ctx, base, false)

	case routeGet:
		h, err := t.tree.Find(ctx, base)
		if err != nil {
			return cfgtype.InvalidHandle, err
		}
		return h, t.readRoute(ctx, ta, key, r)
	}
	return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "unknown route operation %d", op)
}

func (t *Helper) gateway(r Route) cfgtype.Value {
	if !r.Gateway.IsValid() {
		return cfgtype.Addr(cfgtype.Address{})
	}
	return cfgtype.IP(r.Gateway)
}

// stageRoute sets the attributes of a route locally. Integer
// attributes are only set when non-zero unless all is given.
func (t *Helper) stageRoute(ctx context.Context, base string, r Route, all bool) error {
	if r.Dev != "" {
		if err := t.tree.SetLocalByOID(ctx, base+"/dev:", cfgtype.Str(r.Dev)); err != nil {
			return err
		}
	}
	if r.Src.IsValid() {
		if err := t.tree.SetLocalByOID(ctx, base+"/src:", cfgtype.IP(r.Src)); err != nil {
			return err
		}
	}
	if r.Type != "" {
		if err := t.tree.SetLocalByOID(ctx, base+"/type:", cfgtype.Str(r.Type)); err != nil {
			return err
		}
	}
	for _, attr := range []struct {
		name  string
		value int
	}{
		{"win", r.Win},
		{"mtu", r.MTU},
		{"irtt", r.IRTT},
		{"hoplimit", r.Hoplimit},
	} {
		if attr.value == 0 && !all {
			continue
		}
		if err := t.tree.SetLocalByOID(ctx, base+"/"+attr.name+":", cfgtype.Int(attr.value)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Helper) readRoute(ctx context.Context, ta, key string, r *Route) error {
	base := fmt.Sprintf("/agent:%s/route:%s", ta, key)
	gw, err := t.getAddr(ctx, "%s", base)
	if err != nil {
		return err
	}
	r.Gateway = gw.IP()
	if r.Dev, err = t.getString(ctx, "%s/dev:", base); err != nil {
		return err
	}
	src, err := t.getAddr(ctx, "%s/src:", base)
	if err != nil {
		return err
	}
	r.Src = src.IP()
	if r.Type, err = t.getString(ctx, "%s/type:", base); err != nil {
		return err
	}
	for _, attr := range []struct {
		name string
		dst  *int
	}{
		{"win", &r.Win},
		{"mtu", &r.MTU},
		{"irtt", &r.IRTT},
		{"hoplimit", &r.Hoplimit},
	} {
		if *attr.dst, err = t.getInt(ctx, "%s/%s:", base, attr.name); err != nil {
			return err
		}
	}
	return nil
}
