// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// CPU identifies a hardware thread by its position in the topology
type CPU struct {
	Node   int
	CPU    int
	Core   int
	Thread int
}

// OID returns the thread instance of c on agent ta
func (c CPU) OID(ta string) string {
	return fmt.Sprintf("/agent:%s/hardware:/node:%d/cpu:%d/core:%d/thread:%d", ta, c.Node, c.CPU, c.Core, c.Thread)
}

// rsrcName returns the name of the resource reserving c
func (c CPU) rsrcName() string {
	return fmt.Sprintf("cpu_%d_%d_%d_%d", c.Node, c.CPU, c.Core, c.Thread)
}

func (c CPU) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", c.Node, c.CPU, c.Core, c.Thread)
}

// CPUProp selects threads by property
type CPUProp struct {
	Isolated bool
}

// CPUs returns the hardware threads of agent ta in topology order
func (t *Helper) CPUs(ctx context.Context, ta string) ([]CPU, error) {
	hs, err := t.tree.FindPattern(ctx, fmt.Sprintf("/agent:%s/hardware:/node:*/cpu:*/core:*/thread:*", ta))
	if err != nil {
		return nil, err
	}
	cpus := make([]CPU, 0, len(hs))
	for _, h := range hs {
		s, err := t.tree.OID(ctx, h)
		if err != nil {
			return nil, err
		}
		c, err := parseCPU(s)
		if err != nil {
			return nil, err
		}
		cpus = append(cpus, c)
	}
	return cpus, nil
}

func parseCPU(s string) (CPU, error) {
	o, err := oid.Parse(s)
	if err != nil {
		return CPU{}, err
	}
	if o.Len() != 6 {
		return CPU{}, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "%s is not a CPU thread", s)
	}
	var ids [4]int
	for i := range ids {
		if ids[i], err = strconv.Atoi(o.Name(i + 3)); err != nil {
			return CPU{}, cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, err, "CPU thread %s", s)
		}
	}
	return CPU{Node: ids[0], CPU: ids[1], Core: ids[2], Thread: ids[3]}, nil
}

// CPUIsolated reports whether thread c is isolated from the scheduler
func (t *Helper) CPUIsolated(ctx context.Context, ta string, c CPU) (bool, error) {
	v, err := t.getInt(ctx, "%s/isolated:", c.OID(ta))
	return v != 0, err
}

// GrabCPU reserves thread c on agent ta. A thread reserved already
// fails with busy.
func (t *Helper) GrabCPU(ctx context.Context, ta string, c CPU) error {
	if _, err := t.tree.Find(ctx, c.OID(ta)); err != nil {
		return err
	}
	_, err := t.addf(ctx, cfgtype.Str(c.OID(ta)), "/agent:%s/rsrc:%s", ta, c.rsrcName())
	if cfgerr.IsKind(err, cfgerr.AlreadyExists) || cfgerr.IsKind(err, cfgerr.PermissionDenied) {
		return cfgerr.Wrap(cfgerr.ModuleTAPI, cfgerr.Busy, err, "CPU %s of %s is in use", c, ta)
	}
	if err == nil {
		t.logger.Debug(ctx, "CPU grabbed", "agent", ta, "cpu", c.String())
	}
	return err
}

// GrabCPUByProp reserves the first free thread of ta matching prop.
// Fails with no-entry when none is left.
func (t *Helper) GrabCPUByProp(ctx context.Context, ta string, prop CPUProp) (CPU, error) {
	cpus, err := t.CPUs(ctx, ta)
	if err != nil {
		return CPU{}, err
	}
	for _, c := range cpus {
		if prop.Isolated {
			iso, err := t.CPUIsolated(ctx, ta, c)
			if err != nil {
				return CPU{}, err
			}
			if !iso {
				continue
			}
		}
		err := t.GrabCPU(ctx, ta, c)
		if cfgerr.IsKind(err, cfgerr.Busy) {
			continue
		}
		return c, err
	}
	return CPU{}, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.NoEntry, "no free CPU on %s", ta)
}

// ReleaseCPU drops the reservation of thread c
func (t *Helper) ReleaseCPU(ctx context.Context, ta string, c CPU) error {
	return t.deletef(ctx, false, "/agent:%s/rsrc:%s", ta, c.rsrcName())
}
