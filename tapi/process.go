// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"
	"sort"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// Process describes a process an agent runs on request
type Process struct {
	Exe  string
	Args []string
	Env  map[string]string
}

func processOID(ta, name string) string {
	return fmt.Sprintf("/agent:%s/process:%s", ta, name)
}

// AddProcess creates process name on agent ta. Arguments become
// arg:1, arg:2...; environment variables env:<name>.
func (t *Helper) AddProcess(ctx context.Context, ta, name string, p Process) (cfgtype.Handle, error) {
	if p.Exe == "" {
		return cfgtype.InvalidHandle, cfgerr.New(cfgerr.ModuleTAPI, cfgerr.InvalidArgument, "process %s has no executable", name)
	}
	base := processOID(ta, name)
	h, err := t.tree.AddLocal(ctx, base, cfgtype.None())
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	err = t.stageProcess(ctx, base, p)
	if err == nil {
		err = t.tree.Commit(ctx, base)
	}
	if err != nil {
		if derr := t.tree.DeleteByOID(ctx, base, true); derr != nil && !cfgerr.IsKind(derr, cfgerr.NotFound) {
			t.logger.Warn(ctx, "failed to remove half-built process", "process", base, "error", derr)
		}
		return cfgtype.InvalidHandle, err
	}
	return h, nil
}

func (t *Helper) stageProcess(ctx context.Context, base string, p Process) error {
	if err := t.tree.SetLocalByOID(ctx, base+"/exe:", cfgtype.Str(p.Exe)); err != nil {
		return err
	}
	for i, arg := range p.Args {
		if _, err := t.tree.AddLocal(ctx, fmt.Sprintf("%s/arg:%d", base, i+1), cfgtype.Str(arg)); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := t.tree.AddLocal(ctx, fmt.Sprintf("%s/env:%s", base, k), cfgtype.Str(p.Env[k])); err != nil {
			return err
		}
	}
	return nil
}

// StartProcess starts a process
func (t *Helper) StartProcess(ctx context.Context, ta, name string) error {
	return t.setf(ctx, cfgtype.Int(1), "%s/status:", processOID(ta, name))
}

// StopProcess stops a process
func (t *Helper) StopProcess(ctx context.Context, ta, name string) error {
	return t.setf(ctx, cfgtype.Int(0), "%s/status:", processOID(ta, name))
}

// ProcessRunning reports whether a process is running
func (t *Helper) ProcessRunning(ctx context.Context, ta, name string) (bool, error) {
	v, err := t.getInt(ctx, "%s/status:", processOID(ta, name))
	return v != 0, err
}

// DelProcess removes a process with its arguments and environment
func (t *Helper) DelProcess(ctx context.Context, ta, name string) error {
	return t.tree.DeleteByOID(ctx, processOID(ta, name), true)
}
