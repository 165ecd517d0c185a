// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// VM describes a virtual machine to create
type VM struct {
	MemoryMB int
	CPUs     int
	// Drives are disk image files, attached in order as drive:0, drive:1...
	Drives []string
}

func vmOID(ta, name string) string {
	return fmt.Sprintf("/agent:%s/vm:%s", ta, name)
}

// AddVM creates virtual machine name on agent ta without starting it
func (t *Helper) AddVM(ctx context.Context, ta, name string, vm VM) (cfgtype.Handle, error) {
	base := vmOID(ta, name)
	h, err := t.tree.AddLocal(ctx, base, cfgtype.None())
	if err != nil {
		return cfgtype.InvalidHandle, err
	}
	err = t.stageVM(ctx, base, vm)
	if err == nil {
		err = t.tree.Commit(ctx, base)
	}
	if err != nil {
		if derr := t.tree.DeleteByOID(ctx, base, true); derr != nil && !cfgerr.IsKind(derr, cfgerr.NotFound) {
			t.logger.Warn(ctx, "failed to remove half-built VM", "vm", base, "error", derr)
		}
		return cfgtype.InvalidHandle, err
	}
	return h, nil
}

func (t *Helper) stageVM(ctx context.Context, base string, vm VM) error {
	if vm.MemoryMB > 0 {
		if err := t.tree.SetLocalByOID(ctx, base+"/memory:/size:", cfgtype.Int(vm.MemoryMB)); err != nil {
			return err
		}
	}
	if vm.CPUs > 0 {
		if err := t.tree.SetLocalByOID(ctx, base+"/cpu:/num:", cfgtype.Int(vm.CPUs)); err != nil {
			return err
		}
	}
	for i, file := range vm.Drives {
		drive := fmt.Sprintf("%s/drive:%d", base, i)
		if _, err := t.tree.AddLocal(ctx, drive, cfgtype.None()); err != nil {
			return err
		}
		if err := t.tree.SetLocalByOID(ctx, drive+"/file:", cfgtype.Str(file)); err != nil {
			return err
		}
	}
	return nil
}

// DelVM removes a virtual machine with its drives
func (t *Helper) DelVM(ctx context.Context, ta, name string) error {
	return t.tree.DeleteByOID(ctx, vmOID(ta, name), true)
}

// StartVM starts a virtual machine
func (t *Helper) StartVM(ctx context.Context, ta, name string) error {
	return t.setf(ctx, cfgtype.Int(1), "%s/status:", vmOID(ta, name))
}

// StopVM stops a virtual machine
func (t *Helper) StopVM(ctx context.Context, ta, name string) error {
	return t.setf(ctx, cfgtype.Int(0), "%s/status:", vmOID(ta, name))
}

// VMRunning reports whether a virtual machine is running
func (t *Helper) VMRunning(ctx context.Context, ta, name string) (bool, error) {
	v, err := t.getInt(ctx, "%s/status:", vmOID(ta, name))
	return v != 0, err
}

// AddVMDrive attaches a disk image to a virtual machine
func (t *Helper) AddVMDrive(ctx context.Context, ta, name, drive, file string) error {
	s := fmt.Sprintf("%s/drive:%s", vmOID(ta, name), drive)
	if _, err := t.tree.AddLocal(ctx, s, cfgtype.None()); err != nil {
		return err
	}
	if err := t.tree.SetLocalByOID(ctx, s+"/file:", cfgtype.Str(file)); err != nil {
		return err
	}
	return t.tree.Commit(ctx, s)
}
