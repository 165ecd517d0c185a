// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confapi

import (
	"context"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/internal/wire"
)

// CreateBackup snapshots the whole tree and returns the name of the
// snapshot. The caller owns the name and must release it with
// ReleaseBackup.
func (c *Client) CreateBackup(ctx context.Context) (string, error) {
	res, err := c.command(ctx, wire.NewOptions(wire.OpBackupCreate))
	if err != nil {
		return "", err
	}
	if res.Name == "" {
		return "", cfgerr.New(cfgerr.ModuleAPI, cfgerr.Internal, "backup created without a name")
	}
	return res.Name, nil
}

// VerifyBackup fails with backup-mismatch unless the tree equals the
// snapshot
func (c *Client) VerifyBackup(ctx context.Context, name string) error {
	return c.backupCommand(ctx, wire.OpBackupVerify, name)
}

// RestoreBackup returns the tree to the snapshot, pushing the
// differences to the agents
func (c *Client) RestoreBackup(ctx context.Context, name string) error {
	return c.backupCommand(ctx, wire.OpBackupRestore, name)
}

// ReleaseBackup drops the snapshot and clears *name. Releasing an
// empty name is a no-op.
func (c *Client) ReleaseBackup(ctx context.Context, name *string) error {
	if name == nil || *name == "" {
		return nil
	}
	if err := c.backupCommand(ctx, wire.OpBackupRelease, *name); err != nil {
		return err
	}
	*name = ""
	return nil
}

func (c *Client) backupCommand(ctx context.Context, op, name string) error {
	if name == "" {
		return cfgerr.New(cfgerr.ModuleAPI, cfgerr.InvalidArgument, "%s: empty backup name", op)
	}
	o := wire.NewOptions(op)
	o.Name = name
	_, err := c.command(ctx, o)
	return err
}
