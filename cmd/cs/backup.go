// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	confapi "github.com/netascode/go-confapi"
	"github.com/netascode/go-confapi/cfgerr"
)

func newBackupCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage tree snapshots",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Snapshot the tree and print the backup name",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withClient(v, func(c *confapi.Client) error {
					name, err := c.CreateBackup(cmd.Context())
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), name)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "verify <name>",
			Short: "Compare the tree with a backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(v, func(c *confapi.Client) error {
					err := c.VerifyBackup(cmd.Context(), args[0])
					if cfgerr.IsKind(err, cfgerr.BackupMismatch) {
						fmt.Fprintln(cmd.OutOrStdout(), failure.Sprint("differs")) //nolint:errcheck
						return err
					}
					if err != nil {
						return err
					}
					return done(cmd, "matches")
				})
			},
		},
		&cobra.Command{
			Use:   "restore <name>",
			Short: "Return the tree to a backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(v, func(c *confapi.Client) error {
					if err := c.RestoreBackup(cmd.Context(), args[0]); err != nil {
						return err
					}
					return done(cmd, "restored %s", args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "release <name>",
			Short: "Drop a backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(v, func(c *confapi.Client) error {
					name := args[0]
					if err := c.ReleaseBackup(cmd.Context(), &name); err != nil {
						return err
					}
					return done(cmd, "released %s", args[0])
				})
			},
		},
	)
	return cmd
}
