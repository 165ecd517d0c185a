// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/netascode/go-confapi/confdb"
)

func newExportCommand(v *viper.Viper) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Apply the schema files and write the resulting tree as a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := confdb.Format(format)
			if f != confdb.FormatYAML && f != confdb.FormatTOML {
				return fmt.Errorf("unknown format %q", format)
			}
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			db, err := openTree(cmd.Context(), v, logger)
			if err != nil {
				return err
			}
			return db.WriteConfig(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&format, "format", string(confdb.FormatYAML), "output format (yaml or toml)")
	return cmd
}

func newPrintCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "print [prefix]",
		Short: "Apply the schema files and print the tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := "/:"
			if len(args) == 1 {
				prefix = args[0]
			}
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			db, err := openTree(cmd.Context(), v, logger)
			if err != nil {
				return err
			}
			out, err := db.Tree(prefix)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}
