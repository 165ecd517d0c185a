// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	confapi "github.com/netascode/go-confapi"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

func newGetCommand(v *viper.Viper) *cobra.Command {
	var sync bool
	cmd := &cobra.Command{
		Use:   "get <pattern>...",
		Short: "Print the instances matching the patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(c *confapi.Client) error {
				ctx := cmd.Context()
				var insts []cfgtype.Instance
				for _, pattern := range args {
					hs, err := c.FindPattern(ctx, pattern)
					if err != nil {
						return err
					}
					for _, h := range hs {
						inst, err := c.GetInstance(ctx, h, sync)
						if err != nil {
							return err
						}
						insts = append(insts, inst)
					}
				}
				writeTable(cmd.OutOrStdout(), []string{"OID", "TYPE", "VALUE"}, instanceRows(insts))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "synchronize each instance with its agent first")
	return cmd
}

func newFindCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "find <pattern>",
		Short: "Print the handles of the matching objects or instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(c *confapi.Client) error {
				ctx := cmd.Context()
				hs, err := c.FindPattern(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(hs))
				for _, h := range hs {
					s, err := c.OID(ctx, h)
					if err != nil {
						return err
					}
					rows = append(rows, []string{h.String(), keys.Sprint(s)})
				}
				writeTable(cmd.OutOrStdout(), []string{"HANDLE", "OID"}, rows)
				return nil
			})
		},
	}
}

func newSetCommand(v *viper.Viper) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "set <oid> <value>",
		Short: "Change the value of an instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(c *confapi.Client) error {
				ctx := cmd.Context()
				h, err := c.Find(ctx, args[0])
				if err != nil {
					return err
				}
				obj, err := c.GetObject(ctx, h)
				if err != nil {
					return err
				}
				val, err := cfgtype.ParseValue(obj.Type, args[1])
				if err != nil {
					return err
				}
				if local {
					err = c.SetLocal(ctx, h, val)
				} else {
					err = c.Set(ctx, h, val)
				}
				if err != nil {
					return err
				}
				return done(cmd, "set %s = %s", args[0], val)
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "keep the change local until commit")
	return cmd
}

func newAddCommand(v *viper.Viper) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "add <oid> [value]",
		Short: "Add an instance",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(c *confapi.Client) error {
				ctx := cmd.Context()
				val, err := parseFor(ctx, c, args[0], args[1:])
				if err != nil {
					return err
				}
				var h cfgtype.Handle
				if local {
					h, err = c.AddLocal(ctx, args[0], val)
				} else {
					h, err = c.Add(ctx, args[0], val)
				}
				if err != nil {
					return err
				}
				return done(cmd, "added %s (%s)", args[0], h)
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "keep the change local until commit")
	return cmd
}

// parseFor parses the optional value of instance s by the type of its
// object. A missing value is the zero of that type.
func parseFor(ctx context.Context, c *confapi.Client, s string, value []string) (cfgtype.Value, error) {
	objOID, err := oid.ObjectOf(s)
	if err != nil {
		return cfgtype.Value{}, err
	}
	h, err := c.Find(ctx, objOID)
	if err != nil {
		return cfgtype.Value{}, err
	}
	obj, err := c.GetObject(ctx, h)
	if err != nil {
		return cfgtype.Value{}, err
	}
	if len(value) == 0 {
		return cfgtype.Zero(obj.Type), nil
	}
	return cfgtype.ParseValue(obj.Type, value[0])
}

func newDeleteCommand(v *viper.Viper) *cobra.Command {
	var recursive, local bool
	cmd := &cobra.Command{
		Use:   "delete <oid>",
		Short: "Delete an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(c *confapi.Client) error {
				ctx := cmd.Context()
				h, err := c.Find(ctx, args[0])
				if err != nil {
					return err
				}
				if local {
					err = c.DeleteLocal(ctx, h, recursive)
				} else {
					err = c.Delete(ctx, h, recursive)
				}
				if err != nil {
					return err
				}
				return done(cmd, "deleted %s", args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "delete the children too")
	cmd.Flags().BoolVar(&local, "local", false, "keep the change local until commit")
	return cmd
}

func newTreeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [prefix]",
		Short: "Print a subtree of instances, or of objects for an object prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := "/:"
			if len(args) == 1 {
				prefix = args[0]
			}
			return withClient(v, func(c *confapi.Client) error {
				out, err := c.Tree(cmd.Context(), prefix)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
}

func newCommitCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "commit [prefix]",
		Short: "Push local changes to the agents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := "/:"
			if len(args) == 1 {
				prefix = args[0]
			}
			return withClient(v, func(c *confapi.Client) error {
				if err := c.Commit(cmd.Context(), prefix); err != nil {
					return err
				}
				return done(cmd, "committed %s", prefix)
			})
		},
	}
}

func newCopyCommand(v *viper.Viper) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "copy <dst> <src>",
		Short: "Copy an instance subtree onto another instance of the same object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(c *confapi.Client) error {
				var (
					h   cfgtype.Handle
					err error
				)
				if local {
					h, err = c.CopySubtreeLocal(cmd.Context(), args[0], args[1])
				} else {
					h, err = c.CopySubtree(cmd.Context(), args[0], args[1])
				}
				if err != nil {
					return err
				}
				return done(cmd, "copied %s to %s (%s)", args[1], args[0], h)
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "keep the change local until commit")
	return cmd
}

func newTouchCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "touch <pattern>",
		Short: "Report instances changed outside the configurator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(c *confapi.Client) error {
				if err := c.Touch(cmd.Context(), args[0]); err != nil {
					return err
				}
				return done(cmd, "touched %s", args[0])
			})
		},
	}
}

func newSyncCommand(v *viper.Viper) *cobra.Command {
	var subtree bool
	cmd := &cobra.Command{
		Use:   "sync <oid>",
		Short: "Pull the state of an instance from its agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(c *confapi.Client) error {
				var err error
				if subtree {
					err = c.SyncTree(cmd.Context(), args[0])
				} else {
					err = c.Sync(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				return done(cmd, "synchronized %s", args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&subtree, "recursive", "r", false, "synchronize the whole subtree")
	return cmd
}

func newCapabilitiesCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Print the server version and encodings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(v, func(c *confapi.Client) error {
				res, err := c.Capabilities(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{{keys.Sprint("version"), res.Version}}
				for _, e := range res.Capabilities {
					rows = append(rows, []string{keys.Sprint("encoding"), e})
				}
				for _, m := range res.Models {
					rows = append(rows, []string{keys.Sprint("model"), m.GetName() + " " + m.GetVersion()})
				}
				writeTable(cmd.OutOrStdout(), []string{"", ""}, rows)
				return nil
			})
		},
	}
}

func done(cmd *cobra.Command, format string, args ...any) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), success.Sprintf(format, args...))
	return err
}
