// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nodeup/nodeup/internal/registry"
	"github.com/nodeup/nodeup/internal/resolve"
	"github.com/nodeup/nodeup/internal/version"
)

var (
	overrideDirFlag string

	overrideCmd = &cobra.Command{
		Use:   "override",
		Short: "Manage per-directory version overrides",
		Long: `Manage per-directory version overrides.

An override pins a directory (and everything under it) to a specific
installed version, or to the literal target 'default' to stop an
ancestor override from applying further down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	overrideAddCmd = &cobra.Command{
		Use:   "add <version|default>",
		Short: "Pin a directory to a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := overrideDir()
			if err != nil {
				return failCommand(cmd, err)
			}

			target := registry.TargetDefault()
			if args[0] != registry.DefaultSentinel {
				v, err := version.Parse(args[0])
				if err != nil {
					return failCommand(cmd, err)
				}
				target = registry.TargetVersion(v)
			}

			svc, err := newServices()
			if err != nil {
				return failCommand(cmd, err)
			}
			if err := svc.store.SetOverride(dir, target); err != nil {
				return failCommand(cmd, decorate(err, "set override"))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s pinned to %s\n", dir, VersionStyle.Render(target.String()))
			return nil
		},
	}

	overrideRemoveCmd = &cobra.Command{
		Use:   "remove",
		Short: "Remove a directory's override",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := overrideDir()
			if err != nil {
				return failCommand(cmd, err)
			}

			svc, err := newServices()
			if err != nil {
				return failCommand(cmd, err)
			}
			if err := svc.store.RemoveOverride(dir); err != nil {
				return failCommand(cmd, decorate(err, "remove override"))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Override removed for %s\n", dir)
			return nil
		},
	}

	overrideListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all directory overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices()
			if err != nil {
				return failCommand(cmd, err)
			}
			snap, err := svc.store.Load()
			if err != nil {
				return failCommand(cmd, decorate(err, "read registry"))
			}

			overrides := snap.Overrides()
			if len(overrides) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No overrides configured.")
				return nil
			}
			for _, o := range overrides {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", o.Dir, VersionStyle.Render(o.Target.String()))
			}
			return nil
		},
	}

	overrideWhichCmd = &cobra.Command{
		Use:   "which",
		Short: "Show the effective version for a directory and where it comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := overrideDir()
			if err != nil {
				return failCommand(cmd, err)
			}

			svc, err := newServices()
			if err != nil {
				return failCommand(cmd, err)
			}
			snap, err := svc.store.Load()
			if err != nil {
				return failCommand(cmd, decorate(err, "read registry"))
			}

			r := resolve.New(snap)
			res, err := r.Resolve(dir)
			if err != nil {
				return failCommand(cmd, decorate(err, "resolve version"))
			}
			v, err := r.Effective(res)
			if err != nil {
				return failCommand(cmd, decorate(err, "resolve version"))
			}

			fmt.Fprintln(cmd.OutOrStdout(), VersionStyle.Render(v.String()))
			switch {
			case res.Kind == resolve.Unconfigured:
				fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("source: global default"))
			case res.FromMarker:
				fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("source: "+resolve.MarkerFileName+" in "+res.Dir))
			case res.Kind == resolve.DefaultRequested:
				fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("source: default override at "+res.Dir))
			default:
				fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("source: override at "+res.Dir))
			}
			return nil
		},
	}
)

// overrideDir returns the directory an override command operates on: the
// --dir flag when set, the working directory otherwise.
func overrideDir() (string, error) {
	if overrideDirFlag != "" {
		return overrideDirFlag, nil
	}
	return os.Getwd()
}

func init() {
	overrideCmd.PersistentFlags().StringVar(&overrideDirFlag, "dir", "", "directory to operate on (default: current directory)")

	overrideCmd.AddCommand(overrideAddCmd)
	overrideCmd.AddCommand(overrideRemoveCmd)
	overrideCmd.AddCommand(overrideListCmd)
	overrideCmd.AddCommand(overrideWhichCmd)
}
