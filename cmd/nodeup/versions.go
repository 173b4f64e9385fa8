// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nodeup/nodeup/internal/dist"
	"github.com/nodeup/nodeup/internal/install"
	"github.com/nodeup/nodeup/internal/version"
)

var (
	addDefaultFlag     bool
	addOverrideFlag    bool
	addOverrideDirFlag string
	addPathFlag        string
	addForceFlag       bool

	versionsCmd = &cobra.Command{
		Use:   "versions",
		Short: "Manage installed Node.js versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	versionsAddCmd = &cobra.Command{
		Use:   "add <version|latest|lts|lts/codename>",
		Short: "Download and install a Node.js version",
		Long: `Download, verify, and install a Node.js version.

The argument is a concrete version (20.11.1) or an alias resolved
against the release index: latest, lts, or lts/<codename>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices()
			if err != nil {
				return failCommand(cmd, err)
			}

			opts := install.Options{
				Default: addDefaultFlag,
				Force:   addForceFlag,
			}
			if addOverrideFlag || addOverrideDirFlag != "" {
				dir := addOverrideDirFlag
				if dir == "" {
					if dir, err = os.Getwd(); err != nil {
						return failCommand(cmd, err)
					}
				}
				opts.OverrideDir = dir
			}

			installRoot := addPathFlag
			if installRoot != "" {
				if installRoot, err = filepath.Abs(installRoot); err != nil {
					return failCommand(cmd, err)
				}
			}

			v, err := svc.installer(installRoot).Install(cmd.Context(), args[0], opts)
			if err != nil {
				return failCommand(cmd, decorate(err, "install version"))
			}

			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Installed ")+VersionStyle.Render(v.String()))
			if installRoot != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Installed under %s\n", installRoot)
			}
			if opts.Default {
				fmt.Fprintln(cmd.OutOrStdout(), "Set as default")
			}
			if opts.OverrideDir != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Override set for %s\n", opts.OverrideDir)
			}
			return nil
		},
	}

	versionsRemoveCmd = &cobra.Command{
		Use:   "remove <version>",
		Short: "Remove an installed Node.js version",
		Long: `Remove an installed version: its files are deleted first, then its
registry entry, along with a matching default and any directory
overrides pointing at it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := version.Parse(args[0])
			if err != nil {
				return failCommand(cmd, err)
			}

			svc, err := newServices()
			if err != nil {
				return failCommand(cmd, err)
			}
			if err := svc.installer("").Remove(v); err != nil {
				return failCommand(cmd, decorate(err, "remove version"))
			}

			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Removed ")+VersionStyle.Render(v.String()))
			return nil
		},
	}

	versionsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List installed Node.js versions",
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

			versions := snap.Versions()
			if len(versions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No versions installed. Run 'nodeup versions add lts' to get started.")
				return nil
			}

			def, hasDefault := snap.Default()
			for _, v := range versions {
				marker := "  "
				if hasDefault && v == def {
					marker = SuccessStyle.Render("* ")
				}
				fmt.Fprintln(cmd.OutOrStdout(), marker+VersionStyle.Render(v.String()))
			}
			return nil
		},
	}

	versionsLtsCmd = &cobra.Command{
		Use:   "lts",
		Short: "Print the latest LTS version from the release index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices()
			if err != nil {
				return failCommand(cmd, err)
			}

			client := dist.NewClient(
				dist.WithMirror(svc.settings.DistMirror),
				dist.WithUserAgent("nodeup/"+Version),
			)
			v, err := client.ResolveAlias(cmd.Context(), "lts")
			if err != nil {
				return failCommand(cmd, decorate(err, "resolve lts"))
			}

			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
)

func init() {
	versionsAddCmd.Flags().BoolVar(&addDefaultFlag, "default", false, "set the installed version as the global default")
	versionsAddCmd.Flags().BoolVar(&addOverrideFlag, "override", false, "pin the current directory to the installed version")
	versionsAddCmd.Flags().StringVar(&addOverrideDirFlag, "override-dir", "", "directory to pin instead of the current one (implies --override)")
	versionsAddCmd.Flags().StringVar(&addPathFlag, "path", "", "custom install root for this version (defaults to the configured install root)")
	versionsAddCmd.Flags().BoolVar(&addForceFlag, "force", false, "reinstall even if the version is already installed")

	versionsCmd.AddCommand(versionsAddCmd)
	versionsCmd.AddCommand(versionsRemoveCmd)
	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsLtsCmd)
}
