// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nodeup/nodeup/internal/home"
	"github.com/nodeup/nodeup/internal/issue"
	"github.com/nodeup/nodeup/internal/linker"
)

var (
	controlCmd = &cobra.Command{
		Use:   "control",
		Short: "Manage the nodeup installation itself",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	controlLinkCmd = &cobra.Command{
		Use:   "link",
		Short: "Create the node, npm, and npx command symlinks",
		Long: `Create (or repair) the node, npm, and npx symlinks in the links
directory, all pointing back at this nodeup binary. The links directory
must be on PATH for the commands to be picked up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			linksDir, binPath, err := linkTargets()
			if err != nil {
				return failCommand(cmd, err)
			}

			if err := linker.Link(linksDir, binPath); err != nil {
				return failCommand(cmd, issue.NewErrorContext().
					WithOperation("create command links").
					WithResource(linksDir).
					WithSuggestion("Remove the obstructing file if it is a leftover node installation").
					Wrap(err).
					BuildError())
			}

			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Linked ")+"node, npm, npx -> "+binPath)
			fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("links directory: ")+linksDir)
			return nil
		},
	}

	controlVerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check that the command links are in place and reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			linksDir, binPath, err := linkTargets()
			if err != nil {
				return failCommand(cmd, err)
			}

			report, err := linker.Verify(linksDir, binPath)
			if err != nil {
				return failCommand(cmd, issue.WrapWithOperation(err, "verify command links"))
			}

			fmt.Fprint(cmd.OutOrStdout(), linker.FormatReport(report, linksDir))
			if !report.Healthy() {
				fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Run 'nodeup control link' to repair, and ensure the links directory is on PATH."))
				cmd.SilenceUsage = true
				cmd.SilenceErrors = true
				return &ExitError{Code: 1}
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("All command links are healthy."))
			return nil
		},
	}
)

// linkTargets resolves the links directory and the absolute path of the
// running nodeup binary.
func linkTargets() (linksDir, binPath string, err error) {
	linksDir, err = home.LinksDir()
	if err != nil {
		return "", "", err
	}

	binPath, err = os.Executable()
	if err != nil {
		return "", "", fmt.Errorf("locating the nodeup binary: %w", err)
	}
	// Resolve through symlinks so links point at the real binary, not at
	// whatever alias launched this process.
	if resolved, err := filepath.EvalSymlinks(binPath); err == nil {
		binPath = resolved
	}
	return linksDir, binPath, nil
}

func init() {
	controlCmd.AddCommand(controlLinkCmd)
	controlCmd.AddCommand(controlVerifyCmd)
}
