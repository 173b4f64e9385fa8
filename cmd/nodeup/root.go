// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for nodeup.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nodeup/nodeup/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "nodeup",
		Short: "A per-directory Node.js version manager",
		Long: TitleStyle.Render("nodeup") + SubtitleStyle.Render(" - A per-directory Node.js version manager") + `

nodeup installs Node.js versions side by side and picks the right one
per directory. The node, npm, and npx commands are symlinks back to
nodeup; each invocation resolves the version for the current directory
and replaces itself with the matching binary.

Versions are selected by directory overrides, an .nvmrc marker file in
an ancestor directory, or the global default, in that order of
precedence (nearest directory wins).

` + SubtitleStyle.Render("Quick Start:") + `
  1. nodeup versions add lts --default
  2. nodeup control link
  3. Ensure the links directory is on your PATH (nodeup control verify)

` + SubtitleStyle.Render("Examples:") + `
  nodeup versions add 20.11.1     Install a specific version
  nodeup versions list            List installed versions
  nodeup override add 18.19.0     Pin this directory to a version
  nodeup override which           Show the effective version here`,
	}
)

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(controlCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main() for the control personality.
func Execute() {
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// initLogging raises the log level when --verbose is set. Debug logs cover
// resolution walks, lock acquisition, and installer stages.
func initLogging() {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// failCommand prints err to stderr in display form and converts it into an
// ExitError so the handler exits non-zero without cobra re-printing it.
func failCommand(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return &ExitError{Code: 1, Err: err}
}
