// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/nodeup/nodeup/internal/dispatch"
)

// RunDispatch is the entry point for the node, npm, and npx personalities.
// On success the process image is replaced and this function never returns.
// On failure it prints guidance to stderr and returns the exit code for
// main to pass to os.Exit.
func RunDispatch(command dispatch.Command, args []string) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		return 1
	}

	svc, err := newServices()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, false))
		return 1
	}

	d := dispatch.NewDispatcher(svc.store, dispatch.SystemExecer{})
	if err := d.Dispatch(command, args, cwd, os.Environ()); err != nil {
		decorated := decorate(err, "run "+string(command))
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(decorated, false))
		return 1
	}

	// Not reached: a successful dispatch replaces the process.
	return 0
}
