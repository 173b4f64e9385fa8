// SPDX-License-Identifier: MPL-2.0

// nodeup is a per-directory Node.js version manager. The binary serves
// four personalities selected by its invocation name: nodeup (the control
// CLI) plus node, npm, and npx, which are symlinks back to this binary
// created by 'nodeup control link'.
package main

import (
	"os"

	cmd "github.com/nodeup/nodeup/cmd/nodeup"
	"github.com/nodeup/nodeup/internal/dispatch"
)

func main() {
	if command, ok := dispatch.FromInvocation(os.Args[0]); ok {
		os.Exit(cmd.RunDispatch(command, os.Args[1:]))
	}
	cmd.Execute()
}
