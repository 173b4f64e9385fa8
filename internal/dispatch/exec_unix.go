// SPDX-License-Identifier: MPL-2.0

//go:build unix

package dispatch

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SystemExecer replaces the process image with execve. The exit code,
// stdio, and environment of the target binary become this process's own —
// the wrapped runtime is indistinguishable from a direct invocation.
type SystemExecer struct{}

// Exec calls execve. It returns only on failure to start the binary.
func (SystemExecer) Exec(binary string, argv []string, env []string) error {
	if err := unix.Exec(binary, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", binary, err)
	}
	// Not reached: a successful exec never returns.
	return nil
}
