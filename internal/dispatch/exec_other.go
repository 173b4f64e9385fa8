// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package dispatch

import "errors"

// SystemExecer is the stub for platforms without execve. Dispatch through
// symlinked command names is a unix feature; the control CLI still works.
type SystemExecer struct{}

// Exec always fails on platforms without process replacement.
func (SystemExecer) Exec(string, []string, []string) error {
	return errors.New("process replacement not supported on this platform")
}
