// SPDX-License-Identifier: MPL-2.0

// Package dispatch turns a symlinked invocation (node, npm, npx) into a
// process replacement: it resolves the effective version for the working
// directory, locates that version's binary for the invoked command, and
// hands off to the Execer. Every resolution step completes and is validated
// before the process image is replaced — once Exec succeeds there is no
// return path, so failures must be fully surfaced first.
package dispatch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nodeup/nodeup/internal/registry"
	"github.com/nodeup/nodeup/internal/resolve"
	"github.com/nodeup/nodeup/internal/version"
)

// Command is a logical command identity reached through a symlinked name.
type Command string

const (
	// CommandNode is the runtime itself.
	CommandNode Command = "node"
	// CommandNpm is the package manager.
	CommandNpm Command = "npm"
	// CommandNpx is the package runner.
	CommandNpx Command = "npx"
)

// ErrBinaryMissing indicates a registered version's installation lacks the
// binary for the requested command — a corrupted or partial install.
var ErrBinaryMissing = errors.New("binary missing from installation")

// BinaryMissingError carries the version and the path that was expected to
// hold the binary.
type BinaryMissingError struct {
	Command Command
	Version version.Version
	Path    string
}

// Error implements the error interface.
func (e *BinaryMissingError) Error() string {
	return fmt.Sprintf("%s binary for %s missing at %s", e.Command, e.Version, e.Path)
}

// Unwrap returns ErrBinaryMissing for errors.Is classification.
func (e *BinaryMissingError) Unwrap() error { return ErrBinaryMissing }

// Commands lists every dispatchable command identity.
func Commands() []Command {
	return []Command{CommandNode, CommandNpm, CommandNpx}
}

// FromInvocation maps an invocation name (argv[0], possibly a path, with
// an optional .exe suffix) to a command identity. The second result is
// false for unrecognized names, which the caller treats as a control
// self-invocation.
func FromInvocation(argv0 string) (Command, bool) {
	name := strings.TrimSuffix(filepath.Base(argv0), ".exe")
	for _, c := range Commands() {
		if name == string(c) {
			return c, true
		}
	}
	return "", false
}

// BinaryRelPath returns the path of a command's binary relative to a
// version's installation directory.
func BinaryRelPath(cmd Command) string {
	if runtime.GOOS == "windows" {
		return string(cmd) + ".exe"
	}
	return filepath.Join("bin", string(cmd))
}

// Execer replaces the current process image. On success Exec never
// returns; an error means the replacement could not even start.
type Execer interface {
	Exec(binary string, argv []string, env []string) error
}

// Dispatcher resolves and execs the effective version's binary.
type Dispatcher struct {
	store  *registry.Store
	execer Execer
}

// NewDispatcher creates a Dispatcher over the given store and execer.
func NewDispatcher(store *registry.Store, execer Execer) *Dispatcher {
	return &Dispatcher{store: store, execer: execer}
}

// Dispatch resolves cmd for cwd and replaces the process with the matching
// binary, forwarding args (without the invoked name), env, and the standard
// streams untouched. Any error return means no process replacement
// happened; on success the call never returns.
func (d *Dispatcher) Dispatch(cmd Command, args []string, cwd string, env []string) error {
	binary, err := d.Locate(cmd, cwd)
	if err != nil {
		return err
	}

	argv := append([]string{string(cmd)}, args...)
	log.Debug("replacing process", "binary", binary, "args", args)
	return d.execer.Exec(binary, argv, env)
}

// Locate resolves the effective version for cwd and returns the absolute
// path of cmd's binary, fully validated: the version is installed and the
// binary exists on disk.
func (d *Dispatcher) Locate(cmd Command, cwd string) (string, error) {
	snap, err := d.store.Load()
	if err != nil {
		return "", err
	}

	r := resolve.New(snap)
	res, err := r.Resolve(cwd)
	if err != nil {
		return "", err
	}
	v, err := r.Effective(res)
	if err != nil {
		return "", err
	}

	installPath, ok := snap.InstallPath(v)
	if !ok {
		// Unreachable after Effective's checks; kept as a guard.
		return "", &resolve.VersionNotInstalledError{Version: v, Source: cwd}
	}

	binary := filepath.Join(installPath, BinaryRelPath(cmd))
	if _, err := os.Stat(binary); err != nil {
		return "", &BinaryMissingError{Command: cmd, Version: v, Path: binary}
	}

	log.Debug("resolved dispatch target", "command", cmd, "version", v, "binary", binary)
	return binary, nil
}
