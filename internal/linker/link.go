// SPDX-License-Identifier: MPL-2.0

// Package linker maintains the symlink farm that gives node, npm, and npx
// their identities. Each link points back at the nodeup binary; the binary
// inspects its invocation name and dispatches accordingly. The package also
// diagnoses the farm: links that are missing, point elsewhere, are shadowed
// on PATH, or live in a directory PATH never reaches.
package linker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/nodeup/nodeup/internal/dispatch"
)

// ErrLinkObstructed indicates a regular file (not a symlink) sits where a
// command link belongs. It is never replaced automatically; the user may
// have a real node installation there.
var ErrLinkObstructed = errors.New("path obstructed by a non-symlink file")

// ObstructedError names the obstructing path.
type ObstructedError struct {
	Command dispatch.Command
	Path    string
}

// Error implements the error interface.
func (e *ObstructedError) Error() string {
	return fmt.Sprintf("cannot link %s: %s exists and is not a symlink", e.Command, e.Path)
}

// Unwrap returns ErrLinkObstructed for errors.Is classification.
func (e *ObstructedError) Unwrap() error { return ErrLinkObstructed }

// LinkPath returns where a command's symlink lives inside linksDir.
func LinkPath(linksDir string, cmd dispatch.Command) string {
	return filepath.Join(linksDir, string(cmd))
}

// Link creates or repairs the command symlinks in linksDir, all pointing at
// binPath (the nodeup binary). Correct links are left alone, links pointing
// elsewhere are replaced, and anything that is not a symlink stops the run
// with an ObstructedError.
func Link(linksDir, binPath string) error {
	if err := os.MkdirAll(linksDir, 0o755); err != nil {
		return fmt.Errorf("creating links directory: %w", err)
	}

	for _, cmd := range dispatch.Commands() {
		link := LinkPath(linksDir, cmd)

		current, err := os.Lstat(link)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Fall through to create.
		case err != nil:
			return fmt.Errorf("inspecting %s: %w", link, err)
		case current.Mode()&os.ModeSymlink == 0:
			return &ObstructedError{Command: cmd, Path: link}
		default:
			target, err := os.Readlink(link)
			if err != nil {
				return fmt.Errorf("reading %s: %w", link, err)
			}
			if target == binPath {
				continue
			}
			log.Debug("replacing stale link", "command", cmd, "old", target, "new", binPath)
			if err := os.Remove(link); err != nil {
				return fmt.Errorf("removing stale link %s: %w", link, err)
			}
		}

		if err := os.Symlink(binPath, link); err != nil {
			return fmt.Errorf("linking %s: %w", cmd, err)
		}
		log.Debug("linked", "command", cmd, "path", link)
	}
	return nil
}

// Unlink removes the command symlinks from linksDir. Links pointing at a
// different binary and non-symlink files are left alone.
func Unlink(linksDir, binPath string) error {
	for _, cmd := range dispatch.Commands() {
		link := LinkPath(linksDir, cmd)

		current, err := os.Lstat(link)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", link, err)
		}
		if current.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(link)
		if err != nil || target != binPath {
			continue
		}
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("removing %s: %w", link, err)
		}
	}
	return nil
}
