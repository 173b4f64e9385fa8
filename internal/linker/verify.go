// SPDX-License-Identifier: MPL-2.0

package linker

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nodeup/nodeup/internal/dispatch"
)

// Status classifies one command link's health.
type Status int

const (
	// StatusOK means the link exists, points at the expected binary, and
	// is what PATH resolution actually finds.
	StatusOK Status = iota
	// StatusMissing means the link does not exist.
	StatusMissing
	// StatusNotSymlink means a regular file sits at the link path.
	StatusNotSymlink
	// StatusWrongTarget means the symlink points somewhere else.
	StatusWrongTarget
	// StatusShadowed means the link is fine but an earlier PATH entry
	// provides the same command, so the link never runs.
	StatusShadowed
)

// String names the status for diagnostics output.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "missing"
	case StatusNotSymlink:
		return "not a symlink"
	case StatusWrongTarget:
		return "wrong target"
	case StatusShadowed:
		return "shadowed"
	default:
		return "unknown"
	}
}

// Check is the verification result for one command.
type Check struct {
	Command dispatch.Command
	Status  Status
	// Detail carries the offending path or target for non-OK statuses.
	Detail string
}

// Report is the full verification result.
type Report struct {
	Checks []Check
	// LinksDirOnPath reports whether the links directory appears in PATH
	// at all. When false every link is unreachable regardless of status.
	LinksDirOnPath bool
}

// Healthy reports whether every check passed and the links directory is
// reachable through PATH.
func (r *Report) Healthy() bool {
	if !r.LinksDirOnPath {
		return false
	}
	for _, c := range r.Checks {
		if c.Status != StatusOK {
			return false
		}
	}
	return true
}

// Verify inspects every command link in linksDir against binPath and the
// current PATH. It never repairs anything; Link does that.
func Verify(linksDir, binPath string) (*Report, error) {
	report := &Report{
		LinksDirOnPath: dirOnPath(linksDir),
	}

	for _, cmd := range dispatch.Commands() {
		check := Check{Command: cmd, Status: StatusOK}
		link := LinkPath(linksDir, cmd)

		fi, err := os.Lstat(link)
		switch {
		case errors.Is(err, os.ErrNotExist):
			check.Status = StatusMissing
			check.Detail = link
		case err != nil:
			return nil, fmt.Errorf("inspecting %s: %w", link, err)
		case fi.Mode()&os.ModeSymlink == 0:
			check.Status = StatusNotSymlink
			check.Detail = link
		default:
			target, err := os.Readlink(link)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", link, err)
			}
			if target != binPath {
				check.Status = StatusWrongTarget
				check.Detail = target
			} else if found, err := exec.LookPath(string(cmd)); err == nil && !samePath(found, link) {
				check.Status = StatusShadowed
				check.Detail = found
			}
		}

		report.Checks = append(report.Checks, check)
	}
	return report, nil
}

// dirOnPath reports whether dir appears in the PATH environment variable.
func dirOnPath(dir string) bool {
	canonical := cleanPath(dir)
	for _, entry := range filepath.SplitList(os.Getenv("PATH")) {
		if entry == "" {
			continue
		}
		if cleanPath(entry) == canonical {
			return true
		}
	}
	return false
}

// samePath compares two paths after symlink and relative-segment
// normalization, tolerating paths that do not resolve.
func samePath(a, b string) bool {
	return cleanPath(a) == cleanPath(b)
}

func cleanPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs)
}

// FormatReport renders a report as one line per command for the CLI.
func FormatReport(r *Report, linksDir string) string {
	var b strings.Builder
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "%-4s %s", c.Command, c.Status)
		if c.Detail != "" && c.Status != StatusOK {
			fmt.Fprintf(&b, " (%s)", c.Detail)
		}
		b.WriteByte('\n')
	}
	if !r.LinksDirOnPath {
		fmt.Fprintf(&b, "warning: %s is not on PATH\n", linksDir)
	}
	return b.String()
}
