// SPDX-License-Identifier: MPL-2.0

// Package registry owns the persisted registry of installed runtime
// versions, the user default, and directory-scoped overrides. The registry
// is a TOML file under the per-user config directory; every mutation is a
// lock → read → modify → write-temp → rename cycle so concurrent processes
// never observe a torn write (see store.go).
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nodeup/nodeup/internal/version"
)

// DefaultSentinel is the override target value meaning "use the default
// version", as persisted in the registry file.
const DefaultSentinel = "default"

var (
	// ErrAlreadyInstalled indicates an Add for a version key already present.
	ErrAlreadyInstalled = errors.New("version already installed")

	// ErrNotInstalled indicates an operation referencing a version that is
	// not in the installed set.
	ErrNotInstalled = errors.New("version not installed")

	// ErrRegistryLocked indicates the registry lock could not be acquired
	// within the bounded wait.
	ErrRegistryLocked = errors.New("registry locked by another process")

	// ErrRegistryCorrupt indicates the persisted registry could not be
	// parsed. It is surfaced to the user, never silently repaired.
	ErrRegistryCorrupt = errors.New("registry corrupt")
)

// CorruptError wraps ErrRegistryCorrupt with the registry path and the
// underlying decode failure so the user can inspect the file.
type CorruptError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CorruptError) Error() string {
	return fmt.Sprintf("registry file %s is corrupt: %v", e.Path, e.Err)
}

// Unwrap returns ErrRegistryCorrupt so callers can classify with errors.Is.
func (e *CorruptError) Unwrap() error { return ErrRegistryCorrupt }

// Target is the value of an override entry: either a concrete version or
// the default sentinel.
type Target struct {
	version    version.Version
	useDefault bool
}

// TargetVersion builds a Target pointing at a concrete version.
func TargetVersion(v version.Version) Target {
	return Target{version: v}
}

// TargetDefault builds the "use the default" sentinel Target.
func TargetDefault() Target {
	return Target{useDefault: true}
}

// IsDefault reports whether the target is the default sentinel.
func (t Target) IsDefault() bool { return t.useDefault }

// Version returns the concrete version of a non-sentinel target. It is the
// zero Version when IsDefault is true.
func (t Target) Version() version.Version { return t.version }

// String returns the persisted form of the target.
func (t Target) String() string {
	if t.useDefault {
		return DefaultSentinel
	}
	return t.version.String()
}

// Override is a directory-scoped version preference as returned by
// Snapshot.Overrides.
type Override struct {
	Dir    string
	Target Target
}

// registryFile is the TOML wire shape of the registry. Version keys are
// normalized tags; override keys are canonical absolute directories.
type registryFile struct {
	Default   string            `toml:"default,omitempty"`
	Versions  map[string]string `toml:"versions,omitempty"`
	Overrides map[string]string `toml:"overrides,omitempty"`
}

// Snapshot is an immutable, fully-parsed view of the registry at a point in
// time. The dispatch path reads a Snapshot without taking the mutation lock;
// the atomic-rename write discipline guarantees it sees either the old or
// the new registry, never a mix.
type Snapshot struct {
	def       version.Version
	installs  map[version.Version]string
	overrides map[string]Target
}

// Default returns the default version and whether one is set.
func (s *Snapshot) Default() (version.Version, bool) {
	return s.def, !s.def.IsZero()
}

// Installed reports whether v is in the installed set.
func (s *Snapshot) Installed(v version.Version) bool {
	_, ok := s.installs[v]
	return ok
}

// InstallPath returns the installation directory recorded for v.
func (s *Snapshot) InstallPath(v version.Version) (string, bool) {
	p, ok := s.installs[v]
	return p, ok
}

// Override returns the override recorded for the exact directory dir.
func (s *Snapshot) Override(dir string) (Target, bool) {
	t, ok := s.overrides[dir]
	return t, ok
}

// Versions returns the installed versions sorted by precedence, newest
// first. It never fails; the slice is empty when nothing is installed.
func (s *Snapshot) Versions() []version.Version {
	out := make([]version.Version, 0, len(s.installs))
	for v := range s.installs {
		out = append(out, v)
	}
	version.SortDescending(out)
	return out
}

// Overrides returns all overrides sorted by directory for stable listing.
func (s *Snapshot) Overrides() []Override {
	out := make([]Override, 0, len(s.overrides))
	for dir, t := range s.overrides {
		out = append(out, Override{Dir: dir, Target: t})
	}
	sortOverrides(out)
	return out
}

// parseSnapshot validates the wire form into a Snapshot. Any malformed
// version tag makes the whole registry corrupt — a registry with entries
// that cannot be keyed is not structurally valid.
func parseSnapshot(path string, rf *registryFile) (*Snapshot, error) {
	snap := &Snapshot{
		installs:  make(map[version.Version]string, len(rf.Versions)),
		overrides: make(map[string]Target, len(rf.Overrides)),
	}

	for tag, installPath := range rf.Versions {
		v, err := version.Parse(tag)
		if err != nil {
			return nil, &CorruptError{Path: path, Err: fmt.Errorf("version key %q: %w", tag, err)}
		}
		snap.installs[v] = installPath
	}

	if rf.Default != "" {
		v, err := version.Parse(rf.Default)
		if err != nil {
			return nil, &CorruptError{Path: path, Err: fmt.Errorf("default %q: %w", rf.Default, err)}
		}
		snap.def = v
	}

	for dir, raw := range rf.Overrides {
		if !filepath.IsAbs(dir) {
			return nil, &CorruptError{Path: path, Err: fmt.Errorf("override key %q is not absolute", dir)}
		}
		if raw == DefaultSentinel {
			snap.overrides[dir] = TargetDefault()
			continue
		}
		v, err := version.Parse(raw)
		if err != nil {
			return nil, &CorruptError{Path: path, Err: fmt.Errorf("override %q: %w", dir, err)}
		}
		snap.overrides[dir] = TargetVersion(v)
	}

	return snap, nil
}

func sortOverrides(ovs []Override) {
	slices.SortFunc(ovs, func(a, b Override) int {
		return strings.Compare(a.Dir, b.Dir)
	})
}
