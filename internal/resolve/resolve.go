// SPDX-License-Identifier: MPL-2.0

// Package resolve walks the directory tree upward from a starting directory
// to determine the effective runtime version. At each level, an explicit
// registry override wins over an ambient marker file; the nearest directory
// with either wins overall, and a walk that reaches the root without a
// match falls back to the default version.
package resolve

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nodeup/nodeup/internal/registry"
	"github.com/nodeup/nodeup/internal/version"
)

// MarkerFileName is the per-directory version pin file. Its content is a
// bare version string.
const MarkerFileName = ".nvmrc"

var (
	// ErrNoDefaultSet indicates resolution fell through to the default but
	// no default version is configured.
	ErrNoDefaultSet = errors.New("no default version set")

	// ErrVersionNotInstalled indicates an override or marker file pins a
	// version that is not in the installed set.
	ErrVersionNotInstalled = errors.New("version not installed")
)

// VersionNotInstalledError reports a pinned-but-missing version together
// with where the pin came from. A pin naming a missing version is an error,
// never a silent fall-through to an ancestor's setting.
type VersionNotInstalledError struct {
	Version version.Version
	Source  string // registry override dir or marker file path
}

// Error implements the error interface.
func (e *VersionNotInstalledError) Error() string {
	return fmt.Sprintf("version %s pinned by %s is not installed", e.Version, e.Source)
}

// Unwrap returns ErrVersionNotInstalled for errors.Is classification.
func (e *VersionNotInstalledError) Unwrap() error { return ErrVersionNotInstalled }

// Kind discriminates the outcome of a resolution walk.
type Kind int

const (
	// Explicit means a concrete version was pinned at some directory.
	Explicit Kind = iota
	// DefaultRequested means an override explicitly asked for the default.
	DefaultRequested
	// Unconfigured means the walk reached the root without a match.
	Unconfigured
)

// String returns the kind name for logs and diagnostics.
func (k Kind) String() string {
	switch k {
	case Explicit:
		return "explicit"
	case DefaultRequested:
		return "default-requested"
	case Unconfigured:
		return "unconfigured"
	}
	return "unknown"
}

// Resolution is the outcome of a walk. Dir and FromMarker describe where
// the decision came from, for `override which` style diagnostics; both are
// zero for Unconfigured.
type Resolution struct {
	Kind       Kind
	Version    version.Version // set only for Explicit
	Dir        string          // directory whose pin decided the walk
	FromMarker bool            // true when a marker file decided, not the registry
}

// Resolver resolves effective versions against a registry snapshot.
type Resolver struct {
	snap *registry.Snapshot
}

// New creates a Resolver over the given snapshot.
func New(snap *registry.Snapshot) *Resolver {
	return &Resolver{snap: snap}
}

// Resolve canonicalizes startDir and walks it and each ancestor up to and
// including the filesystem root. The first directory with a registry
// override or marker file decides: nearest wins, and the search stops
// immediately.
func (r *Resolver) Resolve(startDir string) (Resolution, error) {
	dir, err := registry.CanonicalDir(startDir)
	if err != nil {
		return Resolution{}, err
	}

	for {
		if t, ok := r.snap.Override(dir); ok {
			if t.IsDefault() {
				log.Debug("override requests default", "dir", dir)
				return Resolution{Kind: DefaultRequested, Dir: dir}, nil
			}
			v := t.Version()
			if !r.snap.Installed(v) {
				return Resolution{}, &VersionNotInstalledError{Version: v, Source: dir}
			}
			log.Debug("override hit", "dir", dir, "version", v)
			return Resolution{Kind: Explicit, Version: v, Dir: dir}, nil
		}

		res, found, err := r.checkMarker(dir)
		if err != nil {
			return Resolution{}, err
		}
		if found {
			return res, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Resolution{Kind: Unconfigured}, nil
		}
		dir = parent
	}
}

// Effective applies the default fallback to a resolution: Explicit yields
// its version, DefaultRequested and Unconfigured both require a default.
func (r *Resolver) Effective(res Resolution) (version.Version, error) {
	if res.Kind == Explicit {
		return res.Version, nil
	}
	def, ok := r.snap.Default()
	if !ok {
		return version.Version{}, ErrNoDefaultSet
	}
	if !r.snap.Installed(def) {
		// A default naming a missing version is a registry the tool did not
		// write; report it the same way a stale pin is reported.
		return version.Version{}, &VersionNotInstalledError{Version: def, Source: "default"}
	}
	return def, nil
}

// checkMarker looks for a marker file in dir. A parseable marker naming an
// installed version decides the walk; a parseable marker naming a missing
// version is a reportable error; an unreadable or unparseable marker is
// also an error, since silently skipping a pin could run the wrong version.
func (r *Resolver) checkMarker(dir string) (Resolution, bool, error) {
	markerPath := filepath.Join(dir, MarkerFileName)

	content, err := os.ReadFile(markerPath)
	if os.IsNotExist(err) {
		return Resolution{}, false, nil
	}
	if err != nil {
		// Unreadable directories are treated as having no marker so a walk
		// from deep inside restricted trees still terminates sensibly.
		log.Debug("marker file unreadable", "path", markerPath, "error", err)
		return Resolution{}, false, nil
	}

	v, err := version.Parse(strings.TrimSpace(string(content)))
	if err != nil {
		return Resolution{}, false, fmt.Errorf("parsing marker file %s: %w", markerPath, err)
	}
	if !r.snap.Installed(v) {
		return Resolution{}, false, &VersionNotInstalledError{Version: v, Source: markerPath}
	}

	log.Debug("marker file hit", "path", markerPath, "version", v)
	return Resolution{Kind: Explicit, Version: v, Dir: dir, FromMarker: true}, true, nil
}
