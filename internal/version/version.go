// SPDX-License-Identifier: MPL-2.0

// Package version defines the Version value type used as the key for every
// registry entry: a normalized major.minor.patch identifier with an optional
// pre-release tag.
package version

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion indicates a string that does not parse as a full
// major.minor.patch version.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a concrete runtime release, normalized to the form
// "vMAJOR.MINOR.PATCH[-PRERELEASE]". The zero value is not a valid version;
// use Parse to construct one. Versions are comparable with == because the
// normalized tag is the only field.
type Version struct {
	tag string
}

// Parse normalizes and validates a version string. A leading "v" is optional
// on input; the normalized form always carries one. Partial versions ("18",
// "18.19") and build metadata are rejected — registry keys must be exact.
func Parse(s string) (Version, error) {
	norm := strings.TrimSpace(s)
	if norm == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}
	if !strings.HasPrefix(norm, "v") {
		norm = "v" + norm
	}
	if !semver.IsValid(norm) || semver.Canonical(norm) != norm {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return Version{tag: norm}, nil
}

// MustParse is Parse for trusted literals; it panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the normalized tag, e.g. "v18.19.0".
func (v Version) String() string { return v.tag }

// IsZero reports whether v is the zero value rather than a parsed version.
func (v Version) IsZero() bool { return v.tag == "" }

// DistName returns the distribution base name for the current platform, which
// is both the archive name stem and the on-disk installation directory name,
// e.g. "node-v18.19.0-linux-x64".
func (v Version) DistName() string {
	return fmt.Sprintf("node-%s-%s-%s", v.tag, distOS(), distArch())
}

// Compare orders two versions by semantic version precedence. The result is
// -1, 0, or +1 following the usual contract.
func Compare(a, b Version) int {
	return semver.Compare(a.tag, b.tag)
}

// SortDescending sorts versions in place, newest first. The sort is stable so
// equal versions keep their relative order.
func SortDescending(versions []Version) {
	slices.SortStableFunc(versions, func(a, b Version) int {
		return Compare(b, a)
	})
}

// distOS maps GOOS to the distribution's OS naming.
func distOS() string {
	switch runtime.GOOS {
	case "windows":
		return "win"
	default:
		return runtime.GOOS
	}
}

// distArch maps GOARCH to the distribution's architecture naming.
func distArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	default:
		return runtime.GOARCH
	}
}
