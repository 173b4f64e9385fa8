// SPDX-License-Identifier: MPL-2.0

package dist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nodeup/nodeup/internal/version"
)

// ErrAliasResolutionFailed indicates a symbolic version request could not
// be turned into a concrete version, whether because the index fetch
// failed or because nothing matched.
var ErrAliasResolutionFailed = errors.New("alias resolution failed")

// AliasResolver resolves a symbolic version request ("latest", "lts",
// "lts/<codename>") into a concrete version. Aliases are never persisted;
// only the resolved concrete version enters the registry.
type AliasResolver interface {
	ResolveAlias(ctx context.Context, alias string) (version.Version, error)
}

// IsAlias reports whether spec is a symbolic version request rather than a
// concrete version string.
func IsAlias(spec string) bool {
	s := strings.ToLower(strings.TrimSpace(spec))
	return s == "latest" || s == "lts" || strings.HasPrefix(s, "lts/")
}

// ResolveAlias resolves an alias against the mirror's release index. The
// index is ordered newest-first by the mirror, but the match is computed by
// version precedence so a reordered mirror cannot change the result.
func (c *Client) ResolveAlias(ctx context.Context, alias string) (version.Version, error) {
	entries, err := c.Index(ctx)
	if err != nil {
		return version.Version{}, fmt.Errorf("%w: %v", ErrAliasResolutionFailed, err)
	}
	return matchAlias(entries, alias)
}

// matchAlias picks the highest version satisfying the alias.
func matchAlias(entries []ReleaseEntry, alias string) (version.Version, error) {
	norm := strings.ToLower(strings.TrimSpace(alias))
	codename := ""
	if strings.HasPrefix(norm, "lts/") {
		codename = strings.TrimPrefix(norm, "lts/")
	}

	var best version.Version
	for _, e := range entries {
		switch {
		case norm == "latest":
		case norm == "lts":
			if e.LTS == "" {
				continue
			}
		case codename != "":
			if !strings.EqualFold(e.LTS, codename) {
				continue
			}
		default:
			return version.Version{}, fmt.Errorf("%w: unknown alias %q", ErrAliasResolutionFailed, alias)
		}

		if best.IsZero() || version.Compare(e.Version, best) > 0 {
			best = e.Version
		}
	}

	if best.IsZero() {
		return version.Version{}, fmt.Errorf("%w: no release matches %q", ErrAliasResolutionFailed, alias)
	}
	return best, nil
}

// StaticAliases is a fixed alias table. It serves tests and offline use as
// a drop-in AliasResolver.
type StaticAliases map[string]version.Version

// ResolveAlias looks the alias up in the table.
func (m StaticAliases) ResolveAlias(_ context.Context, alias string) (version.Version, error) {
	v, ok := m[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return version.Version{}, fmt.Errorf("%w: unknown alias %q", ErrAliasResolutionFailed, alias)
	}
	return v, nil
}
