// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"

	"github.com/nodeup/nodeup/internal/dispatch"
	"github.com/nodeup/nodeup/internal/dist"
	"github.com/nodeup/nodeup/internal/home"
	"github.com/nodeup/nodeup/internal/install"
	"github.com/nodeup/nodeup/internal/issue"
	"github.com/nodeup/nodeup/internal/registry"
	"github.com/nodeup/nodeup/internal/resolve"
	"github.com/nodeup/nodeup/internal/settings"
)

// services is the composition root for command handlers: settings plus the
// registry store, built once per invocation.
type services struct {
	settings *settings.Settings
	store    *registry.Store
}

// newServices loads settings and opens the registry store.
func newServices() (*services, error) {
	s, err := settings.Load()
	if err != nil {
		ec := issue.NewErrorContext().WithOperation("load settings").Wrap(err)
		// Name the settings file so the user knows what to fix.
		if p, pathErr := settings.Path(); pathErr == nil {
			ec.WithResource(p)
		}
		return nil, ec.BuildError()
	}

	regPath, err := home.RegistryPath()
	if err != nil {
		return nil, err
	}
	lockPath, err := home.LockPath()
	if err != nil {
		return nil, err
	}

	store := registry.NewStore(regPath, lockPath, registry.WithLockTimeout(s.LockTimeout))
	return &services{settings: s, store: store}, nil
}

// installer builds the Installer backed by the configured mirror. A
// non-empty root overrides the settings install root for this invocation.
func (s *services) installer(root string) *install.Installer {
	if root == "" {
		root = s.settings.InstallRoot
	}
	client := dist.NewClient(
		dist.WithMirror(s.settings.DistMirror),
		dist.WithUserAgent("nodeup/"+Version),
	)
	return install.New(s.store, client, root)
}

// decorate attaches remediation suggestions to well-known failures so the
// CLI layer prints guidance instead of a bare error string.
func decorate(err error, operation string) error {
	if err == nil {
		return nil
	}

	ec := issue.NewErrorContext().WithOperation(operation).Wrap(err)

	var notInstalled *resolve.VersionNotInstalledError
	switch {
	case errors.Is(err, registry.ErrAlreadyInstalled):
		ec.WithSuggestion("Use --force to reinstall over the existing version")

	case errors.Is(err, registry.ErrNotInstalled):
		ec.WithSuggestion("Run 'nodeup versions list' to see installed versions")

	case errors.Is(err, registry.ErrRegistryLocked):
		ec.WithSuggestion("Another nodeup process holds the registry lock; retry in a moment")

	case errors.Is(err, registry.ErrRegistryCorrupt):
		ec.WithSuggestion("Inspect the registry file and fix or remove the malformed entry").
			WithSuggestion("Re-add versions with 'nodeup versions add' after repairing it")

	case errors.As(err, &notInstalled):
		ec.WithResource(notInstalled.Version.String()).
			WithSuggestion("Run 'nodeup versions add " + notInstalled.Version.String() + "' to install it")

	case errors.Is(err, resolve.ErrNoDefaultSet):
		ec.WithSuggestion("Set one with 'nodeup versions add <version> --default'").
			WithSuggestion("Or pin this directory with 'nodeup override add <version>'")

	case errors.Is(err, dispatch.ErrBinaryMissing):
		ec.WithSuggestion("Reinstall the version with 'nodeup versions add <version> --force'")

	case errors.Is(err, dist.ErrChecksumMismatch):
		ec.WithSuggestion("Retry the download; a truncated transfer causes this").
			WithSuggestion("If it persists, the mirror may be serving corrupt archives")

	case errors.Is(err, dist.ErrAliasResolutionFailed):
		ec.WithSuggestion("Check your network connection and the dist_mirror setting")

	case errors.Is(err, dist.ErrVersionNotFound):
		ec.WithSuggestion("Check the version number against https://nodejs.org/dist/")

	case errors.Is(err, install.ErrRemovalIncomplete):
		ec.WithSuggestion("Remove the leftover files by hand and retry 'nodeup versions remove'")
	}

	return ec.BuildError()
}
