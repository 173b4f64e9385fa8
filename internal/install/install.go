// SPDX-License-Identifier: MPL-2.0

// Package install turns a version spec into a registered installation. The
// pipeline runs entirely in temporary paths under the install root: the
// archive is downloaded and checksum-verified, extracted into a staging
// directory, checked for the expected binary layout, and only then moved
// into its final location and registered. A crash at any point leaves the
// registry pointing only at complete installations.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/nodeup/nodeup/internal/dispatch"
	"github.com/nodeup/nodeup/internal/dist"
	"github.com/nodeup/nodeup/internal/registry"
	"github.com/nodeup/nodeup/internal/version"
)

var (
	// ErrRemovalIncomplete indicates an installation's files could not be
	// fully deleted. The registry entry is kept so a retry can finish the
	// job instead of leaving an orphaned tree behind.
	ErrRemovalIncomplete = errors.New("removal incomplete")

	// ErrLayoutInvalid indicates an extracted archive does not contain the
	// expected binaries and so was never registered.
	ErrLayoutInvalid = errors.New("archive layout invalid")
)

// RemovalIncompleteError reports which version's files survived a failed
// removal and where they are.
type RemovalIncompleteError struct {
	Version version.Version
	Path    string
	Err     error
}

// Error implements the error interface.
func (e *RemovalIncompleteError) Error() string {
	return fmt.Sprintf("removing %s at %s: %v", e.Version, e.Path, e.Err)
}

// Unwrap returns ErrRemovalIncomplete for errors.Is classification.
func (e *RemovalIncompleteError) Unwrap() error { return ErrRemovalIncomplete }

// Source provides everything the installer needs from a distribution
// mirror. dist.Client is the production implementation.
type Source interface {
	dist.AliasResolver
	Checksums(ctx context.Context, v version.Version) (map[string]string, error)
	DownloadArchive(ctx context.Context, v version.Version) (io.ReadCloser, error)
}

// Options adjust a single Install call.
type Options struct {
	// Default makes the installed version the global default afterwards.
	Default bool
	// OverrideDir, when non-empty, records a directory override pointing
	// at the installed version afterwards.
	OverrideDir string
	// Force reinstalls over an existing registration of the same version.
	Force bool
}

// Installer downloads, verifies, and registers runtime versions.
type Installer struct {
	store  *registry.Store
	source Source
	root   string
}

// New creates an Installer that places installations under root.
func New(store *registry.Store, source Source, root string) *Installer {
	return &Installer{store: store, source: source, root: root}
}

// Root returns the directory fresh installations are placed under.
func (i *Installer) Root() string { return i.root }

// Install resolves spec (a concrete version or an alias) and installs it.
// The returned version is the concrete one that was installed, so callers
// can report what an alias resolved to.
func (i *Installer) Install(ctx context.Context, spec string, opts Options) (version.Version, error) {
	v, err := i.resolveSpec(ctx, spec)
	if err != nil {
		return version.Version{}, err
	}

	snap, err := i.store.Load()
	if err != nil {
		return version.Version{}, err
	}
	registeredPath, registered := snap.InstallPath(v)
	if registered && !opts.Force {
		return v, fmt.Errorf("%s: %w", v, registry.ErrAlreadyInstalled)
	}

	if err := os.MkdirAll(i.root, 0o755); err != nil {
		return version.Version{}, fmt.Errorf("creating install root: %w", err)
	}

	payload, cleanup, err := i.stage(ctx, v)
	if err != nil {
		return version.Version{}, err
	}
	defer cleanup()

	// A force reinstall reuses the registered path so no registry mutation
	// is needed. A fresh install moves into place and registers in one
	// step under the registry lock: the version is confirmed absent before
	// the rename, so a concurrent installer of the same version fails with
	// ErrAlreadyInstalled without ever touching the winner's tree, and the
	// registry is only written after a successful rename, so it never
	// references an incomplete tree. An unregistered leftover at the
	// target is stale and safe to replace.
	target := filepath.Join(i.root, v.DistName())
	if registered {
		target = registeredPath
		if err := replaceTree(payload, target); err != nil {
			return version.Version{}, fmt.Errorf("moving %s into place: %w", v, err)
		}
	} else {
		err := i.store.AddWithCommit(v, target, func() error {
			if err := replaceTree(payload, target); err != nil {
				return fmt.Errorf("moving %s into place: %w", v, err)
			}
			return nil
		})
		if err != nil {
			return version.Version{}, err
		}
	}
	log.Debug("installed", "version", v, "path", target)

	if opts.Default {
		if err := i.store.SetDefault(v); err != nil {
			return v, fmt.Errorf("setting default after install: %w", err)
		}
	}
	if opts.OverrideDir != "" {
		if err := i.store.SetOverride(opts.OverrideDir, registry.TargetVersion(v)); err != nil {
			return v, fmt.Errorf("setting override after install: %w", err)
		}
	}
	return v, nil
}

// Remove deletes a version's files and then its registry entry, in that
// order. If deletion fails partway the registry entry survives so the
// version stays visible for a retried removal.
func (i *Installer) Remove(v version.Version) error {
	snap, err := i.store.Load()
	if err != nil {
		return err
	}
	path, ok := snap.InstallPath(v)
	if !ok {
		return fmt.Errorf("%s: %w", v, registry.ErrNotInstalled)
	}

	if err := os.RemoveAll(path); err != nil {
		return &RemovalIncompleteError{Version: v, Path: path, Err: err}
	}
	return i.store.Remove(v)
}

// resolveSpec turns the user's version spec into a concrete version.
func (i *Installer) resolveSpec(ctx context.Context, spec string) (version.Version, error) {
	if dist.IsAlias(spec) {
		v, err := i.source.ResolveAlias(ctx, spec)
		if err != nil {
			return version.Version{}, err
		}
		log.Debug("resolved alias", "alias", spec, "version", v)
		return v, nil
	}
	return version.Parse(spec)
}

// stage downloads, verifies, and extracts v into a staging directory under
// the install root, returning the payload directory ready to be renamed
// into place. On failure the staging directory is removed before
// returning; on success the cleanup func removes it, and is safe to call
// after the payload has been renamed away.
func (i *Installer) stage(ctx context.Context, v version.Version) (string, func(), error) {
	staging, err := os.MkdirTemp(i.root, ".staging-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating staging directory: %w", err)
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			log.Debug("removing staging directory", "path", staging, "err", rmErr)
		}
	}

	payload, err := i.populate(ctx, v, staging)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return payload, cleanup, nil
}

// populate runs the download-verify-extract pipeline inside staging and
// returns the payload directory once its layout checks out.
func (i *Installer) populate(ctx context.Context, v version.Version, staging string) (string, error) {
	archivePath := filepath.Join(staging, dist.ArchiveName(v))
	if err := i.download(ctx, v, archivePath); err != nil {
		return "", err
	}
	if err := i.verify(ctx, v, archivePath); err != nil {
		return "", err
	}

	extractDir := filepath.Join(staging, "extracted")
	if err := extractArchive(archivePath, extractDir); err != nil {
		return "", fmt.Errorf("extracting %s: %w", dist.ArchiveName(v), err)
	}

	// Release archives carry a single top-level directory named after the
	// platform archive.
	payload := filepath.Join(extractDir, v.DistName())
	if err := checkLayout(payload); err != nil {
		return "", err
	}
	return payload, nil
}

// download streams the archive to dest inside the staging directory.
func (i *Installer) download(ctx context.Context, v version.Version, dest string) error {
	body, err := i.source.DownloadArchive(ctx, v)
	if err != nil {
		return err
	}
	defer body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}

	_, err = io.Copy(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("downloading %s: %w", dist.ArchiveName(v), err)
	}
	return nil
}

// verify checks the downloaded archive against the release's checksum
// manifest before anything is extracted from it.
func (i *Installer) verify(ctx context.Context, v version.Version, archivePath string) error {
	sums, err := i.source.Checksums(ctx, v)
	if err != nil {
		return err
	}

	name := dist.ArchiveName(v)
	want, ok := sums[name]
	if !ok {
		return fmt.Errorf("manifest for %s has no entry for %s: %w", v, name, dist.ErrChecksumMissing)
	}
	return dist.VerifyFile(archivePath, want)
}

// checkLayout confirms the extracted payload contains every dispatchable
// binary. An archive that extracts without them never reaches the registry.
func checkLayout(payload string) error {
	if fi, err := os.Stat(payload); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: missing payload directory %s", ErrLayoutInvalid, filepath.Base(payload))
	}
	for _, cmd := range dispatch.Commands() {
		rel := dispatch.BinaryRelPath(cmd)
		if _, err := os.Stat(filepath.Join(payload, rel)); err != nil {
			return fmt.Errorf("%w: missing %s", ErrLayoutInvalid, rel)
		}
	}
	return nil
}

// replaceTree moves src to dst, clearing any previous tree at dst first.
// The rename is atomic; the preceding delete is what makes force reinstall
// a replace rather than a merge.
func replaceTree(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
