// SPDX-License-Identifier: MPL-2.0

package install

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxEntryBytes caps a single extracted file (500 MB), guarding against
// decompression bombs in a hostile archive.
const maxEntryBytes = 500 << 20

// extractArchive unpacks the tar.gz at archivePath into dest. Entry names
// must stay inside dest; link targets must not escape it either. Modes are
// preserved so bin/ entries stay executable.
func extractArchive(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the extraction root", hdr.Name)
		}
		target := filepath.Join(dest, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0o700); err != nil {
				return fmt.Errorf("creating directory %s: %w", name, err)
			}

		case tar.TypeReg:
			if err := writeEntry(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("extracting %s: %w", name, err)
			}

		case tar.TypeSymlink:
			if !linkStaysLocal(name, hdr.Linkname) {
				return fmt.Errorf("symlink %q -> %q escapes the extraction root", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", name, err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("creating symlink %s: %w", name, err)
			}

		case tar.TypeLink:
			linkName := filepath.FromSlash(hdr.Linkname)
			if !filepath.IsLocal(linkName) {
				return fmt.Errorf("hardlink %q -> %q escapes the extraction root", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", name, err)
			}
			if err := os.Link(filepath.Join(dest, linkName), target); err != nil {
				return fmt.Errorf("creating hardlink %s: %w", name, err)
			}

		default:
			// Character devices, fifos and the like have no business in a
			// runtime archive.
			return fmt.Errorf("archive entry %q has unsupported type %d", hdr.Name, hdr.Typeflag)
		}
	}
}

// writeEntry copies one regular file out of the archive, creating parents
// as needed and bounding the copy at maxEntryBytes.
func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	n, err := io.Copy(out, io.LimitReader(r, maxEntryBytes+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if n > maxEntryBytes {
		return fmt.Errorf("entry exceeds %d byte limit", int64(maxEntryBytes))
	}
	return nil
}

// linkStaysLocal reports whether a symlink at entry name pointing at
// linkname still resolves inside the extraction root.
func linkStaysLocal(name, linkname string) bool {
	if filepath.IsAbs(linkname) {
		return false
	}
	resolved := filepath.Join(filepath.Dir(name), filepath.FromSlash(linkname))
	return filepath.IsLocal(resolved)
}
