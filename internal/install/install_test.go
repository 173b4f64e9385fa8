// SPDX-License-Identifier: MPL-2.0

package install

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nodeup/nodeup/internal/dispatch"
	"github.com/nodeup/nodeup/internal/dist"
	"github.com/nodeup/nodeup/internal/registry"
	"github.com/nodeup/nodeup/internal/version"
)

// fakeSource serves generated archives from memory. Checksums are computed
// from the archive bytes, so tampering with either side is detectable.
type fakeSource struct {
	archives map[string][]byte // keyed by version tag
	aliases  dist.StaticAliases

	// badChecksum poisons the manifest entry for every archive.
	badChecksum bool
	// failDownload makes DownloadArchive return an error mid-pipeline.
	failDownload bool
}

func (s *fakeSource) ResolveAlias(ctx context.Context, alias string) (version.Version, error) {
	return s.aliases.ResolveAlias(ctx, alias)
}

func (s *fakeSource) Checksums(_ context.Context, v version.Version) (map[string]string, error) {
	data, ok := s.archives[v.String()]
	if !ok {
		return nil, dist.ErrVersionNotFound
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if s.badChecksum {
		hash = strings.Repeat("0", 64)
	}
	return map[string]string{dist.ArchiveName(v): hash}, nil
}

func (s *fakeSource) DownloadArchive(_ context.Context, v version.Version) (io.ReadCloser, error) {
	if s.failDownload {
		return nil, errors.New("connection reset")
	}
	data, ok := s.archives[v.String()]
	if !ok {
		return nil, dist.ErrVersionNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// makeArchive builds a release-shaped tar.gz: a single top-level directory
// named after the platform archive, with bin/node, bin/npm, and bin/npx.
// The content string is embedded in bin/node so reinstalls are observable.
func makeArchive(t *testing.T, v version.Version, content string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	top := v.DistName()
	writeDir := func(name string) {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name + "/",
			Typeflag: tar.TypeDir,
			Mode:     0o755,
		}); err != nil {
			t.Fatal(err)
		}
	}
	writeFile := func(name, body string) {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o755,
			Size:     int64(len(body)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}

	writeDir(top)
	writeDir(top + "/bin")
	writeFile(top+"/bin/node", content)
	writeFile(top+"/bin/npm", "#!/bin/sh\n")
	writeFile(top+"/bin/npx", "#!/bin/sh\n")

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newInstaller(t *testing.T, source Source) (*Installer, *registry.Store, string) {
	t.Helper()

	base := t.TempDir()
	store := registry.NewStore(
		filepath.Join(base, "registry.toml"),
		filepath.Join(base, "registry.lock"),
	)
	root := filepath.Join(base, "installs")
	return New(store, source, root), store, root
}

func TestInstall_RegistersCompleteInstallation(t *testing.T) {
	t.Parallel()

	v := version.MustParse("20.11.1")
	src := &fakeSource{archives: map[string][]byte{
		v.String(): makeArchive(t, v, "node v20"),
	}}
	inst, store, root := newInstaller(t, src)

	got, err := inst.Install(context.Background(), "20.11.1", Options{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if got != v {
		t.Errorf("installed version = %s, want %s", got, v)
	}

	snap, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	path, ok := snap.InstallPath(v)
	if !ok {
		t.Fatal("version not registered after install")
	}
	if path != filepath.Join(root, v.DistName()) {
		t.Errorf("install path = %q", path)
	}
	for _, cmd := range dispatch.Commands() {
		if _, err := os.Stat(filepath.Join(path, dispatch.BinaryRelPath(cmd))); err != nil {
			t.Errorf("missing %s after install: %v", cmd, err)
		}
	}

	// No staging leftovers after a clean install.
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".staging-") {
			t.Errorf("staging leftover %s after successful install", e.Name())
		}
	}
}

func TestInstall_AliasResolvesBeforeRegistration(t *testing.T) {
	t.Parallel()

	v := version.MustParse("20.11.1")
	src := &fakeSource{
		archives: map[string][]byte{v.String(): makeArchive(t, v, "lts")},
		aliases:  dist.StaticAliases{"lts": v},
	}
	inst, store, _ := newInstaller(t, src)

	got, err := inst.Install(context.Background(), "lts", Options{})
	if err != nil {
		t.Fatalf("Install(lts): %v", err)
	}
	if got != v {
		t.Errorf("alias resolved to %s, want %s", got, v)
	}

	// Only the concrete version is registered, never the alias.
	snap, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if vs := snap.Versions(); len(vs) != 1 || vs[0] != v {
		t.Errorf("registered versions = %v", vs)
	}
}

func TestInstall_AlreadyInstalled(t *testing.T) {
	t.Parallel()

	v := version.MustParse("20.11.1")
	src := &fakeSource{archives: map[string][]byte{
		v.String(): makeArchive(t, v, "first"),
	}}
	inst, _, _ := newInstaller(t, src)

	if _, err := inst.Install(context.Background(), "20.11.1", Options{}); err != nil {
		t.Fatal(err)
	}
	_, err := inst.Install(context.Background(), "20.11.1", Options{})
	if !errors.Is(err, registry.ErrAlreadyInstalled) {
		t.Fatalf("got %v, want ErrAlreadyInstalled", err)
	}
}

func TestInstall_ForceReplacesFiles(t *testing.T) {
	t.Parallel()

	v := version.MustParse("20.11.1")
	src := &fakeSource{archives: map[string][]byte{
		v.String(): makeArchive(t, v, "first"),
	}}
	inst, store, _ := newInstaller(t, src)

	if _, err := inst.Install(context.Background(), "20.11.1", Options{}); err != nil {
		t.Fatal(err)
	}

	src.archives[v.String()] = makeArchive(t, v, "second")
	if _, err := inst.Install(context.Background(), "20.11.1", Options{Force: true}); err != nil {
		t.Fatalf("force reinstall: %v", err)
	}

	snap, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	path, _ := snap.InstallPath(v)
	body, err := os.ReadFile(filepath.Join(path, "bin", "node"))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "second" {
		t.Errorf("bin/node = %q, want the reinstalled content", body)
	}
	if vs := snap.Versions(); len(vs) != 1 {
		t.Errorf("registered versions = %v, want exactly one", vs)
	}
}

func TestInstall_ConcurrentSameVersion(t *testing.T) {
	t.Parallel()

	v := version.MustParse("20.11.1")
	src := &fakeSource{archives: map[string][]byte{
		v.String(): makeArchive(t, v, "winner"),
	}}
	inst, store, root := newInstaller(t, src)

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = inst.Install(context.Background(), "20.11.1", Options{})
		}()
	}
	wg.Wait()

	var successes, already int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, registry.ErrAlreadyInstalled):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || already != 1 {
		t.Fatalf("got %d successes and %d AlreadyInstalled, want exactly 1 of each", successes, already)
	}

	// The loser must not have touched the winner's registered tree.
	snap, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if vs := snap.Versions(); len(vs) != 1 {
		t.Fatalf("registry lists %v, want exactly one entry", vs)
	}
	path, ok := snap.InstallPath(v)
	if !ok {
		t.Fatal("version not registered after concurrent installs")
	}
	for _, cmd := range dispatch.Commands() {
		if _, err := os.Stat(filepath.Join(path, dispatch.BinaryRelPath(cmd))); err != nil {
			t.Errorf("winner's %s gone after concurrent install: %v", cmd, err)
		}
	}

	// The loser's staging state is cleaned up, not merely abandoned.
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".staging-") {
			t.Errorf("staging leftover %s after concurrent installs", e.Name())
		}
	}
}

func TestInstall_ChecksumMismatchAborts(t *testing.T) {
	t.Parallel()

	v := version.MustParse("20.11.1")
	src := &fakeSource{
		archives:    map[string][]byte{v.String(): makeArchive(t, v, "x")},
		badChecksum: true,
	}
	inst, store, root := newInstaller(t, src)

	_, err := inst.Install(context.Background(), "20.11.1", Options{})
	if !errors.Is(err, dist.ErrChecksumMismatch) {
		t.Fatalf("got %v, want ErrChecksumMismatch", err)
	}

	assertNothingInstalled(t, store, root)
}

func TestInstall_DownloadFailureLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()

	v := version.MustParse("20.11.1")
	src := &fakeSource{
		archives:     map[string][]byte{v.String(): makeArchive(t, v, "x")},
		failDownload: true,
	}
	inst, store, root := newInstaller(t, src)

	if _, err := inst.Install(context.Background(), "20.11.1", Options{}); err == nil {
		t.Fatal("expected a download error")
	}
	assertNothingInstalled(t, store, root)
}

func TestInstall_IncompleteArchiveRejected(t *testing.T) {
	t.Parallel()

	// An archive missing bin/npm must never be registered.
	v := version.MustParse("20.11.1")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	top := v.DistName()
	for _, h := range []*tar.Header{
		{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755},
		{Name: top + "/bin/", Typeflag: tar.TypeDir, Mode: 0o755},
		{Name: top + "/bin/node", Typeflag: tar.TypeReg, Mode: 0o755, Size: 1},
	} {
		if err := tw.WriteHeader(h); err != nil {
			t.Fatal(err)
		}
		if h.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte("x")); err != nil {
				t.Fatal(err)
			}
		}
	}
	tw.Close()
	gz.Close()

	src := &fakeSource{archives: map[string][]byte{v.String(): buf.Bytes()}}
	inst, store, root := newInstaller(t, src)

	_, err := inst.Install(context.Background(), "20.11.1", Options{})
	if !errors.Is(err, ErrLayoutInvalid) {
		t.Fatalf("got %v, want ErrLayoutInvalid", err)
	}
	assertNothingInstalled(t, store, root)
}

func TestInstall_SideEffects(t *testing.T) {
	t.Parallel()

	v := version.MustParse("20.11.1")
	src := &fakeSource{archives: map[string][]byte{
		v.String(): makeArchive(t, v, "x"),
	}}
	inst, store, _ := newInstaller(t, src)

	project := t.TempDir()
	if _, err := inst.Install(context.Background(), "20.11.1", Options{
		Default:     true,
		OverrideDir: project,
	}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	snap, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if def, ok := snap.Default(); !ok || def != v {
		t.Errorf("default = %v, %v; want %s", def, ok, v)
	}
	key, err := registry.CanonicalDir(project)
	if err != nil {
		t.Fatal(err)
	}
	target, ok := snap.Override(key)
	if !ok || target.IsDefault() || target.Version() != v {
		t.Errorf("override = %v, %v; want %s", target, ok, v)
	}
}

func TestInstall_InvalidSpec(t *testing.T) {
	t.Parallel()

	inst, _, _ := newInstaller(t, &fakeSource{})
	if _, err := inst.Install(context.Background(), "not-a-version", Options{}); !errors.Is(err, version.ErrInvalidVersion) {
		t.Fatalf("got %v, want ErrInvalidVersion", err)
	}
}

func TestRemove_DeletesFilesAndEntry(t *testing.T) {
	t.Parallel()

	v := version.MustParse("20.11.1")
	src := &fakeSource{archives: map[string][]byte{
		v.String(): makeArchive(t, v, "x"),
	}}
	inst, store, _ := newInstaller(t, src)

	if _, err := inst.Install(context.Background(), "20.11.1", Options{Default: true}); err != nil {
		t.Fatal(err)
	}
	snap, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	path, _ := snap.InstallPath(v)

	if err := inst.Remove(v); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("install tree still present: %v", err)
	}
	snap, err = store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Versions()) != 0 {
		t.Errorf("registry still lists %v", snap.Versions())
	}
	if _, ok := snap.Default(); ok {
		t.Error("default survived removal of its version")
	}
}

func TestRemove_NotInstalled(t *testing.T) {
	t.Parallel()

	inst, _, _ := newInstaller(t, &fakeSource{})
	err := inst.Remove(version.MustParse("20.11.1"))
	if !errors.Is(err, registry.ErrNotInstalled) {
		t.Fatalf("got %v, want ErrNotInstalled", err)
	}
}

func assertNothingInstalled(t *testing.T, store *registry.Store, root string) {
	t.Helper()

	snap, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if vs := snap.Versions(); len(vs) != 0 {
		t.Errorf("registry lists %v after a failed install", vs)
	}

	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".staging-") {
			t.Errorf("staging leftover %s after a failed install", e.Name())
			continue
		}
		if !strings.HasPrefix(e.Name(), ".") {
			t.Errorf("unexpected entry %s under install root", e.Name())
		}
	}
}

func TestExtractArchive_RejectsTraversal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../escape",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     1,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()

	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	if err := os.WriteFile(archive, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	err := extractArchive(archive, filepath.Join(dir, "out"))
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Fatalf("got %v, want a traversal rejection", err)
	}
}

func TestExtractArchive_RejectsAbsoluteSymlink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "link",
		Typeflag: tar.TypeSymlink,
		Linkname: "/etc/passwd",
		Mode:     0o777,
	}); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()

	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	if err := os.WriteFile(archive, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	err := extractArchive(archive, filepath.Join(dir, "out"))
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Fatalf("got %v, want a symlink rejection", err)
	}
}

func TestExtractArchive_PreservesSymlinksAndModes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, h := range []*tar.Header{
		{Name: "pkg/", Typeflag: tar.TypeDir, Mode: 0o755},
		{Name: "pkg/real", Typeflag: tar.TypeReg, Mode: 0o755, Size: 2},
		{Name: "pkg/alias", Typeflag: tar.TypeSymlink, Linkname: "real", Mode: 0o777},
	} {
		if err := tw.WriteHeader(h); err != nil {
			t.Fatal(err)
		}
		if h.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte("ok")); err != nil {
				t.Fatal(err)
			}
		}
	}
	tw.Close()
	gz.Close()

	dir := t.TempDir()
	archive := filepath.Join(dir, "a.tar.gz")
	if err := os.WriteFile(archive, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")
	if err := extractArchive(archive, out); err != nil {
		t.Fatalf("extractArchive: %v", err)
	}

	fi, err := os.Stat(filepath.Join(out, "pkg", "real"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", fi.Mode().Perm())
	}

	target, err := os.Readlink(filepath.Join(out, "pkg", "alias"))
	if err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if target != "real" {
		t.Errorf("symlink target = %q, want %q", target, "real")
	}

	body, err := os.ReadFile(filepath.Join(out, "pkg", "alias"))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "ok" {
		t.Errorf("content through symlink = %q", body)
	}
}
