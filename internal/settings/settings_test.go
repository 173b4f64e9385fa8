// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nodeup/nodeup/internal/dist"
	"github.com/nodeup/nodeup/internal/registry"
)

// Tests mutate the environment, so none run in parallel.

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfgDir := t.TempDir()
	dataDir := t.TempDir()
	t.Setenv("NODEUP_CONFIG", cfgDir)
	t.Setenv("NODEUP_DOWNLOADS", dataDir)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DistMirror != dist.DefaultMirror {
		t.Errorf("DistMirror = %q", s.DistMirror)
	}
	if s.InstallRoot != dataDir {
		t.Errorf("InstallRoot = %q, want %q", s.InstallRoot, dataDir)
	}
	if s.LockTimeout != registry.DefaultLockTimeout {
		t.Errorf("LockTimeout = %v", s.LockTimeout)
	}
}

func TestLoad_SettingsFile(t *testing.T) {
	cfgDir := t.TempDir()
	t.Setenv("NODEUP_CONFIG", cfgDir)
	t.Setenv("NODEUP_DOWNLOADS", t.TempDir())

	content := "dist_mirror = \"https://mirror.internal/node\"\n" +
		"install_root = \"" + filepath.ToSlash(filepath.Join(cfgDir, "versions")) + "\"\n" +
		"lock_timeout = \"30s\"\n"
	if err := os.WriteFile(filepath.Join(cfgDir, "settings.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DistMirror != "https://mirror.internal/node" {
		t.Errorf("DistMirror = %q", s.DistMirror)
	}
	if s.InstallRoot != filepath.Join(cfgDir, "versions") {
		t.Errorf("InstallRoot = %q", s.InstallRoot)
	}
	if s.LockTimeout != 30*time.Second {
		t.Errorf("LockTimeout = %v", s.LockTimeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfgDir := t.TempDir()
	t.Setenv("NODEUP_CONFIG", cfgDir)
	t.Setenv("NODEUP_DOWNLOADS", t.TempDir())

	if err := os.WriteFile(filepath.Join(cfgDir, "settings.toml"),
		[]byte("dist_mirror = \"https://from-file\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NODEUP_DIST_MIRROR", "https://from-env")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DistMirror != "https://from-env" {
		t.Errorf("DistMirror = %q, want the environment value", s.DistMirror)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	cfgDir := t.TempDir()
	t.Setenv("NODEUP_CONFIG", cfgDir)
	t.Setenv("NODEUP_DOWNLOADS", t.TempDir())

	if err := os.WriteFile(filepath.Join(cfgDir, "settings.toml"),
		[]byte("dist_mirror = [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("malformed settings file must fail loudly, not fall back to defaults")
	}
}

func TestLoad_RelativeInstallRootRejected(t *testing.T) {
	cfgDir := t.TempDir()
	t.Setenv("NODEUP_CONFIG", cfgDir)
	t.Setenv("NODEUP_DOWNLOADS", t.TempDir())

	if err := os.WriteFile(filepath.Join(cfgDir, "settings.toml"),
		[]byte("install_root = \"relative/path\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("relative install_root must be rejected")
	}
}

func TestPath(t *testing.T) {
	cfgDir := t.TempDir()
	t.Setenv("NODEUP_CONFIG", cfgDir)

	p, err := Path()
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join(cfgDir, "settings.toml") {
		t.Errorf("Path = %q", p)
	}
}
