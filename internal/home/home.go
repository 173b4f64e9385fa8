// SPDX-License-Identifier: MPL-2.0

// Package home locates the per-user directories nodeup reads and writes:
// the config directory (registry and settings), the data directory
// (installed runtime versions), and the links directory (dispatch symlinks).
//
// Each directory honors an explicit NODEUP_* environment override first,
// then falls back to platform conventions: Windows uses %APPDATA% /
// %LOCALAPPDATA%, macOS uses ~/Library/Application Support, and Linux and
// others use the XDG base directories with their documented defaults.
package home

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppName is the application name used as the per-user subdirectory.
	AppName = "nodeup"

	// RegistryFileName is the registry file name inside the config dir.
	RegistryFileName = "registry.toml"

	// LockFileName is the registry lock file, sibling to the registry.
	LockFileName = "registry.lock"

	// SettingsFileName is the optional tool settings file (without extension,
	// viper convention).
	SettingsFileName = "settings"
)

// ConfigDir returns the directory holding the registry and settings files.
// Order of preference: $NODEUP_CONFIG, then the platform config dir plus
// the app name.
func ConfigDir() (string, error) {
	if dir := os.Getenv("NODEUP_CONFIG"); dir != "" {
		return dir, nil
	}

	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		h, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determining home directory: %w", err)
		}
		base = filepath.Join(h, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			h, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("determining home directory: %w", err)
			}
			base = filepath.Join(h, ".config")
		}
	}

	return filepath.Join(base, AppName), nil
}

// DataDir returns the root under which runtime versions are installed.
// Order of preference: $NODEUP_DOWNLOADS, then the platform data dir plus
// the app name.
func DataDir() (string, error) {
	if dir := os.Getenv("NODEUP_DOWNLOADS"); dir != "" {
		return dir, nil
	}

	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
	case "darwin":
		h, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determining home directory: %w", err)
		}
		base = filepath.Join(h, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_DATA_HOME")
		if base == "" {
			h, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("determining home directory: %w", err)
			}
			base = filepath.Join(h, ".local", "share")
		}
	}

	return filepath.Join(base, AppName), nil
}

// LinksDir returns the directory where the dispatch symlinks (node, npm,
// npx) live. Order of preference: $NODEUP_LINKS, $XDG_BIN_HOME/nodeup/links,
// then ~/.local/bin.
func LinksDir() (string, error) {
	if dir := os.Getenv("NODEUP_LINKS"); dir != "" {
		return dir, nil
	}
	if dir := os.Getenv("XDG_BIN_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "links"), nil
	}

	h, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(h, ".local", "bin"), nil
}

// RegistryPath returns the full path of the registry file.
func RegistryPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, RegistryFileName), nil
}

// LockPath returns the full path of the registry lock file.
func LockPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LockFileName), nil
}
