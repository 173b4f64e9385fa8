// SPDX-License-Identifier: MPL-2.0

// Package settings loads the optional user settings file and its
// environment overrides. Settings tune behavior (mirror, install root,
// lock timeout); they never hold version state, which belongs to the
// registry alone.
package settings

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/nodeup/nodeup/internal/dist"
	"github.com/nodeup/nodeup/internal/home"
	"github.com/nodeup/nodeup/internal/registry"
)

// Settings are the user-tunable knobs. Every field has a working default;
// a missing settings file is not an error.
type Settings struct {
	// DistMirror is the distribution mirror base URL.
	DistMirror string `mapstructure:"dist_mirror"`
	// InstallRoot is the directory that holds version installations.
	InstallRoot string `mapstructure:"install_root"`
	// LockTimeout bounds how long registry mutations wait for the lock.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// Load reads settings from the config directory's settings.toml, if any,
// applying NODEUP_* environment overrides on top and defaults underneath.
func Load() (*Settings, error) {
	cfgDir, err := home.ConfigDir()
	if err != nil {
		return nil, err
	}
	return loadFrom(cfgDir)
}

func loadFrom(cfgDir string) (*Settings, error) {
	dataDir, err := home.DataDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("dist_mirror", dist.DefaultMirror)
	v.SetDefault("install_root", dataDir)
	v.SetDefault("lock_timeout", registry.DefaultLockTimeout)

	v.SetConfigName(home.SettingsFileName)
	v.SetConfigType("toml")
	v.AddConfigPath(cfgDir)

	v.SetEnvPrefix("NODEUP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading settings file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}

	if s.DistMirror == "" {
		s.DistMirror = dist.DefaultMirror
	}
	if s.InstallRoot == "" {
		s.InstallRoot = dataDir
	}
	if !filepath.IsAbs(s.InstallRoot) {
		return nil, fmt.Errorf("install_root must be an absolute path, got %q", s.InstallRoot)
	}
	if s.LockTimeout <= 0 {
		s.LockTimeout = registry.DefaultLockTimeout
	}
	return &s, nil
}

// Path returns where the settings file is expected to live, whether or not
// it exists. The CLI names it when settings fail to load.
func Path() (string, error) {
	cfgDir, err := home.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, home.SettingsFileName+".toml"), nil
}
