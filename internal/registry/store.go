// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/nodeup/nodeup/internal/version"
)

// DefaultLockTimeout bounds how long a mutation waits for the registry
// lock before failing with ErrRegistryLocked. Installs can legitimately
// hold the lock for a moment, so the bound is generous.
const DefaultLockTimeout = 10 * time.Second

// Store mediates every access to the persisted registry. Reads go through
// Load and take no lock; mutations serialize on an advisory file lock and
// replace the registry atomically via a same-directory rename.
type Store struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
}

// StoreOption configures a Store during construction.
type StoreOption func(*Store)

// WithLockTimeout overrides the bounded wait for the mutation lock.
func WithLockTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// NewStore creates a Store over the registry file at path, with a sibling
// lock file derived from lockPath.
func NewStore(path, lockPath string, opts ...StoreOption) *Store {
	s := &Store{
		path:        path,
		lockPath:    lockPath,
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the registry file path.
func (s *Store) Path() string { return s.path }

// Load reads and parses the registry without taking the mutation lock. A
// missing file is an empty registry — created lazily by the first mutation.
func (s *Store) Load() (*Snapshot, error) {
	rf, err := s.read()
	if err != nil {
		return nil, err
	}
	return parseSnapshot(s.path, rf)
}

// Add records an installed version and its installation directory.
// Fails with ErrAlreadyInstalled if the version key exists.
func (s *Store) Add(v version.Version, installPath string) error {
	return s.AddWithCommit(v, installPath, nil)
}

// AddWithCommit records an installed version after running commit, which
// executes while the mutation lock is held and the version is confirmed
// absent. A commit failure leaves the registry untouched. Installers use
// the commit step to move the installation tree into place, so of several
// concurrent installers of the same version only the winner ever touches
// the shared install path.
func (s *Store) AddWithCommit(v version.Version, installPath string, commit func() error) error {
	return s.mutate(func(rf *registryFile) error {
		if _, ok := rf.Versions[v.String()]; ok {
			return fmt.Errorf("%w: %s", ErrAlreadyInstalled, v)
		}
		if commit != nil {
			if err := commit(); err != nil {
				return err
			}
		}
		if rf.Versions == nil {
			rf.Versions = make(map[string]string)
		}
		rf.Versions[v.String()] = installPath
		return nil
	})
}

// Remove deletes a version from the installed set. The default is cleared
// if it pointed at v, and every override targeting v is dropped — callers
// listing overrides afterwards will not see them.
func (s *Store) Remove(v version.Version) error {
	return s.mutate(func(rf *registryFile) error {
		if _, ok := rf.Versions[v.String()]; !ok {
			return fmt.Errorf("%w: %s", ErrNotInstalled, v)
		}
		delete(rf.Versions, v.String())
		if rf.Default == v.String() {
			rf.Default = ""
		}
		for dir, raw := range rf.Overrides {
			if raw == v.String() {
				delete(rf.Overrides, dir)
			}
		}
		return nil
	})
}

// SetDefault marks v as the process-wide default version.
// Fails with ErrNotInstalled if v is not in the installed set.
func (s *Store) SetDefault(v version.Version) error {
	return s.mutate(func(rf *registryFile) error {
		if _, ok := rf.Versions[v.String()]; !ok {
			return fmt.Errorf("%w: %s", ErrNotInstalled, v)
		}
		rf.Default = v.String()
		return nil
	})
}

// ClearDefault unsets the default version. Clearing an already-unset
// default is a no-op.
func (s *Store) ClearDefault() error {
	return s.mutate(func(rf *registryFile) error {
		rf.Default = ""
		return nil
	})
}

// SetOverride records an override for dir. The directory key is stored in
// canonical absolute form so lookups from symlinked or relative working
// directories resolve identically. A concrete target must reference an
// installed version.
func (s *Store) SetOverride(dir string, t Target) error {
	canonical, err := CanonicalDir(dir)
	if err != nil {
		return err
	}
	return s.mutate(func(rf *registryFile) error {
		if !t.IsDefault() {
			if _, ok := rf.Versions[t.Version().String()]; !ok {
				return fmt.Errorf("%w: %s", ErrNotInstalled, t.Version())
			}
		}
		if rf.Overrides == nil {
			rf.Overrides = make(map[string]string)
		}
		rf.Overrides[canonical] = t.String()
		return nil
	})
}

// RemoveOverride drops the override for dir, if any. Removing a
// nonexistent override is a no-op.
func (s *Store) RemoveOverride(dir string) error {
	canonical, err := CanonicalDir(dir)
	if err != nil {
		return err
	}
	return s.mutate(func(rf *registryFile) error {
		delete(rf.Overrides, canonical)
		return nil
	})
}

// CanonicalDir normalizes a directory path to the form used for override
// keys: absolute, cleaned, and with symlinks resolved when the path exists.
func CanonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("canonicalizing %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Nonexistent paths keep their cleaned absolute form.
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}

// read parses the registry wire form, treating a missing file as empty.
func (s *Store) read() (*registryFile, error) {
	rf := &registryFile{}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return rf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", s.path, err)
	}

	if err := toml.Unmarshal(data, rf); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	return rf, nil
}

// mutate serializes a read-modify-write cycle under the advisory lock and
// persists the result with write-temp-then-rename, so an interrupted writer
// leaves the previous valid registry intact.
func (s *Store) mutate(apply func(*registryFile) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	lock, err := acquireLock(s.lockPath, s.lockTimeout)
	if err != nil {
		if errors.Is(err, errLockUnavailable) {
			// No advisory locking on this platform; proceed with the atomic
			// rename discipline as the only protection.
			log.Debug("advisory locking unavailable", "lock", s.lockPath)
		} else {
			return err
		}
	}
	defer lock.release()

	rf, err := s.read()
	if err != nil {
		return err
	}

	// Validate before mutating so apply sees a structurally sound registry.
	if _, err := parseSnapshot(s.path, rf); err != nil {
		return err
	}

	if err := apply(rf); err != nil {
		return err
	}

	return s.writeAtomic(rf)
}

// writeAtomic marshals rf to a temp file next to the registry and renames
// it into place. The temp file lives in the same directory so the rename is
// a same-filesystem atomic replacement.
func (s *Store) writeAtomic(rf *registryFile) (err error) {
	data, err := toml.Marshal(rf)
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".registry-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp registry file: %w", err)
	}
	// Flush to durable storage before the rename makes it visible.
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp registry file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp registry file: %w", err)
	}

	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing registry file: %w", err)
	}
	return nil
}
