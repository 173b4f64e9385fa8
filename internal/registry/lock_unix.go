// SPDX-License-Identifier: MPL-2.0

//go:build unix

package registry

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// errLockUnavailable exists for cross-platform compatibility with
// lock_other.go; acquireLock never returns it on unix.
var errLockUnavailable = errors.New("advisory locking not available on this platform")

// lockPollInterval is the retry cadence while waiting for the flock. The
// lock is polled non-blockingly so the overall wait stays bounded even if
// a crashed holder never releases cleanly.
const lockPollInterval = 50 * time.Millisecond

// fileLock holds an exclusive flock on the registry lock file. The
// zero-byte lock file is harmless if orphaned — the kernel releases the
// flock when the fd closes, including on process crash.
type fileLock struct {
	file *os.File
}

// acquireLock opens (or creates) the lock file and acquires an exclusive
// flock, polling with LOCK_NB until timeout elapses. Returns
// ErrRegistryLocked when the bound is exceeded.
func acquireLock(path string, timeout time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{file: f}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%w: %s", ErrRegistryLocked, path)
		}
		time.Sleep(lockPollInterval)
	}
}

// release unlocks the flock and closes the fd. Safe to call on a nil lock
// and safe to call more than once.
func (l *fileLock) release() {
	if l == nil || l.file == nil {
		return
	}
	// LOCK_UN before Close for explicitness; Close also releases the flock.
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}
