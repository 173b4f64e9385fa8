// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package registry

import (
	"errors"
	"time"
)

// errLockUnavailable indicates this platform has no flock. The store falls
// back to the atomic-rename discipline alone.
var errLockUnavailable = errors.New("advisory locking not available on this platform")

// fileLock is the stub for platforms without flock.
type fileLock struct{}

// acquireLock always reports that locking is unavailable.
func acquireLock(string, time.Duration) (*fileLock, error) {
	return nil, errLockUnavailable
}

// release is a no-op on platforms without flock.
func (l *fileLock) release() {}
