// Package lock implements a per-account exclusive filesystem lock.
//
// A [NamedLock] guards a single path and gives at most one holder at a time
// across processes on the same host. It is non-blocking: [NamedLock.TryAcquire]
// either succeeds immediately or reports that another holder owns the lock.
//
// The actual acquisition mechanism is platform-specific and lives in
// lock_bsd.go / lock_linux.go / lock_fallback.go, selected by build tags.
// All three implementations satisfy the same contract: open (creating the
// file if needed), take an exclusive hold, and report whether the hold was
// obtained without blocking.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/boxbackup-go/backupstore/pkg/fs"
)

// ErrLockUsage is returned by [NamedLock.TryAcquire] when the lock is already
// held by this NamedLock instance, and by [NamedLock.Release] when the lock
// is not currently held.
var ErrLockUsage = errors.New("lock: invalid usage")

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755
)

// NamedLock is an exclusive, filesystem-path-backed lock intended for
// single-writer-per-account coordination between independent processes.
//
// NamedLock is not safe for concurrent use by multiple goroutines against the
// same instance; it models one holder. Create one NamedLock per attempted
// acquisition.
type NamedLock struct {
	fsys fs.FS
	path string

	mu   sync.Mutex
	file fs.File
}

// New creates a NamedLock guarding path. Acquisition is not attempted until
// [NamedLock.TryAcquire] is called.
func New(fsys fs.FS, path string) *NamedLock {
	return &NamedLock{fsys: fsys, path: path}
}

// TryAcquire attempts to take the exclusive hold without blocking.
//
// Returns (true, nil) on success. Returns (false, nil) if another holder
// currently owns the lock. Any other error is a filesystem error unrelated to
// contention.
//
// Calling TryAcquire on a NamedLock that already holds the lock returns
// [ErrLockUsage] without touching the filesystem.
func (l *NamedLock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return false, fmt.Errorf("%w: lock already held, call Release first", ErrLockUsage)
	}

	file, acquired, err := acquireExclusive(l.fsys, l.path, lockFilePerm)
	if err != nil {
		if errors.Is(err, errParentMissing) {
			if mkErr := l.fsys.MkdirAll(filepath.Dir(l.path), lockDirPerm); mkErr != nil {
				return false, fmt.Errorf("creating lock directory: %w", mkErr)
			}

			file, acquired, err = acquireExclusive(l.fsys, l.path, lockFilePerm)
		}

		if err != nil {
			return false, fmt.Errorf("acquiring lock %s: %w", l.path, err)
		}
	}

	if !acquired {
		if file != nil {
			_ = file.Close()
		}

		return false, nil
	}

	match, err := inodeMatchesPath(l.fsys, l.path, file)
	if err != nil || !match {
		_ = unlockAndClose(file)

		if err != nil {
			return false, fmt.Errorf("verifying lock file identity: %w", err)
		}

		// The file was unlinked (or replaced) between open and lock; treat
		// this the same as losing a race for the lock. We don't own path
		// anymore (we may be holding a lock on a now-unreachable inode, or
		// on an inode that belongs to whoever replaced it), so we must not
		// remove whatever is at path now.
		return false, nil
	}

	l.file = file

	return true, nil
}

// Release releases the hold and removes the lockfile.
//
// Release must only be called after a successful [NamedLock.TryAcquire].
// Calling it without holding the lock returns [ErrLockUsage].
func (l *NamedLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("%w: lock not held", ErrLockUsage)
	}

	file := l.file
	l.file = nil

	return releaseHold(l.fsys, l.path, file)
}

func inodeMatchesPath(fsys fs.FS, path string, f fs.File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}

	pathInfo, err := fsys.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	return os.SameFile(openInfo, pathInfo), nil
}
