package lock

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/boxbackup-go/backupstore/pkg/fs"
)

// errParentMissing is returned by a platform's acquireExclusive when the
// open failed because the lock file's parent directory doesn't exist yet.
// NamedLock.TryAcquire creates the directory and retries once.
var errParentMissing = errors.New("lock: parent directory missing")

// releaseHold removes the lockfile at path and releases file's hold on it.
//
// Every acquisition strategy in this package (flock on Linux, O_EXLOCK on
// BSD-family kernels, create-exclusive elsewhere) surrenders its hold when
// the descriptor is closed at the latest, so wherever an open file can be
// unlinked the lockfile is unlinked before the descriptor is closed: once
// path is gone, a
// racing acquirer opening path either creates a fresh inode or observes the
// lockfile is simply absent. Either way it never finds an orphaned-but-
// unlocked lockfile sitting at path between our unlock and our close.
//
// On Windows an open handle prevents the unlink, so there the descriptor is
// closed first and the lockfile removed second.
//
// The unlink goes through fsys, the same seam TryAcquire opens and stats
// the lockfile through, rather than calling os.Remove directly.
func releaseHold(fsys fs.FS, path string, file fs.File) error {
	var removeErr, closeErr error

	if runtime.GOOS == "windows" {
		closeErr = unlockAndClose(file)
		removeErr = fsys.Remove(path)
	} else {
		removeErr = fsys.Remove(path)
		closeErr = unlockAndClose(file)
	}

	if removeErr != nil {
		return fmt.Errorf("removing lockfile: %w", removeErr)
	}

	return closeErr
}
