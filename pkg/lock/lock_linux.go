//go:build linux

package lock

import (
	"errors"
	"os"

	"github.com/boxbackup-go/backupstore/pkg/fs"
	"golang.org/x/sys/unix"
)

// acquireExclusive implements acquisition strategy 3 from the package
// contract: an ordinary open followed by an advisory whole-file write-lock.
// Linux has no O_EXLOCK open flag, so strategy 1 isn't available here.
func acquireExclusive(fsys fs.FS, path string, perm os.FileMode) (fs.File, bool, error) {
	file, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, perm)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, errParentMissing
		}

		return nil, false, err
	}

	err = flockRetryEINTR(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return file, true, nil
	}

	_ = file.Close()

	if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
		return nil, false, nil
	}

	return nil, false, err
}

func unlockAndClose(file fs.File) error {
	unlockErr := flockRetryEINTR(int(file.Fd()), unix.LOCK_UN)
	closeErr := file.Close()

	if unlockErr != nil {
		return unlockErr
	}

	return closeErr
}

// flockRetryEINTR retries unix.Flock when interrupted by a signal. Go's
// stdlib retries forever in this situation (see os package's
// ignoringEINTR); we cap retries so a pathological signal storm can't wedge
// the caller indefinitely.
func flockRetryEINTR(fd, how int) error {
	const maxEINTRRetries = 10000

	var err error

	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
