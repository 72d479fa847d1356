//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package lock

import (
	"os"

	"github.com/boxbackup-go/backupstore/pkg/fs"
)

// acquireExclusive implements acquisition strategy 2 from the package
// contract: a create-exclusive open that fails if the lockfile already
// exists. Hosts without flock-style advisory locks get no kernel-held lock,
// so the lockfile's existence alone conveys ownership; a crashed holder can
// leave a stale lockfile behind that an operator has to remove by hand.
func acquireExclusive(fsys fs.FS, path string, perm os.FileMode) (fs.File, bool, error) {
	file, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
	if err == nil {
		return file, true, nil
	}

	if os.IsExist(err) {
		return nil, false, nil
	}

	if os.IsNotExist(err) {
		return nil, false, errParentMissing
	}

	return nil, false, err
}

// unlockAndClose releases the hold by closing the descriptor. There is no
// kernel lock to drop under this strategy; releaseHold has already unlinked
// the lockfile, which is what actually surrenders ownership.
func unlockAndClose(file fs.File) error {
	return file.Close()
}
