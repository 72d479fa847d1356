// Package fs provides the filesystem seam that the named lock and the local
// object store open, stat, and rename through, instead of calling the os
// package directly. Every production path uses [Real]; tests construct a
// [Real] rooted at [testing.T.TempDir] rather than a fake, since the lock
// package's acquisition strategies need a genuine file descriptor for
// [File.Fd] to be meaningful.
//
// The interface here is pared down to what the object store facade and the
// named lock actually call: opening and stat'ing files, creating parent
// directories, and the rename/remove pair that make atomic writes and lock
// release possible. It is not a general-purpose os wrapper.
//
// Example usage:
//
//	fsys := fs.NewReal()
//	f, err := fsys.Open("object.file")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File]. The intent is os-like behavior:
// implementations must behave like [os.File], including that [File.Fd]
// returns a valid OS file descriptor usable with syscalls (for example
// [golang.org/x/sys/unix.Flock]) until the file is closed.
//
// Note: [File] includes [io.Writer] even for read-only handles. Like
// [os.File], implementations should return an error from Write when the file
// wasn't opened for writing.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type File interface {
	// Embedded interfaces from [io] package.
	// These provide Read, Write, Close, Seek, and ReadAt methods. ReadAt
	// is what lets the local object store hand an opened file straight to
	// reverse-diff as a random-access stream.
	io.ReadWriteCloser
	io.Seeker
	io.ReaderAt

	// Fd returns the file descriptor. See [os.File.Fd]. Used by
	// pkg/lock's platform-specific acquisition strategies.
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Chmod changes the mode of the file. See [os.File.Chmod].
	Chmod(mode os.FileMode) error
}

// FS defines the filesystem operations the named lock and the local object
// store need. All methods mirror their [os] package equivalents.
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths used by the standard library io/fs package.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See
	// [os.OpenFile]. pkg/lock uses this to create-and-hold a lockfile in
	// one call; pkg/fs.AtomicWriter uses it for exclusive temp-file
	// creation.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile]. Used
	// by [objectstore.LocalStore] to read whole RAID fragments.
	ReadFile(path string) ([]byte, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	// No error if the directory already exists.
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	// Returns [os.ErrNotExist] if file doesn't exist.
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file. See [os.Remove]. Used by
	// [AtomicWriter] to discard a failed temp file and by pkg/lock to
	// unlink a released lockfile.
	Remove(path string) error

	// Rename moves/renames a file or directory. See [os.Rename].
	// Atomic on the same filesystem; the commit step of [AtomicWriter].
	Rename(oldpath, newpath string) error
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
