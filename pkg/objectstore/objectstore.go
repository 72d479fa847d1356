// Package objectstore maps (object id, kind) pairs to byte streams across
// two backend implementations: a RAID-like local directory tree
// ([LocalStore]) and an HTTP object-storage backend ([RemoteStore]).
//
// Both backends satisfy [Store] and build a nested path (or URI) from the
// high bits of the object id, reserving the low bits as the leaf filename.
// Callers outside this package — the reverse-diff engine, account
// maintenance — never distinguish which backend they're talking to.
package objectstore

import (
	"errors"
	"io"
)

// Kind distinguishes the two object types a store holds: encoded files
// (produced by the reverse-diff engine and its underlying object format) and
// directory listings. The on-disk/on-URI suffix differs by kind.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) suffix() string {
	if k == KindDir {
		return ".dir"
	}

	return ".file"
}

// RevisionID is a backend-defined opaque value that changes whenever an
// object's content changes. Local stores derive it from modification time
// and size; remote stores derive it from the object's entity tag.
type RevisionID uint64

// ErrNotFound is returned by OpenRead and Size when no object with the given
// id and kind is present. Head and Exists report absence as false with a nil
// error instead.
var ErrNotFound = errors.New("objectstore: object not found")

// ErrMissingEtagHeader is returned when a remote response has no ETag
// header, so [RemoteStore] cannot derive a [RevisionID].
var ErrMissingEtagHeader = errors.New("objectstore: response has no etag header")

// ErrInvalidEtagHeader is returned when a remote response's ETag header
// doesn't have the expected quoted-hex-digest shape.
var ErrInvalidEtagHeader = errors.New("objectstore: malformed etag header")

// ReadCloserAt is a random-access, closeable byte stream, as returned by
// Store.OpenRead. Reverse-diff needs random access to seek to the block
// index and back; io.ReadCloser alone isn't enough.
type ReadCloserAt interface {
	io.ReaderAt
	io.Closer
}

// Store maps (id, kind) to byte streams. See [LocalStore] and [RemoteStore].
type Store interface {
	// OpenRead opens the object for random-access reading.
	// Returns an error wrapping [ErrNotFound] if it doesn't exist.
	OpenRead(id uint64, kind Kind) (ReadCloserAt, error)

	// OpenWrite returns a writer that commits the object atomically when
	// closed. Partial writes followed by an error (instead of Close) must
	// not leave a new, complete-looking object behind.
	OpenWrite(id uint64, kind Kind) (io.WriteCloser, error)

	// Exists reports whether an object with the given id exists as
	// either kind, checking directory before file, and if so returns its
	// revision id.
	Exists(id uint64) (bool, RevisionID, error)

	// Head reports whether an object with the given id and specific kind
	// exists, without transferring its content.
	Head(id uint64, kind Kind) (bool, error)

	// Size reports the logical byte length of an object, needed by
	// callers (reverse-diff, chiefly) that must bound an
	// [io.SectionReader] over the stream [Store.OpenRead] returns.
	// Returns an error wrapping [ErrNotFound] if it doesn't exist.
	Size(id uint64, kind Kind) (int64, error)
}
