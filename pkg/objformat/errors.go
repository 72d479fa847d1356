package objformat

import "errors"

// FormatError sentinels. Use [errors.Is] to classify; functions in this
// package always wrap these with additional context via %w.
var (
	// ErrBadMagic indicates a header or index-header magic value didn't
	// match the expected constant for its region.
	ErrBadMagic = errors.New("objformat: bad magic")

	// ErrShortRead indicates the underlying stream ended before the
	// requested number of bytes could be read.
	ErrShortRead = errors.New("objformat: short read")

	// ErrNotSeekable indicates SeekToIndex was called on a stream whose
	// Seek call failed, so the index offset could not be located.
	ErrNotSeekable = errors.New("objformat: stream is not seekable")
)
