// Package objformat reads and writes the binary layout of a stored backup
// object: a fixed header, a length-prefixed filename block, a
// length-prefixed attributes block, a data area of concatenated encoded
// blocks, and a trailing block index.
//
// All multi-byte integers on the wire are big-endian (see
// [github.com/boxbackup-go/backupstore/pkg/bigendian]). The codec performs
// no buffering or caching of its own: every reader and writer reads or
// writes exactly the bytes it documents and leaves the stream positioned
// immediately after them ([SeekToIndex] instead re-reads the header and
// leaves the stream at the index header). Composing these primitives into a
// full object read or write is the caller's job, done by
// [github.com/boxbackup-go/backupstore/pkg/reversediff] and by cmd/backupctl's
// show command.
package objformat
