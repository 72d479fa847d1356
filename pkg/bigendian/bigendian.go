// Package bigendian provides fixed-width big-endian integer encode/decode
// helpers used throughout the backup-object binary format.
//
// Every multi-byte integer on the wire (header fields, index entries,
// lengths) is big-endian, regardless of host architecture. This package is
// the single place that fact is expressed; callers never touch
// encoding/binary directly.
package bigendian

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadUint32 reads a big-endian uint32 from r.
//
// If r returns io.EOF before any bytes are read, ReadUint32 returns io.EOF
// unchanged so callers can distinguish a clean end-of-stream from a
// truncated read (which returns io.ErrUnexpectedEOF, per io.ReadFull).
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte

	_, err := io.ReadFull(r, buf[:])
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes v to w as big-endian.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte

	binary.BigEndian.PutUint32(buf[:], v)

	_, err := w.Write(buf[:])
	if err != nil {
		return fmt.Errorf("write uint32: %w", err)
	}

	return nil
}

// ReadUint64 reads a big-endian uint64 from r.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte

	_, err := io.ReadFull(r, buf[:])
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteUint64 writes v to w as big-endian.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], v)

	_, err := w.Write(buf[:])
	if err != nil {
		return fmt.Errorf("write uint64: %w", err)
	}

	return nil
}

// ReadInt64 reads a big-endian, two's-complement int64 from r.
func ReadInt64(r io.Reader) (int64, error) {
	v, err := ReadUint64(r)
	if err != nil {
		return 0, err
	}

	return int64(v), nil
}

// WriteInt64 writes v to w as a big-endian, two's-complement int64.
func WriteInt64(w io.Writer, v int64) error {
	return WriteUint64(w, uint64(v))
}
