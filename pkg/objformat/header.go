package objformat

import (
	"fmt"
	"io"

	"github.com/boxbackup-go/backupstore/pkg/bigendian"
)

const (
	// ObjectMagicFileMagicValueV1 identifies the start of a stored file
	// object's header.
	ObjectMagicFileMagicValueV1 uint32 = 0x424B4F31 // "BKO1"

	// ObjectMagicFileBlocksMagicValueV1 identifies the start of a stored
	// file object's block index.
	ObjectMagicFileBlocksMagicValueV1 uint32 = 0x424B4249 // "BKBI"

	// headerSize is the fixed on-wire size of [Header], in bytes:
	// magic(4) + num_blocks(8) + container_size(8) + mtime(8) + max_block_size(4).
	headerSize = 32

	// indexHeaderSize is the fixed on-wire size of [IndexHeader]:
	// magic(4) + num_blocks(8) + other_file_id(8).
	indexHeaderSize = 20

	// IndexEntrySize is the fixed on-wire size of [IndexEntry]:
	// encoded_size(8) + clear_size(4) + checksum(4).
	IndexEntrySize = 16
)

// Header is the fixed-size header at the start of every stored file object.
type Header struct {
	// NumBlocks is the number of blocks in this object.
	NumBlocks uint64

	// ContainerSize is a size hint for the decoded object (e.g. for
	// directory listings); not safety-relevant, never used by reverse-diff
	// for correctness.
	ContainerSize uint64

	// ModificationTime is the original file's modification time, as a
	// Unix timestamp.
	ModificationTime int64

	// MaxBlockSize is the largest block size the encoder chose while
	// splitting the original content into blocks.
	MaxBlockSize uint32
}

// ReadHeader reads the fixed-size header from r and validates its magic.
//
// Returns an error wrapping [ErrBadMagic] if the magic does not match
// [ObjectMagicFileMagicValueV1], or [ErrShortRead] if the stream ends early.
func ReadHeader(r io.Reader) (Header, error) {
	magic, err := bigendian.ReadUint32(r)
	if err != nil {
		return Header{}, shortReadErr("header magic", err)
	}

	if magic != ObjectMagicFileMagicValueV1 {
		return Header{}, fmt.Errorf("%w: header magic %#x, want %#x", ErrBadMagic, magic, ObjectMagicFileMagicValueV1)
	}

	numBlocks, err := bigendian.ReadUint64(r)
	if err != nil {
		return Header{}, shortReadErr("num_blocks", err)
	}

	containerSize, err := bigendian.ReadUint64(r)
	if err != nil {
		return Header{}, shortReadErr("container_size", err)
	}

	mtime, err := bigendian.ReadInt64(r)
	if err != nil {
		return Header{}, shortReadErr("modification_time", err)
	}

	maxBlockSize, err := bigendian.ReadUint32(r)
	if err != nil {
		return Header{}, shortReadErr("max_block_size", err)
	}

	return Header{
		NumBlocks:        numBlocks,
		ContainerSize:    containerSize,
		ModificationTime: mtime,
		MaxBlockSize:     maxBlockSize,
	}, nil
}

// WriteHeader writes h to w in the on-wire format read by [ReadHeader].
func WriteHeader(w io.Writer, h Header) error {
	if err := bigendian.WriteUint32(w, ObjectMagicFileMagicValueV1); err != nil {
		return err
	}

	if err := bigendian.WriteUint64(w, h.NumBlocks); err != nil {
		return err
	}

	if err := bigendian.WriteUint64(w, h.ContainerSize); err != nil {
		return err
	}

	if err := bigendian.WriteInt64(w, h.ModificationTime); err != nil {
		return err
	}

	return bigendian.WriteUint32(w, h.MaxBlockSize)
}

// ReadLengthPrefixedBlock reads a uint32-length-prefixed opaque byte block.
// It is used for both the filename block and the attributes block; this
// package does not interpret their contents.
func ReadLengthPrefixedBlock(r io.Reader) ([]byte, error) {
	length, err := bigendian.ReadUint32(r)
	if err != nil {
		return nil, shortReadErr("block length", err)
	}

	buf := make([]byte, length)

	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, shortReadErr("block contents", err)
	}

	return buf, nil
}

// WriteLengthPrefixedBlock writes data as a uint32-length-prefixed opaque
// byte block, symmetric with [ReadLengthPrefixedBlock].
func WriteLengthPrefixedBlock(w io.Writer, data []byte) error {
	if err := bigendian.WriteUint32(w, uint32(len(data))); err != nil {
		return err
	}

	_, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("write block contents: %w", err)
	}

	return nil
}

// ReadFilename reads the filename block. The encoding of its contents is
// owned by an external component; objformat treats it as opaque bytes.
func ReadFilename(r io.Reader) ([]byte, error) {
	return ReadLengthPrefixedBlock(r)
}

// WriteFilename writes the filename block.
func WriteFilename(w io.Writer, filename []byte) error {
	return WriteLengthPrefixedBlock(w, filename)
}

// ReadAttributes reads the attributes block. The encoding of its contents is
// owned by an external component; objformat treats it as opaque bytes.
func ReadAttributes(r io.Reader) ([]byte, error) {
	return ReadLengthPrefixedBlock(r)
}

// WriteAttributes writes the attributes block.
func WriteAttributes(w io.Writer, attrs []byte) error {
	return WriteLengthPrefixedBlock(w, attrs)
}

func shortReadErr(field string, cause error) error {
	return fmt.Errorf("%w: reading %s: %w", ErrShortRead, field, cause)
}
