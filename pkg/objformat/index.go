package objformat

import (
	"fmt"
	"io"

	"github.com/boxbackup-go/backupstore/pkg/bigendian"
)

// IndexHeader precedes the block-index entries at the end of a stored file
// object.
type IndexHeader struct {
	// NumBlocks is the number of index entries that follow.
	NumBlocks uint64

	// OtherFileID is the 64-bit identifier of the object this one's
	// negative-encoded-size entries refer to, or 0 if the object is
	// self-contained ("completely different").
	OtherFileID uint64
}

// IndexEntry describes one block of the object.
//
// The sign of EncodedSize encodes provenance, per the on-disk format:
//   - EncodedSize > 0: the block's encoded bytes are stored inline in this
//     object's data area, EncodedSize bytes long.
//   - EncodedSize <= 0: the block is not stored inline; -EncodedSize is the
//     0-based index of the block inside the other object named by the
//     enclosing [IndexHeader.OtherFileID].
type IndexEntry struct {
	EncodedSize int64

	// ClearSize is the decoded size of the block. Only meaningful when
	// EncodedSize > 0; callers reading a reference entry ignore it.
	ClearSize uint32

	// Checksum is a lightweight integrity checksum of the encoded block
	// bytes. Verifying it is the caller's responsibility — objformat
	// never reads block contents to check it.
	Checksum uint32
}

// ReadIndexHeader reads the index header and validates its magic.
func ReadIndexHeader(r io.Reader) (IndexHeader, error) {
	magic, err := bigendian.ReadUint32(r)
	if err != nil {
		return IndexHeader{}, shortReadErr("index header magic", err)
	}

	if magic != ObjectMagicFileBlocksMagicValueV1 {
		return IndexHeader{}, fmt.Errorf("%w: index magic %#x, want %#x", ErrBadMagic, magic, ObjectMagicFileBlocksMagicValueV1)
	}

	numBlocks, err := bigendian.ReadUint64(r)
	if err != nil {
		return IndexHeader{}, shortReadErr("index num_blocks", err)
	}

	otherFileID, err := bigendian.ReadUint64(r)
	if err != nil {
		return IndexHeader{}, shortReadErr("other_file_id", err)
	}

	return IndexHeader{NumBlocks: numBlocks, OtherFileID: otherFileID}, nil
}

// WriteIndexHeader writes h in the format read by [ReadIndexHeader].
func WriteIndexHeader(w io.Writer, h IndexHeader) error {
	if err := bigendian.WriteUint32(w, ObjectMagicFileBlocksMagicValueV1); err != nil {
		return err
	}

	if err := bigendian.WriteUint64(w, h.NumBlocks); err != nil {
		return err
	}

	return bigendian.WriteUint64(w, h.OtherFileID)
}

// ReadIndexEntry reads one fixed-width block-index entry.
func ReadIndexEntry(r io.Reader) (IndexEntry, error) {
	encodedSize, err := bigendian.ReadInt64(r)
	if err != nil {
		return IndexEntry{}, shortReadErr("index entry encoded_size", err)
	}

	clearSize, err := bigendian.ReadUint32(r)
	if err != nil {
		return IndexEntry{}, shortReadErr("index entry clear_size", err)
	}

	checksum, err := bigendian.ReadUint32(r)
	if err != nil {
		return IndexEntry{}, shortReadErr("index entry checksum", err)
	}

	return IndexEntry{EncodedSize: encodedSize, ClearSize: clearSize, Checksum: checksum}, nil
}

// WriteIndexEntry writes e in the format read by [ReadIndexEntry].
func WriteIndexEntry(w io.Writer, e IndexEntry) error {
	if err := bigendian.WriteInt64(w, e.EncodedSize); err != nil {
		return err
	}

	if err := bigendian.WriteUint32(w, e.ClearSize); err != nil {
		return err
	}

	return bigendian.WriteUint32(w, e.Checksum)
}

// SeekToIndex positions rs at the start of the object's index header and
// returns that byte offset.
//
// It reads the header at the start of the stream to learn NumBlocks, then
// computes the index region's fixed byte length (index header plus
// num_blocks fixed-width entries) and seeks to (end of stream) minus that
// length — the index is always the last region in the object (see the
// on-disk layout). This avoids reading every data block to find the index,
// at the cost of requiring rs to support SeekEnd.
//
// Returns an error wrapping [ErrNotSeekable] if rs.Seek fails, which happens
// when the underlying stream is not random-access.
func SeekToIndex(rs io.ReadSeeker) (int64, error) {
	_, err := rs.Seek(0, io.SeekStart)
	if err != nil {
		return 0, fmt.Errorf("%w: seek to start: %w", ErrNotSeekable, err)
	}

	header, err := ReadHeader(rs)
	if err != nil {
		return 0, err
	}

	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("%w: seek to end: %w", ErrNotSeekable, err)
	}

	indexSize := int64(indexHeaderSize) + int64(header.NumBlocks)*int64(IndexEntrySize)
	indexOffset := end - indexSize

	if indexOffset < 0 {
		return 0, fmt.Errorf("%w: computed index offset %d is negative (num_blocks=%d larger than object)", ErrShortRead, indexOffset, header.NumBlocks)
	}

	_, err = rs.Seek(indexOffset, io.SeekStart)
	if err != nil {
		return 0, fmt.Errorf("%w: seek to index: %w", ErrNotSeekable, err)
	}

	return indexOffset, nil
}
