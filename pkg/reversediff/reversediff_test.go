package reversediff_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/boxbackup-go/backupstore/internal/observer"
	"github.com/boxbackup-go/backupstore/pkg/objformat"
	"github.com/boxbackup-go/backupstore/pkg/reversediff"
)

// blockSpec describes one block of a test object: either bytes stored
// inline, or a reference to a block index in another object.
type blockSpec struct {
	inline []byte
	refIdx int64 // used when inline == nil; encodes -refIdx as EncodedSize
}

func inline(b ...byte) blockSpec    { return blockSpec{inline: b} }
func ref(fromIndex int64) blockSpec { return blockSpec{refIdx: fromIndex} }

// buildObject assembles a well-formed object from blocks, writing
// other_file_id into the index header.
func buildObject(t *testing.T, blocks []blockSpec, otherFileID uint64) []byte {
	t.Helper()

	var buf bytes.Buffer

	mustWriteHeader(t, &buf, uint64(len(blocks)))
	mustWriteFilename(t, &buf, []byte("file.dat"))
	mustWriteAttributes(t, &buf, []byte("attrs"))

	var entries []objformat.IndexEntry

	for i, b := range blocks {
		if b.inline != nil {
			buf.Write(b.inline)
			entries = append(entries, objformat.IndexEntry{
				EncodedSize: int64(len(b.inline)),
				ClearSize:   uint32(len(b.inline)),
				Checksum:    uint32(i + 1),
			})
		} else {
			entries = append(entries, objformat.IndexEntry{
				EncodedSize: -b.refIdx,
				Checksum:    uint32(i + 1),
			})
		}
	}

	if err := objformat.WriteIndexHeader(&buf, objformat.IndexHeader{
		NumBlocks:   uint64(len(blocks)),
		OtherFileID: otherFileID,
	}); err != nil {
		t.Fatalf("WriteIndexHeader: %v", err)
	}

	for _, e := range entries {
		if err := objformat.WriteIndexEntry(&buf, e); err != nil {
			t.Fatalf("WriteIndexEntry: %v", err)
		}
	}

	return buf.Bytes()
}

func mustWriteHeader(t *testing.T, w io.Writer, numBlocks uint64) {
	t.Helper()

	err := objformat.WriteHeader(w, objformat.Header{
		NumBlocks:        numBlocks,
		ContainerSize:    999,
		ModificationTime: 1700000000,
		MaxBlockSize:     4096,
	})
	if err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
}

func mustWriteFilename(t *testing.T, w io.Writer, name []byte) {
	t.Helper()

	if err := objformat.WriteFilename(w, name); err != nil {
		t.Fatalf("WriteFilename: %v", err)
	}
}

func mustWriteAttributes(t *testing.T, w io.Writer, attrs []byte) {
	t.Helper()

	if err := objformat.WriteAttributes(w, attrs); err != nil {
		t.Fatalf("WriteAttributes: %v", err)
	}
}

// readObject parses an object's header, data area (the bytes between the
// attributes block and the index header) and index, for assertions.
type readObjectResult struct {
	header  objformat.Header
	index   objformat.IndexHeader
	entries []objformat.IndexEntry
	data    []byte
}

func readObject(t *testing.T, raw []byte) readObjectResult {
	t.Helper()

	r := bytes.NewReader(raw)

	header, err := objformat.ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	if _, err := objformat.ReadFilename(r); err != nil {
		t.Fatalf("ReadFilename: %v", err)
	}

	if _, err := objformat.ReadAttributes(r); err != nil {
		t.Fatalf("ReadAttributes: %v", err)
	}

	dataStart, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}

	indexOffset, err := objformat.SeekToIndex(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("SeekToIndex: %v", err)
	}

	data := raw[dataStart:indexOffset]

	r2 := bytes.NewReader(raw)

	if _, err := objformat.SeekToIndex(r2); err != nil {
		t.Fatalf("SeekToIndex: %v", err)
	}

	idx, err := objformat.ReadIndexHeader(r2)
	if err != nil {
		t.Fatalf("ReadIndexHeader: %v", err)
	}

	var entries []objformat.IndexEntry

	for i := uint64(0); i < idx.NumBlocks; i++ {
		e, err := objformat.ReadIndexEntry(r2)
		if err != nil {
			t.Fatalf("ReadIndexEntry[%d]: %v", i, err)
		}

		entries = append(entries, e)
	}

	return readObjectResult{header: header, index: idx, entries: entries, data: data}
}

// TestReverseDiff_PartialReferences: base has 3 blocks (10, 20, 30 bytes),
// delta references base blocks 0 and 2 and introduces one new inline block.
// Only the unreferenced base block 1 must end up inlined in the output.
func TestReverseDiff_PartialReferences(t *testing.T) {
	t.Parallel()

	base := buildObject(t, []blockSpec{
		inline(bytes.Repeat([]byte{0xA0}, 10)...),
		inline(bytes.Repeat([]byte{0xA1}, 20)...),
		inline(bytes.Repeat([]byte{0xA2}, 30)...),
	}, 0)

	delta := buildObject(t, []blockSpec{
		ref(0),
		inline([]byte("new")...),
		ref(2),
	}, 0x1111)

	var out bytes.Buffer

	isDifferent, err := reversediff.ReverseDiff(
		bytes.NewReader(delta),
		bytes.NewReader(base), bytes.NewReader(base),
		&out, 0xBEEF, observer.Nop(),
	)
	if err != nil {
		t.Fatalf("ReverseDiff: %v", err)
	}

	if isDifferent {
		t.Fatalf("isCompletelyDifferent = true, want false")
	}

	result := readObject(t, out.Bytes())

	if result.index.OtherFileID != 0xBEEF {
		t.Fatalf("OtherFileID = %x, want 0xBEEF", result.index.OtherFileID)
	}

	if len(result.data) != 20 {
		t.Fatalf("data area length = %d, want 20", len(result.data))
	}

	if !bytes.Equal(result.data, bytes.Repeat([]byte{0xA1}, 20)) {
		t.Fatalf("data area = %x, want base block 1 contents", result.data)
	}

	wantEncodedSizes := []int64{-0, 20, -2}
	for i, e := range result.entries {
		if e.EncodedSize != wantEncodedSizes[i] {
			t.Fatalf("entry[%d].EncodedSize = %d, want %d", i, e.EncodedSize, wantEncodedSizes[i])
		}
	}
}

// TestReverseDiff_NoReferences: the delta references no base blocks, so the
// output is a standalone copy of the base.
func TestReverseDiff_NoReferences(t *testing.T) {
	t.Parallel()

	base := buildObject(t, []blockSpec{
		inline(bytes.Repeat([]byte{1}, 5)...),
		inline(bytes.Repeat([]byte{2}, 7)...),
	}, 0)

	delta := buildObject(t, []blockSpec{
		inline([]byte("all new")...),
	}, 0)

	var out bytes.Buffer

	isDifferent, err := reversediff.ReverseDiff(
		bytes.NewReader(delta),
		bytes.NewReader(base), bytes.NewReader(base),
		&out, 0x42, observer.Nop(),
	)
	if err != nil {
		t.Fatalf("ReverseDiff: %v", err)
	}

	if !isDifferent {
		t.Fatalf("isCompletelyDifferent = false, want true")
	}

	result := readObject(t, out.Bytes())

	if result.index.OtherFileID != 0 {
		t.Fatalf("OtherFileID = %x, want 0", result.index.OtherFileID)
	}

	baseResult := readObject(t, base)

	if !bytes.Equal(result.data, baseResult.data) {
		t.Fatalf("output data area != base data area")
	}

	for i, e := range result.entries {
		if e.EncodedSize <= 0 {
			t.Fatalf("entry[%d].EncodedSize = %d, want > 0", i, e.EncodedSize)
		}
	}
}

// An out-of-range block reference fails with
// ErrIncompatibleFromAndDiffFiles.
func TestReverseDiff_OutOfRangeReference(t *testing.T) {
	t.Parallel()

	base := buildObject(t, []blockSpec{
		inline([]byte("a")...),
		inline([]byte("b")...),
		inline([]byte("c")...),
	}, 0)

	delta := buildObject(t, []blockSpec{
		ref(5),
	}, 0)

	var out bytes.Buffer

	_, err := reversediff.ReverseDiff(
		bytes.NewReader(delta),
		bytes.NewReader(base), bytes.NewReader(base),
		&out, 1, observer.Nop(),
	)
	if !errors.Is(err, reversediff.ErrIncompatibleFromAndDiffFiles) {
		t.Fatalf("err = %v, want wrapping ErrIncompatibleFromAndDiffFiles", err)
	}
}

// A base whose index is not self-contained fails with
// ErrBadBackupStoreFile.
func TestReverseDiff_BaseNotSelfContained(t *testing.T) {
	t.Parallel()

	base := buildObject(t, []blockSpec{
		inline([]byte("a")...),
	}, 99)

	delta := buildObject(t, []blockSpec{
		ref(0),
	}, 0)

	var out bytes.Buffer

	_, err := reversediff.ReverseDiff(
		bytes.NewReader(delta),
		bytes.NewReader(base), bytes.NewReader(base),
		&out, 1, observer.Nop(),
	)
	if !errors.Is(err, reversediff.ErrBadBackupStoreFile) {
		t.Fatalf("err = %v, want wrapping ErrBadBackupStoreFile", err)
	}
}

// TestReverseDiff_AllBlocksReferenced covers the edge case where every
// delta block references the base: the output's data area is empty and
// every entry is a reference.
func TestReverseDiff_AllBlocksReferenced(t *testing.T) {
	t.Parallel()

	base := buildObject(t, []blockSpec{
		inline([]byte("xx")...),
		inline([]byte("yyy")...),
	}, 0)

	delta := buildObject(t, []blockSpec{
		ref(0),
		ref(1),
	}, 0)

	var out bytes.Buffer

	isDifferent, err := reversediff.ReverseDiff(
		bytes.NewReader(delta),
		bytes.NewReader(base), bytes.NewReader(base),
		&out, 7, observer.Nop(),
	)
	if err != nil {
		t.Fatalf("ReverseDiff: %v", err)
	}

	if isDifferent {
		t.Fatalf("isCompletelyDifferent = true, want false")
	}

	result := readObject(t, out.Bytes())

	if len(result.data) != 0 {
		t.Fatalf("data area length = %d, want 0", len(result.data))
	}

	if result.index.OtherFileID != 7 {
		t.Fatalf("OtherFileID = %x, want 7", result.index.OtherFileID)
	}

	for i, e := range result.entries {
		if e.EncodedSize > 0 {
			t.Fatalf("entry[%d].EncodedSize = %d, want <= 0", i, e.EncodedSize)
		}
	}
}

// TestReverseDiff_Conservation: the sum of positive EncodedSize values in
// the output index equals the output data area's length.
func TestReverseDiff_Conservation(t *testing.T) {
	t.Parallel()

	base := buildObject(t, []blockSpec{
		inline(bytes.Repeat([]byte{1}, 11)...),
		inline(bytes.Repeat([]byte{2}, 13)...),
		inline(bytes.Repeat([]byte{3}, 17)...),
	}, 0)

	delta := buildObject(t, []blockSpec{
		ref(1),
	}, 0)

	var out bytes.Buffer

	_, err := reversediff.ReverseDiff(
		bytes.NewReader(delta),
		bytes.NewReader(base), bytes.NewReader(base),
		&out, 3, observer.Nop(),
	)
	if err != nil {
		t.Fatalf("ReverseDiff: %v", err)
	}

	result := readObject(t, out.Bytes())

	var sum int64

	for _, e := range result.entries {
		if e.EncodedSize > 0 {
			sum += e.EncodedSize
		}
	}

	if sum != int64(len(result.data)) {
		t.Fatalf("sum of positive EncodedSize = %d, want %d (data area length)", sum, len(result.data))
	}
}

// TestReverseDiff_PrologueCopiedFromBase verifies that the output's prologue
// comes from the base, not the delta: the output's filename is the base's.
func TestReverseDiff_PrologueCopiedFromBase(t *testing.T) {
	t.Parallel()

	var base bytes.Buffer

	mustWriteHeader(t, &base, 1)
	mustWriteFilename(t, &base, []byte("base-name"))
	mustWriteAttributes(t, &base, []byte("base-attrs"))
	base.WriteString("z")

	if err := objformat.WriteIndexHeader(&base, objformat.IndexHeader{NumBlocks: 1, OtherFileID: 0}); err != nil {
		t.Fatalf("WriteIndexHeader: %v", err)
	}

	if err := objformat.WriteIndexEntry(&base, objformat.IndexEntry{EncodedSize: 1, ClearSize: 1, Checksum: 1}); err != nil {
		t.Fatalf("WriteIndexEntry: %v", err)
	}

	delta := buildObject(t, []blockSpec{inline([]byte("ignored")...)}, 0)

	var out bytes.Buffer

	_, err := reversediff.ReverseDiff(
		bytes.NewReader(delta),
		bytes.NewReader(base.Bytes()), bytes.NewReader(base.Bytes()),
		&out, 1, observer.Nop(),
	)
	if err != nil {
		t.Fatalf("ReverseDiff: %v", err)
	}

	r := bytes.NewReader(out.Bytes())

	if _, err := objformat.ReadHeader(r); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	gotName, err := objformat.ReadFilename(r)
	if err != nil {
		t.Fatalf("ReadFilename: %v", err)
	}

	if !bytes.Equal(gotName, []byte("base-name")) {
		t.Fatalf("filename = %q, want %q", gotName, "base-name")
	}
}
