package reversediff_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/boxbackup-go/backupstore/internal/observer"
	"github.com/boxbackup-go/backupstore/pkg/fs"
	"github.com/boxbackup-go/backupstore/pkg/objectstore"
	"github.com/boxbackup-go/backupstore/pkg/reversediff"
)

// TestReverseDiff_AgainstLocalStore exercises the round-trip end-to-end: a
// base and delta object are written to a real [objectstore.LocalStore],
// reverse-diffed, and the result's block data is checked against the
// base's.
func TestReverseDiff_AgainstLocalStore(t *testing.T) {
	t.Parallel()

	store := objectstore.NewLocalStore(fs.NewReal(), t.TempDir())

	const baseID, deltaID, outID = 0x10, 0x20, 0x30

	base := buildObject(t, []blockSpec{
		inline(bytes.Repeat([]byte{0x01}, 8)...),
		inline(bytes.Repeat([]byte{0x02}, 16)...),
	}, 0)

	delta := buildObject(t, []blockSpec{
		ref(0),
		inline([]byte("fresh block")...),
	}, 0)

	writeToStore(t, store, baseID, base)
	writeToStore(t, store, deltaID, delta)

	baseReader1 := openSectionReader(t, store, baseID)
	baseReader2 := openSectionReader(t, store, baseID)
	deltaReader := openSectionReader(t, store, deltaID)

	out, err := store.OpenWrite(outID, objectstore.KindFile)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}

	isDifferent, err := reversediff.ReverseDiff(deltaReader, baseReader1, baseReader2, out, baseID, observer.Nop())
	if err != nil {
		t.Fatalf("ReverseDiff: %v", err)
	}

	if err := out.Close(); err != nil {
		t.Fatalf("committing output: %v", err)
	}

	if isDifferent {
		t.Fatalf("isCompletelyDifferent = true, want false")
	}

	outReader, err := store.OpenRead(outID, objectstore.KindFile)
	if err != nil {
		t.Fatalf("OpenRead(output): %v", err)
	}
	defer outReader.Close()

	info, err := store.Stat(outID, objectstore.KindFile)
	if err != nil {
		t.Fatalf("Stat(output): %v", err)
	}

	outBytes := make([]byte, info.Size())
	if _, err := outReader.ReadAt(outBytes, 0); err != nil && err != io.EOF {
		t.Fatalf("ReadAt: %v", err)
	}

	result := readObject(t, outBytes)

	// Block 1 (16 bytes) wasn't referenced by the delta, so it must be
	// inlined verbatim; block 0 was referenced and must be a reference.
	if !bytes.Equal(result.data, bytes.Repeat([]byte{0x02}, 16)) {
		t.Fatalf("output data area = %x, want base block 1 contents", result.data)
	}

	if result.entries[0].EncodedSize > 0 {
		t.Fatalf("entry[0].EncodedSize = %d, want <= 0 (reference)", result.entries[0].EncodedSize)
	}

	if result.entries[1].EncodedSize != 16 {
		t.Fatalf("entry[1].EncodedSize = %d, want 16", result.entries[1].EncodedSize)
	}

	if result.index.OtherFileID != baseID {
		t.Fatalf("OtherFileID = %x, want %x", result.index.OtherFileID, baseID)
	}
}

func writeToStore(t *testing.T, store *objectstore.LocalStore, id uint64, content []byte) {
	t.Helper()

	w, err := store.OpenWrite(id, objectstore.KindFile)
	if err != nil {
		t.Fatalf("OpenWrite(%x): %v", id, err)
	}

	if _, err := w.Write(content); err != nil {
		t.Fatalf("Write(%x): %v", id, err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close(%x): %v", id, err)
	}
}

func openSectionReader(t *testing.T, store *objectstore.LocalStore, id uint64) *io.SectionReader {
	t.Helper()

	r, err := store.OpenRead(id, objectstore.KindFile)
	if err != nil {
		t.Fatalf("OpenRead(%x): %v", id, err)
	}

	t.Cleanup(func() { _ = r.Close() })

	info, err := store.Stat(id, objectstore.KindFile)
	if err != nil {
		t.Fatalf("Stat(%x): %v", id, err)
	}

	return io.NewSectionReader(r, 0, info.Size())
}
