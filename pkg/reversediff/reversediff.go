package reversediff

import (
	"fmt"
	"io"

	"github.com/boxbackup-go/backupstore/internal/observer"
	"github.com/boxbackup-go/backupstore/pkg/objformat"
)

// ReverseDiff transforms a self-contained base object into a patch
// referring to a newer delta object that was produced against it.
//
// diff is a readable, seekable view of the delta object; only its block
// index is consulted, never its data area or its own filename/attributes.
// Its header is read only by [objformat.SeekToIndex], for the block count
// that locates the index. The base's metadata is authoritative and is copied to the
// output unchanged. from and from2 are two independent readable,
// seekable views of the same base object: the algorithm interleaves reads
// at two distinct positions (the data area via from, the index via from2)
// and giving each its own cursor avoids needing to save/restore a single
// shared one. out receives the new object, written in strict order.
//
// baseObjectID populates the output index's other_file_id field when the
// output ends up referring back into the base (i.e. when the returned flag
// is false).
//
// On any error, out may have received a partial write; discarding it is the
// caller's responsibility.
func ReverseDiff(
	diff io.ReadSeeker,
	from, from2 io.ReadSeeker,
	out io.Writer,
	baseObjectID uint64,
	obs observer.Observer,
) (isCompletelyDifferent bool, err error) {
	obs.Trace("reversediff: starting against base object %x", baseObjectID)

	numBlocks, err := copyPrologue(from, out)
	if err != nil {
		return false, err
	}

	references, err := buildReferencesMap(diff, numBlocks)
	if err != nil {
		return false, err
	}

	isCompletelyDifferent, err = copyOrReferenceBlocks(from, from2, out, references, numBlocks)
	if err != nil {
		return false, err
	}

	otherFileID := uint64(0)
	if !isCompletelyDifferent {
		otherFileID = baseObjectID
	}

	if err := writeOutputIndex(from, out, references, numBlocks, otherFileID); err != nil {
		return false, err
	}

	obs.Trace("reversediff: finished, is_completely_different=%v", isCompletelyDifferent)

	return isCompletelyDifferent, nil
}

// copyPrologue reads the base's header, filename, and attributes from from
// and writes them verbatim to out. It returns the base's block count, which
// governs the size of every later pass. from is left positioned at the
// start of the base's data area.
func copyPrologue(from io.Reader, out io.Writer) (numBlocks uint64, err error) {
	header, err := objformat.ReadHeader(from)
	if err != nil {
		return 0, fmt.Errorf("reversediff: reading base header: %w", err)
	}

	if err := objformat.WriteHeader(out, header); err != nil {
		return 0, fmt.Errorf("reversediff: writing output header: %w", err)
	}

	filename, err := objformat.ReadFilename(from)
	if err != nil {
		return 0, fmt.Errorf("reversediff: reading base filename: %w", err)
	}

	if err := objformat.WriteFilename(out, filename); err != nil {
		return 0, fmt.Errorf("reversediff: writing output filename: %w", err)
	}

	attrs, err := objformat.ReadAttributes(from)
	if err != nil {
		return 0, fmt.Errorf("reversediff: reading base attributes: %w", err)
	}

	if err := objformat.WriteAttributes(out, attrs); err != nil {
		return 0, fmt.Errorf("reversediff: writing output attributes: %w", err)
	}

	return header.NumBlocks, nil
}

// refUnseen, stored in references[i], means the delta made no reference to
// base block i. Any other value is either a positive inline size (once
// copyOrReferenceBlocks runs) or the sentinel -1-b encoding a pending
// reference to delta block b, see buildReferencesMap.
const refUnseen = 0

// buildReferencesMap seeks diff to its index and records, for every base
// block the delta refers to, which delta block index refers to it.
//
// references[i] == refUnseen means the delta never referenced base block i.
// references[i] == -1-b means delta index entry b refers to base block i;
// the -1 offset keeps this distinguishable from refUnseen even when b == 0.
func buildReferencesMap(diff io.ReadSeeker, numBlocks uint64) ([]int64, error) {
	references := make([]int64, numBlocks)

	if _, err := objformat.SeekToIndex(diff); err != nil {
		return nil, fmt.Errorf("reversediff: seeking to delta index: %w", err)
	}

	diffIndex, err := objformat.ReadIndexHeader(diff)
	if err != nil {
		return nil, fmt.Errorf("reversediff: reading delta index header: %w", err)
	}

	for b := uint64(0); b < diffIndex.NumBlocks; b++ {
		entry, err := objformat.ReadIndexEntry(diff)
		if err != nil {
			return nil, fmt.Errorf("reversediff: reading delta index entry %d: %w", b, err)
		}

		if entry.EncodedSize > 0 {
			// Inline in the delta; irrelevant for reconstructing the base.
			continue
		}

		fromIndex := uint64(-entry.EncodedSize)
		if fromIndex >= numBlocks {
			return nil, fmt.Errorf("%w: delta block %d refers to base block %d, base has %d blocks",
				ErrIncompatibleFromAndDiffFiles, b, fromIndex, numBlocks)
		}

		references[fromIndex] = -1 - int64(b)
	}

	return references, nil
}

// copyOrReferenceBlocks walks the base's blocks in order, via from2's index
// and from's data area, inlining every block the delta didn't reference and
// leaving referenced blocks for writeOutputIndex to point at the delta.
// references is mutated in place: unreferenced slots gain their inline
// block size, so writeOutputIndex never has to re-derive it.
func copyOrReferenceBlocks(
	from, from2 io.ReadSeeker,
	out io.Writer,
	references []int64,
	numBlocks uint64,
) (isCompletelyDifferent bool, err error) {
	if _, err := objformat.SeekToIndex(from2); err != nil {
		return false, fmt.Errorf("reversediff: seeking to base index: %w", err)
	}

	baseIndex, err := objformat.ReadIndexHeader(from2)
	if err != nil {
		return false, fmt.Errorf("reversediff: reading base index header: %w", err)
	}

	if baseIndex.OtherFileID != 0 {
		return false, fmt.Errorf("%w: other_file_id=%x, base must be self-contained",
			ErrBadBackupStoreFile, baseIndex.OtherFileID)
	}

	if baseIndex.NumBlocks != numBlocks {
		return false, fmt.Errorf("%w: header num_blocks=%d disagrees with index num_blocks=%d",
			ErrBadBackupStoreFile, numBlocks, baseIndex.NumBlocks)
	}

	filePosition, err := from.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, fmt.Errorf("reversediff: reading base data area offset: %w", err)
	}

	var buf []byte

	isCompletelyDifferent = true

	for b := uint64(0); b < numBlocks; b++ {
		entry, err := objformat.ReadIndexEntry(from2)
		if err != nil {
			return false, fmt.Errorf("reversediff: reading base index entry %d: %w", b, err)
		}

		if entry.EncodedSize <= 0 {
			return false, fmt.Errorf("%w: index entry %d has non-positive encoded_size %d",
				ErrBadBackupStoreFile, b, entry.EncodedSize)
		}

		blockSize := entry.EncodedSize

		if references[b] == refUnseen {
			if _, err := from.Seek(filePosition, io.SeekStart); err != nil {
				return false, fmt.Errorf("reversediff: seeking to base block %d: %w", b, err)
			}

			if int64(len(buf)) < blockSize {
				buf = make([]byte, blockSize)
			}

			block := buf[:blockSize]

			if _, err := io.ReadFull(from, block); err != nil {
				return false, fmt.Errorf("reversediff: reading base block %d: %w", b, err)
			}

			if _, err := out.Write(block); err != nil {
				return false, fmt.Errorf("reversediff: writing output block %d: %w", b, err)
			}

			references[b] = blockSize
		} else {
			isCompletelyDifferent = false
		}

		filePosition += blockSize
	}

	return isCompletelyDifferent, nil
}

// writeOutputIndex writes the output's index header and entries. Each
// entry's checksum and clear_size are preserved unchanged from the base;
// only encoded_size is rewritten, from references[b].
//
// from is repositioned to the start of the base's index entries for this
// pass — from2 already consumed them in copyOrReferenceBlocks and the data
// area copy that needed from's cursor is done, so from is free to reuse.
func writeOutputIndex(
	from io.ReadSeeker,
	out io.Writer,
	references []int64,
	numBlocks uint64,
	otherFileID uint64,
) error {
	if err := objformat.WriteIndexHeader(out, objformat.IndexHeader{
		NumBlocks:   numBlocks,
		OtherFileID: otherFileID,
	}); err != nil {
		return fmt.Errorf("reversediff: writing output index header: %w", err)
	}

	if _, err := objformat.SeekToIndex(from); err != nil {
		return fmt.Errorf("reversediff: seeking to base index entries: %w", err)
	}

	if _, err := objformat.ReadIndexHeader(from); err != nil {
		return fmt.Errorf("reversediff: re-reading base index header: %w", err)
	}

	for b := uint64(0); b < numBlocks; b++ {
		entry, err := objformat.ReadIndexEntry(from)
		if err != nil {
			return fmt.Errorf("reversediff: reading base index entry %d for output: %w", b, err)
		}

		ref := references[b]
		if ref < 0 {
			ref++ // undo the -1-b encoding: becomes -b, a reference to delta block b
		}

		entry.EncodedSize = ref

		if err := objformat.WriteIndexEntry(out, entry); err != nil {
			return fmt.Errorf("reversediff: writing output index entry %d: %w", b, err)
		}
	}

	return nil
}
