package objectstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/boxbackup-go/backupstore/pkg/bigendian"
	"github.com/boxbackup-go/backupstore/pkg/fs"
	natefinchatomic "github.com/natefinch/atomic"
)

// controlFileSuffix names the small sidecar file that records how an
// object's content was split across its two data fragments, so it can be
// reassembled without re-deriving the sizes from the fragments alone (with
// the second data fragment missing, the parity fragment, padded to the first
// fragment's length, doesn't reveal the object's total size).
const controlFileSuffix = ".ctrl"

const dirPerm = 0o755

// LocalStore stores objects across a nested directory tree, optionally
// split into two data fragments plus an XOR parity fragment, a RAID-like
// redundancy layer with a single parity stripe. Reverse-diff and other
// callers never see the fragments; [Store.OpenRead] always hands back one
// logical byte stream.
//
// A LocalStore with a single root directory behaves as a plain tree with no
// redundancy: [LocalStore.OpenWrite] writes the data fragment only, and a
// missing parity/second-fragment file is simply never consulted.
type LocalStore struct {
	fsys        fs.FS
	writer      *fs.AtomicWriter
	roots       []string // 1 root: no RAID. 3 roots: data0, data1, parity.
	segmentBits uint
}

// NewLocalStore creates a LocalStore rooted at a single directory, with no
// RAID-like redundancy.
func NewLocalStore(fsys fs.FS, root string) *LocalStore {
	return &LocalStore{
		fsys:        fsys,
		writer:      fs.NewAtomicWriter(fsys),
		roots:       []string{root},
		segmentBits: DefaultSegmentBits,
	}
}

// NewLocalStoreRAID creates a LocalStore that splits every object's content
// across two data fragments rooted at dataRoot0/dataRoot1, plus an XOR
// parity fragment rooted at parityRoot. Any one of an object's three
// fragment files can be missing and the content still reconstructs. The
// control file recording the split is kept under dataRoot0 only; without it
// the object cannot be read or sized.
func NewLocalStoreRAID(fsys fs.FS, dataRoot0, dataRoot1, parityRoot string) *LocalStore {
	return &LocalStore{
		fsys:        fsys,
		writer:      fs.NewAtomicWriter(fsys),
		roots:       []string{dataRoot0, dataRoot1, parityRoot},
		segmentBits: DefaultSegmentBits,
	}
}

// WithSegmentBits overrides [DefaultSegmentBits] for the directory-nesting
// width and returns s for chaining. Must be called before any object is
// written, since it changes the path a given id maps to.
func (s *LocalStore) WithSegmentBits(bits uint) *LocalStore {
	s.segmentBits = bits
	return s
}

func (s *LocalStore) raided() bool {
	return len(s.roots) == 3
}

func (s *LocalStore) fragmentPath(root string, id uint64, kind Kind) string {
	segments := append(dirSegments(id, s.segmentBits), localLeaf(id, kind, s.segmentBits))
	return filepath.Join(append([]string{root}, segments...)...)
}

func (s *LocalStore) controlPath(id uint64, kind Kind) string {
	return s.fragmentPath(s.roots[0], id, kind) + controlFileSuffix
}

// OpenRead implements [Store].
func (s *LocalStore) OpenRead(id uint64, kind Kind) (ReadCloserAt, error) {
	if !s.raided() {
		path := s.fragmentPath(s.roots[0], id, kind)

		f, err := s.fsys.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}

			return nil, err
		}

		return f, nil
	}

	return s.openReadRAID(id, kind)
}

// OpenWrite implements [Store].
func (s *LocalStore) OpenWrite(id uint64, kind Kind) (io.WriteCloser, error) {
	return &localObjectWriter{store: s, id: id, kind: kind}, nil
}

// Exists implements [Store], checking the directory kind before the file
// kind, per the facade contract.
func (s *LocalStore) Exists(id uint64) (bool, RevisionID, error) {
	for _, kind := range []Kind{KindDir, KindFile} {
		found, err := s.Head(id, kind)
		if err != nil {
			return false, 0, err
		}

		if found {
			info, err := s.statAnyFragment(id, kind)
			if err != nil {
				return false, 0, err
			}

			return true, revisionFromStat(info), nil
		}
	}

	return false, 0, nil
}

// statAnyFragment stats whichever root still has a copy of id/kind, for
// deriving a revision id. Roots are tried in order, primary first; under
// RAID the fragment found holds only part of the object's content.
func (s *LocalStore) statAnyFragment(id uint64, kind Kind) (os.FileInfo, error) {
	for _, root := range s.roots {
		info, err := s.fsys.Stat(s.fragmentPath(root, id, kind))
		if err == nil {
			return info, nil
		}

		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: no surviving fragment for object %x", ErrNotFound, id)
}

// Stat returns filesystem metadata for the object's primary surviving
// fragment. Under RAID, the fragment is only half (plus padding) of the
// object's logical content; callers that need the full byte size — to bound
// an [io.SectionReader] over the stream [LocalStore.OpenRead] returns —
// should call [LocalStore.Size] instead.
func (s *LocalStore) Stat(id uint64, kind Kind) (os.FileInfo, error) {
	return s.statAnyFragment(id, kind)
}

// Size implements [Store]. For a plain (non-RAID) store it is the primary
// fragment's file size; under RAID, the fragments are split and padded, so
// the logical size is read back from the control file written alongside
// them.
func (s *LocalStore) Size(id uint64, kind Kind) (int64, error) {
	if !s.raided() {
		info, err := s.statAnyFragment(id, kind)
		if err != nil {
			return 0, err
		}

		return info.Size(), nil
	}

	rawLayout, err := s.fsys.ReadFile(s.controlPath(id, kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, s.controlPath(id, kind))
		}

		return 0, err
	}

	layout, err := decodeLayout(rawLayout)
	if err != nil {
		return 0, err
	}

	return layout.TotalSize, nil
}

// Head implements [Store].
func (s *LocalStore) Head(id uint64, kind Kind) (bool, error) {
	found, err := s.fsys.Exists(s.fragmentPath(s.roots[0], id, kind))
	if err != nil {
		return false, err
	}

	if found || !s.raided() {
		return found, nil
	}

	// The primary data fragment is missing; the object may still exist
	// if the other two RAID fragments survived.
	found1, err := s.fsys.Exists(s.fragmentPath(s.roots[1], id, kind))
	if err != nil {
		return false, err
	}

	foundParity, err := s.fsys.Exists(s.fragmentPath(s.roots[2], id, kind))
	if err != nil {
		return false, err
	}

	return found1 && foundParity, nil
}

func revisionFromStat(info os.FileInfo) RevisionID {
	return RevisionID(info.ModTime().UnixNano())*1000003 + RevisionID(info.Size())
}

type fragmentLayout struct {
	TotalSize int64
	SplitSize int64
}

func splitFragments(content []byte) (data0, data1, parity []byte, layout fragmentLayout) {
	split := (len(content) + 1) / 2

	data0 = content[:split]
	data1 = content[split:]

	parityLen := len(data0)
	if len(data1) > parityLen {
		parityLen = len(data1)
	}

	parity = make([]byte, parityLen)

	for i := range parity {
		var b0, b1 byte

		if i < len(data0) {
			b0 = data0[i]
		}

		if i < len(data1) {
			b1 = data1[i]
		}

		parity[i] = b0 ^ b1
	}

	return data0, data1, parity, fragmentLayout{TotalSize: int64(len(content)), SplitSize: int64(split)}
}

func reconstructFragment(present []byte, parity []byte, presentIsFirstHalf bool, layout fragmentLayout) []byte {
	missingLen := layout.SplitSize
	if presentIsFirstHalf {
		missingLen = layout.TotalSize - layout.SplitSize
	}

	missing := make([]byte, missingLen)

	for i := range missing {
		var p, pr byte

		if i < len(present) {
			p = present[i]
		}

		if i < len(parity) {
			pr = parity[i]
		}

		missing[i] = p ^ pr
	}

	return missing
}

func encodeLayout(l fragmentLayout) []byte {
	var buf bytes.Buffer

	_ = bigendian.WriteInt64(&buf, l.TotalSize)
	_ = bigendian.WriteInt64(&buf, l.SplitSize)

	return buf.Bytes()
}

func decodeLayout(raw []byte) (fragmentLayout, error) {
	r := bytes.NewReader(raw)

	total, err := bigendian.ReadInt64(r)
	if err != nil {
		return fragmentLayout{}, fmt.Errorf("reading control file: %w", err)
	}

	split, err := bigendian.ReadInt64(r)
	if err != nil {
		return fragmentLayout{}, fmt.Errorf("reading control file: %w", err)
	}

	return fragmentLayout{TotalSize: total, SplitSize: split}, nil
}

func (s *LocalStore) openReadRAID(id uint64, kind Kind) (ReadCloserAt, error) {
	controlPath := s.controlPath(id, kind)

	rawLayout, err := s.fsys.ReadFile(controlPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, controlPath)
		}

		return nil, err
	}

	layout, err := decodeLayout(rawLayout)
	if err != nil {
		return nil, err
	}

	data0, err0 := s.fsys.ReadFile(s.fragmentPath(s.roots[0], id, kind))
	data1, err1 := s.fsys.ReadFile(s.fragmentPath(s.roots[1], id, kind))
	parity, errP := s.fsys.ReadFile(s.fragmentPath(s.roots[2], id, kind))

	switch {
	case err0 == nil && err1 == nil:
		return &memoryReaderAt{data: append(data0, data1...)}, nil
	case err0 == nil && errP == nil:
		data1 = reconstructFragment(data0, parity, true, layout)
		return &memoryReaderAt{data: append(data0, data1...)}, nil
	case err1 == nil && errP == nil:
		data0 = reconstructFragment(data1, parity, false, layout)
		return &memoryReaderAt{data: append(data0, data1...)}, nil
	default:
		return nil, fmt.Errorf("%w: fewer than two RAID fragments available for object %x", ErrNotFound, id)
	}
}

// memoryReaderAt adapts an in-memory byte slice, assembled from RAID
// fragments, to [ReadCloserAt].
type memoryReaderAt struct {
	data []byte
}

func (m *memoryReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (m *memoryReaderAt) Close() error { return nil }

// localObjectWriter buffers an object's content in memory and commits it
// atomically (across all RAID fragments, if enabled) on Close.
type localObjectWriter struct {
	store *LocalStore
	id    uint64
	kind  Kind
	buf   bytes.Buffer
}

func (w *localObjectWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *localObjectWriter) Close() error {
	content := w.buf.Bytes()

	if !w.store.raided() {
		path := w.store.fragmentPath(w.store.roots[0], w.id, w.kind)

		if err := w.store.fsys.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
			return err
		}

		return w.store.writer.WriteWithDefaults(path, bytes.NewReader(content))
	}

	data0, data1, parity, layout := splitFragments(content)

	paths := [3]string{
		w.store.fragmentPath(w.store.roots[0], w.id, w.kind),
		w.store.fragmentPath(w.store.roots[1], w.id, w.kind),
		w.store.fragmentPath(w.store.roots[2], w.id, w.kind),
	}

	fragments := [3][]byte{data0, data1, parity}

	for i, path := range paths {
		if err := w.store.fsys.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
			return err
		}

		if err := w.store.writer.WriteWithDefaults(path, bytes.NewReader(fragments[i])); err != nil {
			return fmt.Errorf("writing RAID fragment %d: %w", i, err)
		}
	}

	controlPath := w.store.controlPath(w.id, w.kind)

	err := natefinchatomic.WriteFile(controlPath, bytes.NewReader(encodeLayout(layout)))
	if err != nil {
		return fmt.Errorf("writing control file: %w", err)
	}

	return nil
}
