package objectstore_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/boxbackup-go/backupstore/pkg/fs"
	"github.com/boxbackup-go/backupstore/pkg/objectstore"
)

func TestLocalStore_WriteThenRead_NoRAID(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := objectstore.NewLocalStore(fs.NewReal(), root)

	want := []byte("hello, object store")

	w, err := store.OpenWrite(0x1234, objectstore.KindFile)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}

	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := store.OpenRead(0x1234, objectstore.KindFile)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer r.Close()

	got := make([]byte, len(want))

	if _, err := r.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLocalStore_OpenRead_NotFound(t *testing.T) {
	t.Parallel()

	store := objectstore.NewLocalStore(fs.NewReal(), t.TempDir())

	_, err := store.OpenRead(0xdead, objectstore.KindFile)
	if err == nil {
		t.Fatal("OpenRead succeeded, want error")
	}
}

func TestLocalStore_Exists_DirectoryBeforeFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := objectstore.NewLocalStore(fs.NewReal(), root)

	for _, kind := range []objectstore.Kind{objectstore.KindFile, objectstore.KindDir} {
		w, err := store.OpenWrite(0x99, kind)
		if err != nil {
			t.Fatalf("OpenWrite: %v", err)
		}

		if _, err := w.Write([]byte("x")); err != nil {
			t.Fatalf("Write: %v", err)
		}

		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	found, _, err := store.Exists(0x99)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if !found {
		t.Fatal("Exists = false, want true")
	}

	dirFound, err := store.Head(0x99, objectstore.KindDir)
	if err != nil || !dirFound {
		t.Fatalf("Head(dir) = %v, %v", dirFound, err)
	}
}

func TestLocalStore_RAID_ReconstructsFromAnyTwoFragments(t *testing.T) {
	t.Parallel()

	dir0, dir1, parityDir := t.TempDir(), t.TempDir(), t.TempDir()
	store := objectstore.NewLocalStoreRAID(fs.NewReal(), dir0, dir1, parityDir)

	want := []byte("some content that spans an odd number of bytes: 51.")

	w, err := store.OpenWrite(0x42, objectstore.KindFile)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}

	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	assertReads := func(t *testing.T) {
		t.Helper()

		r, err := store.OpenRead(0x42, objectstore.KindFile)
		if err != nil {
			t.Fatalf("OpenRead: %v", err)
		}
		defer r.Close()

		got := make([]byte, len(want))

		n, err := r.ReadAt(got, 0)
		if err != nil && err != io.EOF {
			t.Fatalf("ReadAt: %v", err)
		}

		if string(got[:n]) != string(want) {
			t.Fatalf("got %q, want %q", got[:n], want)
		}
	}

	assertReads(t)

	// id=0x42 has no high bits beyond the default 8-bit leaf segment, so
	// it lands directly at "<root>/42.file" with no nested directories.
	if err := os.Remove(filepath.Join(dir0, "42.file")); err != nil {
		t.Fatalf("removing primary fragment: %v", err)
	}

	assertReads(t)
}

func TestLocalStore_Stat_ReportsLogicalSize(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := objectstore.NewLocalStore(fs.NewReal(), root)

	want := []byte("twenty bytes exactly")

	w, err := store.OpenWrite(0x7, objectstore.KindFile)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}

	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := store.Stat(0x7, objectstore.KindFile)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if info.Size() != int64(len(want)) {
		t.Fatalf("Size() = %d, want %d", info.Size(), len(want))
	}
}

func TestLocalStore_Stat_NotFound(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := objectstore.NewLocalStore(fs.NewReal(), root)

	_, err := store.Stat(0x7, objectstore.KindFile)
	if !errors.Is(err, objectstore.ErrNotFound) {
		t.Fatalf("err = %v, want wrapping ErrNotFound", err)
	}
}
