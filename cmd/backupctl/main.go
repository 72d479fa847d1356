// backupctl is an interactive REPL for inspecting an object store and
// driving reverse-diff against objects already in it.
//
// Usage:
//
//	backupctl <root>                Open (or create) a local object store at root
//	backupctl new <root>            Same as above; root is created if missing
//	backupctl --config acct.jsonc <root>
//	                                 Layer a store-layout config over root: RAID
//	                                 roots, a remote backend, a custom segment
//	                                 width, or a lock acquisition timeout
//
// root always names the local directory the REPL's account lock lives in,
// even when the config routes object storage to RAID roots or a remote
// backend elsewhere.
//
// Commands (in REPL):
//
//	show <id-hex> [file|dir]            Print an object's header and index summary
//	revdiff <base-id> <delta-id> <out-id> [file|dir]
//	                                     Reverse-diff base against delta, write
//	                                     the result as out-id
//	exists <id-hex>                      Report whether an object exists
//	lock                                 Acquire the store's account lock, retrying
//	                                     with backoff up to the config's lock_timeout
//	unlock                               Release the account lock
//	help                                 Show this help
//	exit / quit / q                      Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/boxbackup-go/backupstore/internal/config"
	"github.com/boxbackup-go/backupstore/internal/observer"
	"github.com/boxbackup-go/backupstore/pkg/fs"
	"github.com/boxbackup-go/backupstore/pkg/lock"
	"github.com/boxbackup-go/backupstore/pkg/objformat"
	"github.com/boxbackup-go/backupstore/pkg/objectstore"
	"github.com/boxbackup-go/backupstore/pkg/reversediff"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

var errMissingStoreRoot = errors.New("backupctl: missing store root path")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "new" {
		args = args[1:]
	}

	flagSet := flag.NewFlagSet("backupctl", flag.ContinueOnError)

	verbose := flagSet.BoolP("verbose", "v", false, "log trace-level reverse-diff progress")
	configPath := flagSet.String("config", "", "path to a store-layout JSONC config file")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if flagSet.NArg() < 1 {
		return errMissingStoreRoot
	}

	root := flagSet.Arg(0)

	cfg := config.Default()

	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cfg = loaded
	}

	fsys := fs.NewReal()
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("creating store root: %w", err)
	}

	store, err := buildStore(fsys, cfg, root)
	if err != nil {
		return fmt.Errorf("building object store from config: %w", err)
	}

	repl := &repl{
		fsys:  fsys,
		store: store,
		root:  root,
		cfg:   cfg,
		obs:   replObserver(*verbose),
	}

	return repl.run()
}

// buildStore picks a backend from cfg, in the same preference order
// [config.Config]'s field comments describe: RAID roots first (a complete
// local layout of its own), then a remote backend, falling back to a plain
// local store rooted at root. cfg.SegmentBits, if set, overrides whichever
// backend's default directory-nesting width.
func buildStore(fsys fs.FS, cfg config.Config, root string) (objectstore.Store, error) {
	switch {
	case len(cfg.RAIDRoots) == 3:
		for _, dir := range cfg.RAIDRoots {
			if err := fsys.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating RAID root %s: %w", dir, err)
			}
		}

		store := objectstore.NewLocalStoreRAID(fsys, cfg.RAIDRoots[0], cfg.RAIDRoots[1], cfg.RAIDRoots[2])
		if cfg.SegmentBits != 0 {
			store = store.WithSegmentBits(cfg.SegmentBits)
		}

		return store, nil

	case cfg.RemoteBaseURL != "":
		store, err := objectstore.NewRemoteStore(nil, cfg.RemoteBaseURL, cfg.RemoteBasePath)
		if err != nil {
			return nil, err
		}

		if cfg.SegmentBits != 0 {
			store = store.WithSegmentBits(cfg.SegmentBits)
		}

		return store, nil

	default:
		storeRoot := cfg.StoreRoot
		if storeRoot == "" {
			storeRoot = root
		}

		if err := fsys.MkdirAll(storeRoot, 0o755); err != nil {
			return nil, fmt.Errorf("creating store root %s: %w", storeRoot, err)
		}

		store := objectstore.NewLocalStore(fsys, storeRoot)
		if cfg.SegmentBits != 0 {
			store = store.WithSegmentBits(cfg.SegmentBits)
		}

		return store, nil
	}
}

func replObserver(verbose bool) observer.Observer {
	min := observer.LevelNotice
	if verbose {
		min = observer.LevelTrace
	}

	return observer.New(min, func(level observer.Level, msg string) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", level, msg)
	})
}

type repl struct {
	fsys  fs.FS
	store objectstore.Store
	root  string
	cfg   config.Config
	obs   observer.Observer
	liner *liner.State
	held  *lock.NamedLock
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)

	fmt.Printf("backupctl - object store at %s\n", r.root)
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("backupctl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		cmdArgs := parts[1:]

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			fmt.Println("Bye!")
			return nil
		}

		if err := r.dispatch(cmd, cmdArgs); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (r *repl) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		r.printHelp()
		return nil
	case "show":
		return r.cmdShow(args)
	case "exists":
		return r.cmdExists(args)
	case "revdiff":
		return r.cmdRevDiff(args)
	case "lock":
		return r.cmdLock()
	case "unlock":
		return r.cmdUnlock()
	default:
		fmt.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		return nil
	}
}

func (r *repl) printHelp() {
	fmt.Println(`commands:
  show <id-hex> [file|dir]                     print header and index summary
  exists <id-hex>                              report whether an object exists
  revdiff <base-id> <delta-id> <out-id> [kind] reverse-diff base against delta
  lock                                         acquire the store's account lock
  unlock                                       release the account lock
  help                                         show this help
  exit / quit / q                              exit`)
}

func parseKind(s string) (objectstore.Kind, error) {
	switch s {
	case "", "file":
		return objectstore.KindFile, nil
	case "dir":
		return objectstore.KindDir, nil
	default:
		return 0, fmt.Errorf("invalid kind %q, want file or dir", s)
	}
}

func parseID(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

func (r *repl) cmdShow(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: show <id-hex> [file|dir]")
	}

	id, err := parseID(args[0])
	if err != nil {
		return fmt.Errorf("parsing id: %w", err)
	}

	kindArg := ""
	if len(args) > 1 {
		kindArg = args[1]
	}

	kind, err := parseKind(kindArg)
	if err != nil {
		return err
	}

	obj, err := r.store.OpenRead(id, kind)
	if err != nil {
		return fmt.Errorf("opening object %x: %w", id, err)
	}
	defer obj.Close()

	size, err := r.store.Size(id, kind)
	if err != nil {
		return fmt.Errorf("sizing object %x: %w", id, err)
	}

	rs := io.NewSectionReader(obj, 0, size)

	header, err := objformat.ReadHeader(rs)
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	if _, err := objformat.SeekToIndex(rs); err != nil {
		return fmt.Errorf("seeking to index: %w", err)
	}

	idx, err := objformat.ReadIndexHeader(rs)
	if err != nil {
		return fmt.Errorf("reading index header: %w", err)
	}

	fmt.Printf("object %x (%s)\n", id, kindArg)
	fmt.Printf("  num_blocks:     %d\n", header.NumBlocks)
	fmt.Printf("  container_size: %d\n", header.ContainerSize)
	fmt.Printf("  mtime:          %d\n", header.ModificationTime)
	fmt.Printf("  max_block_size: %d\n", header.MaxBlockSize)
	fmt.Printf("  other_file_id:  %x\n", idx.OtherFileID)

	return nil
}

func (r *repl) cmdExists(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: exists <id-hex>")
	}

	id, err := parseID(args[0])
	if err != nil {
		return fmt.Errorf("parsing id: %w", err)
	}

	found, rev, err := r.store.Exists(id)
	if err != nil {
		return err
	}

	fmt.Printf("exists=%v revision=%d\n", found, rev)

	return nil
}

// cmdRevDiff reverse-diffs the object at baseID against the object at
// deltaID (both already in the store) and writes the result to outID.
func (r *repl) cmdRevDiff(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: revdiff <base-id> <delta-id> <out-id> [file|dir]")
	}

	baseID, err := parseID(args[0])
	if err != nil {
		return fmt.Errorf("parsing base id: %w", err)
	}

	deltaID, err := parseID(args[1])
	if err != nil {
		return fmt.Errorf("parsing delta id: %w", err)
	}

	outID, err := parseID(args[2])
	if err != nil {
		return fmt.Errorf("parsing out id: %w", err)
	}

	kindArg := ""
	if len(args) > 3 {
		kindArg = args[3]
	}

	kind, err := parseKind(kindArg)
	if err != nil {
		return err
	}

	base, err := r.store.OpenRead(baseID, kind)
	if err != nil {
		return fmt.Errorf("opening base %x: %w", baseID, err)
	}
	defer base.Close()

	base2, err := r.store.OpenRead(baseID, kind)
	if err != nil {
		return fmt.Errorf("opening second base view %x: %w", baseID, err)
	}
	defer base2.Close()

	delta, err := r.store.OpenRead(deltaID, kind)
	if err != nil {
		return fmt.Errorf("opening delta %x: %w", deltaID, err)
	}
	defer delta.Close()

	size, err := r.store.Size(baseID, kind)
	if err != nil {
		return fmt.Errorf("sizing base %x: %w", baseID, err)
	}

	deltaSize, err := r.store.Size(deltaID, kind)
	if err != nil {
		return fmt.Errorf("sizing delta %x: %w", deltaID, err)
	}

	out, err := r.store.OpenWrite(outID, kind)
	if err != nil {
		return fmt.Errorf("opening output %x: %w", outID, err)
	}

	isDifferent, err := reversediff.ReverseDiff(
		io.NewSectionReader(delta, 0, deltaSize),
		io.NewSectionReader(base, 0, size),
		io.NewSectionReader(base2, 0, size),
		out, baseID, r.obs,
	)
	if err != nil {
		return fmt.Errorf("reverse-diff: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("committing output %x: %w", outID, err)
	}

	fmt.Printf("wrote object %x, completely_different=%v\n", outID, isDifferent)

	return nil
}

// cmdLock acquires the store's account lock, retrying with a fixed backoff
// until r.cfg.LockTimeout elapses. The engine and pkg/lock have no retry
// logic of their own; waiting out contention is this layer's job.
func (r *repl) cmdLock() error {
	if r.held != nil {
		return errors.New("lock already held, call unlock first")
	}

	path := filepath.Join(r.root, "account.lock")
	l := lock.New(r.fsys, path)

	const backoff = 100 * time.Millisecond

	deadline := time.Now().Add(r.cfg.LockTimeout)

	for {
		acquired, err := l.TryAcquire()
		if err != nil {
			return err
		}

		if acquired {
			r.held = l
			fmt.Println("lock acquired")

			return nil
		}

		if time.Now().After(deadline) {
			fmt.Println("lock is held by another process, timed out waiting")
			return nil
		}

		r.obs.Notice("lock: held by another process, retrying in %s", backoff)
		time.Sleep(backoff)
	}
}

func (r *repl) cmdUnlock() error {
	if r.held == nil {
		return errors.New("lock not held")
	}

	err := r.held.Release()
	r.held = nil

	if err != nil {
		return err
	}

	fmt.Println("lock released")

	return nil
}
