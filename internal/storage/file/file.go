// Package file persists ledger snapshots as three JSON documents:
// users.json, accounts.json and transactions.json.
//
// Each SaveAll writes a fresh generation directory under the data dir and
// then switches the CURRENT pointer file to it with a single rename. A save
// that fails before that rename leaves the previous generation current.
// Data dirs written by older releases keep the three documents directly in
// the data dir; they load until the first generation is committed.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/tinoosan/bankledger/internal/ledger"
	"github.com/tinoosan/bankledger/internal/storage"
)

const (
	UsersFile        = "users.json"
	AccountsFile     = "accounts.json"
	TransactionsFile = "transactions.json"

	// CurrentFile names the generation directory holding the live documents.
	CurrentFile = "CURRENT"

	genPrefix = "gen-"
)

// Store is a snapshot sink backed by files under Dir. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	dir    string
	rename func(oldpath, newpath string) error
}

// Open ensures dir exists and returns a Store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, rename: os.Rename}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Ready reports whether the data directory is still accessible.
func (s *Store) Ready(_ context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

// LoadAll reads the three documents of the current generation. Missing
// files load as empty collections.
func (s *Store) LoadAll(_ context.Context) (ledger.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, err := s.current()
	if err != nil {
		return ledger.Snapshot{}, err
	}
	root := s.dir
	if gen != "" {
		root = filepath.Join(s.dir, gen)
	}
	var r storage.Records
	if err := read(root, UsersFile, &r.Users); err != nil {
		return ledger.Snapshot{}, err
	}
	if err := read(root, AccountsFile, &r.Accounts); err != nil {
		return ledger.Snapshot{}, err
	}
	if err := read(root, TransactionsFile, &r.Transactions); err != nil {
		return ledger.Snapshot{}, err
	}
	snap, err := r.ToSnapshot()
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// SaveAll writes all three documents as a new generation and makes it current.
func (s *Store) SaveAll(ctx context.Context, snap ledger.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := storage.FromSnapshot(snap)
	docs := []struct {
		name string
		v    any
	}{
		{UsersFile, r.Users},
		{AccountsFile, r.Accounts},
		{TransactionsFile, r.Transactions},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.current()
	if err != nil {
		return err
	}
	gen := genPrefix + strconv.FormatUint(genNumber(prev)+1, 10)
	genDir := filepath.Join(s.dir, gen)
	// Leftovers of an earlier failed attempt at the same generation.
	if err := os.RemoveAll(genDir); err != nil {
		return fmt.Errorf("clear %s: %w", gen, err)
	}
	if err := os.Mkdir(genDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", gen, err)
	}
	abandon := func() { _ = os.RemoveAll(genDir) }
	for _, d := range docs {
		if err := writeSynced(filepath.Join(genDir, d.name), d.v); err != nil {
			abandon()
			return err
		}
	}
	if err := syncDir(genDir); err != nil {
		abandon()
		return err
	}
	if err := s.switchTo(gen); err != nil {
		abandon()
		return err
	}
	if err := syncDir(s.dir); err != nil {
		return err
	}
	s.prune(gen)
	return nil
}

// current returns the live generation name, or "" for a data dir that has
// never committed one.
func (s *Store) current() (string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, CurrentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", CurrentFile, err)
	}
	gen := strings.TrimSpace(string(b))
	if !strings.HasPrefix(gen, genPrefix) || strings.ContainsAny(gen, `/\`) {
		return "", fmt.Errorf("%s: bad generation %q", CurrentFile, gen)
	}
	return gen, nil
}

// switchTo atomically replaces the pointer file.
func (s *Store) switchTo(gen string) error {
	f, err := os.CreateTemp(s.dir, CurrentFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", CurrentFile, err)
	}
	tmp := f.Name()
	if _, err := f.WriteString(gen + "\n"); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", CurrentFile, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", CurrentFile, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", CurrentFile, err)
	}
	if err := s.rename(tmp, filepath.Join(s.dir, CurrentFile)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", CurrentFile, err)
	}
	return nil
}

// prune removes generations other than keep. Failures only cost disk space.
func (s *Store) prune(keep string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), genPrefix) && e.Name() != keep {
			_ = os.RemoveAll(filepath.Join(s.dir, e.Name()))
		}
	}
}

func genNumber(gen string) uint64 {
	n, err := strconv.ParseUint(strings.TrimPrefix(gen, genPrefix), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func read(root, name string, v any) error {
	b, err := os.ReadFile(filepath.Join(root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func writeSynced(path string, v any) error {
	name := filepath.Base(path)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

// syncDir flushes directory entries so renames survive a crash. Platforms
// that cannot fsync a directory report EINVAL or ErrUnsupported; those are
// not failures.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open %s for sync: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, errors.ErrUnsupported) {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}
