// Package memory provides an in-memory snapshot sink used for development and tests.
// It keeps the last saved snapshot and a save counter so callers can observe persistence.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/tinoosan/bankledger/internal/ledger"
)

// ErrInjected is returned by SaveAll while a failure is injected.
var ErrInjected = errors.New("memory: injected save failure")

// Store is an in-memory implementation of storage.Sink.
// It is guarded by an RWMutex for concurrent reads/writes.
type Store struct {
	mu    sync.RWMutex
	snap  ledger.Snapshot
	saves int
	fail  bool
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{snap: ledger.NewSnapshot()}
}

// Seed replaces the stored snapshot, e.g. to simulate state left by a previous run.
func (s *Store) Seed(snap ledger.Snapshot) {
	s.mu.Lock()
	s.snap = snap.Clone()
	s.mu.Unlock()
}

// FailSaves makes subsequent SaveAll calls fail (or succeed again when false).
func (s *Store) FailSaves(fail bool) { s.mu.Lock(); s.fail = fail; s.mu.Unlock() }

// Saves returns how many snapshots have been stored successfully.
func (s *Store) Saves() int { s.mu.RLock(); defer s.mu.RUnlock(); return s.saves }

// Last returns a copy of the most recently stored snapshot.
func (s *Store) Last() ledger.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// LoadAll implements storage.Sink.
func (s *Store) LoadAll(_ context.Context) (ledger.Snapshot, error) {
	return s.Last(), nil
}

// SaveAll implements storage.Sink. The snapshot is copied so later mutation
// by the caller cannot leak into the stored generation.
func (s *Store) SaveAll(ctx context.Context, snap ledger.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := snap.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return ErrInjected
	}
	s.snap = c
	s.saves++
	return nil
}

// Ready implements storage.ReadyChecker.
func (s *Store) Ready(_ context.Context) error { return nil }
