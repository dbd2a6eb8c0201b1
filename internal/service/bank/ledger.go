// Package bank implements the multi-user currency ledger: users, accounts,
// balance movements, cross-currency transfers and the append-only
// transaction log, with every committed change handed to a snapshot sink.
//
// Locking: mu guards the structural maps (users, buckets, index). Structural
// changes hold it exclusively; balance operations hold it shared for their
// whole duration, so an account cannot disappear under a movement. Each
// account has its own mutex; two-account operations lock them in ascending
// account-number order. commitMu serialises applying a change and building
// the snapshot that is persisted. journalMu guards the transaction log for
// readers. Lock order: mu, account locks, commitMu, journalMu.
package bank

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/bankledger/internal/errs"
	"github.com/tinoosan/bankledger/internal/ledger"
	"github.com/tinoosan/bankledger/internal/password"
	"github.com/tinoosan/bankledger/internal/storage"
)

const numberPrefix = "ACC"

// DefaultSaveTimeout bounds a single SaveAll call.
const DefaultSaveTimeout = 10 * time.Second

type entry struct {
	mu  sync.Mutex
	acc ledger.Account
}

// Ledger owns all in-memory state. Safe for concurrent use.
type Ledger struct {
	sink        storage.Sink
	hasher      password.Hasher
	log         *slog.Logger
	now         func() time.Time
	saveTimeout time.Duration
	onPersist   func(error)

	mu      sync.RWMutex
	users   map[string]ledger.User
	buckets map[string][]*entry
	index   map[string]*entry

	commitMu  sync.Mutex
	journalMu sync.RWMutex
	journal   map[string][]ledger.Transaction

	seq atomic.Int64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h password.Hasher) Option { return func(l *Ledger) { l.hasher = h } }

// WithLogger sets the logger; the default discards.
func WithLogger(log *slog.Logger) Option { return func(l *Ledger) { l.log = log } }

// WithClock overrides time.Now for transaction timestamps.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// WithSaveTimeout bounds each persistence call.
func WithSaveTimeout(d time.Duration) Option { return func(l *Ledger) { l.saveTimeout = d } }

// WithPersistObserver registers a callback invoked with the result of every
// SaveAll (nil on success).
func WithPersistObserver(fn func(error)) Option { return func(l *Ledger) { l.onPersist = fn } }

// Open loads the current state from sink and returns a ready Ledger.
func Open(ctx context.Context, sink storage.Sink, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		sink:        sink,
		hasher:      password.NewBcrypt(0),
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		saveTimeout: DefaultSaveTimeout,
		users:       map[string]ledger.User{},
		buckets:     map[string][]*entry{},
		index:       map[string]*entry{},
		journal:     map[string][]ledger.Transaction{},
	}
	for _, o := range opts {
		o(l)
	}
	snap, err := sink.LoadAll(ctx)
	if err != nil {
		return nil, errs.Newf(errs.ErrPersistence, "load ledger state: %v", err)
	}
	snap.Normalize()
	l.restore(snap)
	return l, nil
}

func (l *Ledger) restore(snap ledger.Snapshot) {
	highest := l.now().UnixMilli()
	for login, u := range snap.Users {
		l.users[login] = u
		l.buckets[login] = nil
	}
	for owner, accs := range snap.Accounts {
		for _, a := range accs {
			e := &entry{acc: a}
			l.buckets[owner] = append(l.buckets[owner], e)
			l.index[a.Number] = e
			if n, ok := parseNumber(a.Number); ok && n > highest {
				highest = n
			}
		}
	}
	for owner, txs := range snap.Transactions {
		l.journal[owner] = append([]ledger.Transaction(nil), txs...)
	}
	l.seq.Store(highest)
	l.log.Info("ledger loaded", "users", len(l.users), "accounts", len(l.index))
}

func parseNumber(number string) (int64, bool) {
	digits, ok := strings.CutPrefix(number, numberPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	return n, err == nil
}

// nextNumber returns an account number not present in the index.
// Caller holds mu exclusively.
func (l *Ledger) nextNumber() string {
	for {
		n := numberPrefix + strconv.FormatInt(l.seq.Add(1), 10)
		if _, taken := l.index[n]; !taken {
			return n
		}
	}
}

func newTxID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// owned resolves number inside login's bucket. Caller holds mu.
func (l *Ledger) owned(login, number string) (*entry, bool) {
	e, ok := l.index[number]
	if !ok || e.acc.Owner != login {
		return nil, false
	}
	return e, true
}

// commit runs apply and persists the resulting state. Caller holds mu
// (shared or exclusive) and every account lock apply touches.
func (l *Ledger) commit(ctx context.Context, apply func()) {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()
	apply()
	l.persistLocked(ctx)
}

// appendTx records tx in owner's log. Caller holds commitMu.
func (l *Ledger) appendTx(owner string, tx ledger.Transaction) {
	l.journalMu.Lock()
	l.journal[owner] = append(l.journal[owner], tx)
	l.journalMu.Unlock()
}

// persistLocked writes a snapshot of the current state. Caller holds mu and
// commitMu. A failed save is logged; the in-memory change stands.
func (l *Ledger) persistLocked(ctx context.Context) {
	snap := l.snapshotLocked()
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.saveTimeout)
	defer cancel()
	err := l.sink.SaveAll(saveCtx, snap)
	if err != nil {
		l.log.Error("persist ledger state", "err", err)
	}
	if l.onPersist != nil {
		l.onPersist(err)
	}
}

// snapshotLocked copies the state. Balances are only written under commitMu,
// which the caller holds, so they are read without account locks.
func (l *Ledger) snapshotLocked() ledger.Snapshot {
	snap := ledger.NewSnapshot()
	for login, u := range l.users {
		snap.Users[login] = u
		accs := make([]ledger.Account, 0, len(l.buckets[login]))
		for _, e := range l.buckets[login] {
			accs = append(accs, e.acc)
		}
		snap.Accounts[login] = accs
	}
	l.journalMu.RLock()
	for owner, txs := range l.journal {
		snap.Transactions[owner] = append([]ledger.Transaction(nil), txs...)
	}
	l.journalMu.RUnlock()
	return snap
}

// Stats summarises the ledger for the admin surface.
type Stats struct {
	Users        int
	Accounts     int
	Transactions int
}

// Stats returns current counts.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := Stats{Users: len(l.users), Accounts: len(l.index)}
	l.journalMu.RLock()
	for _, txs := range l.journal {
		st.Transactions += len(txs)
	}
	l.journalMu.RUnlock()
	return st
}
