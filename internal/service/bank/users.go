package bank

import (
	"context"
	"strings"

	"github.com/tinoosan/bankledger/internal/errs"
	"github.com/tinoosan/bankledger/internal/ledger"
)

// Register creates a user with an empty account bucket and transaction log.
func (l *Ledger) Register(ctx context.Context, login, pass string) error {
	if strings.TrimSpace(login) == "" || strings.TrimSpace(pass) == "" {
		return errs.New(errs.ErrInvalidInput, "login and password must not be empty")
	}
	// Hash outside the lock.
	hash, err := l.hasher.Hash(pass)
	if err != nil {
		return errs.Newf(errs.ErrInvalidInput, "cannot hash password: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.users[login]; exists {
		return errs.Newf(errs.ErrAlreadyExists, "user %q already exists", login)
	}
	l.commit(ctx, func() {
		l.users[login] = ledger.User{Login: login, PasswordHash: hash}
		l.buckets[login] = nil
	})
	l.log.Info("user registered", "login", login)
	return nil
}

// Authenticate checks credentials. A successful login against a legacy
// credential upgrades it to the current hash and persists.
func (l *Ledger) Authenticate(ctx context.Context, login, pass string) error {
	l.mu.RLock()
	u, ok := l.users[login]
	l.mu.RUnlock()
	if !ok || !l.hasher.Verify(pass, u.PasswordHash) {
		return errs.New(errs.ErrInvalidCredentials, "invalid login or password")
	}
	if l.hasher.NeedsRehash(u.PasswordHash) {
		l.rehash(ctx, u, pass)
	}
	return nil
}

func (l *Ledger) rehash(ctx context.Context, old ledger.User, pass string) {
	hash, err := l.hasher.Hash(pass)
	if err != nil {
		l.log.Warn("rehash credential", "login", old.Login, "err", err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.users[old.Login]
	if !ok || cur.PasswordHash != old.PasswordHash {
		return
	}
	l.commit(ctx, func() {
		l.users[old.Login] = ledger.User{Login: old.Login, PasswordHash: hash}
	})
	l.log.Info("credential upgraded", "login", old.Login)
}
