package bank

import (
	"context"

	"github.com/govalues/money"

	"github.com/tinoosan/bankledger/internal/currency"
	"github.com/tinoosan/bankledger/internal/errs"
	"github.com/tinoosan/bankledger/internal/ledger"
)

func accountNotFound(number string) error {
	return errs.Newf(errs.ErrNotFound, "account %s not found", number)
}

// CreateAccount opens a zero-balance account in the given currency.
func (l *Ledger) CreateAccount(ctx context.Context, login, code string) (ledger.Account, error) {
	curr, err := currency.Parse(code)
	if err != nil {
		return ledger.Account{}, err
	}
	zero, err := money.NewAmountFromMinorUnits(curr.Code(), 0)
	if err != nil {
		return ledger.Account{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.users[login]; !ok {
		return ledger.Account{}, errs.Newf(errs.ErrNotFound, "user %q not found", login)
	}
	e := &entry{acc: ledger.Account{Number: l.nextNumber(), Owner: login, Currency: curr, Balance: zero}}
	l.commit(ctx, func() {
		l.index[e.acc.Number] = e
		l.buckets[login] = append(l.buckets[login], e)
	})
	l.log.Info("account created", "login", login, "account", e.acc.Number, "currency", curr.Code())
	return e.acc, nil
}

// DeleteAccount removes an empty account. Its transaction history is kept.
func (l *Ledger) DeleteAccount(ctx context.Context, login, number string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.owned(login, number)
	if !ok {
		return accountNotFound(number)
	}
	if bal := e.acc.Balance.Decimal(); bal.Sign() > 0 {
		return errs.Newf(errs.ErrNonZeroBalance,
			"account %s still holds %s %s; withdraw or transfer the funds first",
			number, currency.Format(bal), e.acc.Currency.Code())
	}
	l.commit(ctx, func() {
		delete(l.index, number)
		bucket := l.buckets[login]
		for i, other := range bucket {
			if other == e {
				l.buckets[login] = append(bucket[:i:i], bucket[i+1:]...)
				break
			}
		}
	})
	l.log.Info("account deleted", "login", login, "account", number)
	return nil
}

// Balance returns the current balance of an account owned by login.
func (l *Ledger) Balance(_ context.Context, login, number string) (money.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.owned(login, number)
	if !ok {
		return money.Amount{}, accountNotFound(number)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acc.Balance, nil
}

// Accounts lists login's accounts in creation order.
func (l *Ledger) Accounts(_ context.Context, login string) ([]ledger.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bucket := l.buckets[login]
	out := make([]ledger.Account, 0, len(bucket))
	for _, e := range bucket {
		e.mu.Lock()
		out = append(out, e.acc)
		e.mu.Unlock()
	}
	return out, nil
}

// Transactions returns the history of one account from login's log, newest
// first. History survives account deletion.
func (l *Ledger) Transactions(_ context.Context, login, number string) ([]ledger.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, owned := l.owned(login, number)

	l.journalMu.RLock()
	var out []ledger.Transaction
	for _, tx := range l.journal[login] {
		if tx.AccountNumber == number {
			out = append(out, tx)
		}
	}
	l.journalMu.RUnlock()

	if !owned && len(out) == 0 {
		return nil, accountNotFound(number)
	}
	if out == nil {
		out = []ledger.Transaction{}
	}
	ledger.SortNewestFirst(out)
	return out, nil
}
