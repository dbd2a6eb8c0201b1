package ledger

import (
	"sort"
	"time"

	"github.com/govalues/money"
)

// Kind classifies a transaction record.
type Kind string

const (
	// KindDeposit credits an account from outside the ledger.
	KindDeposit Kind = "DEPOSIT"
	// KindWithdraw debits an account to outside the ledger.
	KindWithdraw Kind = "WITHDRAW"
	// KindTransferIn is the credit leg of a transfer.
	KindTransferIn Kind = "TRANSFER_IN"
	// KindTransferOut is the debit leg of a transfer.
	KindTransferOut Kind = "TRANSFER_OUT"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindTransferIn, KindTransferOut:
		return true
	}
	return false
}

// User is a registered login with its credential hash.
type User struct {
	Login        string
	PasswordHash string
}

// Account is a single-currency balance owned by one login.
type Account struct {
	// Number is unique across the whole ledger and never reused.
	Number   string
	Owner    string
	Currency money.Currency
	// Balance is always denominated in Currency and never negative.
	Balance money.Amount
}

// Transaction is one append-only ledger event on a single account.
type Transaction struct {
	ID            string
	AccountNumber string
	Kind          Kind
	// Amount is positive and denominated in the account's own currency.
	Amount      money.Amount
	Currency    money.Currency
	Timestamp   time.Time
	Description string
}

// Snapshot is the full persisted state: users, accounts by owner and
// transactions by owner.
type Snapshot struct {
	Users        map[string]User
	Accounts     map[string][]Account
	Transactions map[string][]Transaction
}

// NewSnapshot returns an empty snapshot with initialized maps.
func NewSnapshot() Snapshot {
	return Snapshot{
		Users:        map[string]User{},
		Accounts:     map[string][]Account{},
		Transactions: map[string][]Transaction{},
	}
}

// Clone deep-copies the snapshot so the copy can be handed to a sink while
// the ledger keeps mutating its own state.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Users:        make(map[string]User, len(s.Users)),
		Accounts:     make(map[string][]Account, len(s.Accounts)),
		Transactions: make(map[string][]Transaction, len(s.Transactions)),
	}
	for k, v := range s.Users {
		out.Users[k] = v
	}
	for k, v := range s.Accounts {
		out.Accounts[k] = append([]Account(nil), v...)
	}
	for k, v := range s.Transactions {
		out.Transactions[k] = append([]Transaction(nil), v...)
	}
	return out
}

// Normalize fills nil maps so callers can range and index without checks.
func (s *Snapshot) Normalize() {
	if s.Users == nil {
		s.Users = map[string]User{}
	}
	if s.Accounts == nil {
		s.Accounts = map[string][]Account{}
	}
	if s.Transactions == nil {
		s.Transactions = map[string][]Transaction{}
	}
}

// SortNewestFirst orders transactions by timestamp descending, ties broken by
// ID descending (IDs are time-ordered).
func SortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.After(txs[j].Timestamp)
		}
		return txs[i].ID > txs[j].ID
	})
}
