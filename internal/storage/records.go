// Package storage holds the persisted record layout shared by the snapshot
// sinks. Field names follow the historical JSON data files so snapshots
// written by earlier releases load unchanged.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/bankledger/internal/currency"
	"github.com/tinoosan/bankledger/internal/ledger"
)

// legacyTimeLayout is the zone-less ISO local date-time older files carry.
const legacyTimeLayout = "2006-01-02T15:04:05.999999999"

type UserRecord struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type AccountRecord struct {
	AccountNumber string      `json:"accountNumber"`
	Owner         string      `json:"owner"`
	Balance       json.Number `json:"balance"`
	Currency      string      `json:"currency"`
}

type TransactionRecord struct {
	ID            string      `json:"id"`
	AccountNumber string      `json:"accountNumber"`
	Type          string      `json:"type"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Timestamp     string      `json:"timestamp"`
	Description   string      `json:"description"`
}

// Records is the three keyed collections in their persisted form.
type Records struct {
	Users        map[string]UserRecord
	Accounts     map[string][]AccountRecord
	Transactions map[string][]TransactionRecord
}

// FromSnapshot converts domain state to records.
func FromSnapshot(s ledger.Snapshot) Records {
	out := Records{
		Users:        make(map[string]UserRecord, len(s.Users)),
		Accounts:     make(map[string][]AccountRecord, len(s.Accounts)),
		Transactions: make(map[string][]TransactionRecord, len(s.Transactions)),
	}
	for login, u := range s.Users {
		out.Users[login] = UserRecord{Login: u.Login, Password: u.PasswordHash}
	}
	for owner, accs := range s.Accounts {
		recs := make([]AccountRecord, 0, len(accs))
		for _, a := range accs {
			recs = append(recs, AccountRecord{
				AccountNumber: a.Number,
				Owner:         a.Owner,
				Balance:       json.Number(a.Balance.Decimal().String()),
				Currency:      a.Currency.Code(),
			})
		}
		out.Accounts[owner] = recs
	}
	for owner, txs := range s.Transactions {
		recs := make([]TransactionRecord, 0, len(txs))
		for _, t := range txs {
			recs = append(recs, TransactionRecord{
				ID:            t.ID,
				AccountNumber: t.AccountNumber,
				Type:          string(t.Kind),
				Amount:        json.Number(t.Amount.Decimal().String()),
				Currency:      t.Currency.Code(),
				Timestamp:     t.Timestamp.UTC().Format(time.RFC3339Nano),
				Description:   t.Description,
			})
		}
		out.Transactions[owner] = recs
	}
	return out
}

// ToSnapshot converts records back to domain state. Any malformed record
// fails the whole conversion.
func (r Records) ToSnapshot() (ledger.Snapshot, error) {
	s := ledger.NewSnapshot()
	for key, u := range r.Users {
		login := u.Login
		if login == "" {
			login = key
		}
		s.Users[login] = ledger.User{Login: login, PasswordHash: u.Password}
	}
	for owner, recs := range r.Accounts {
		accs := make([]ledger.Account, 0, len(recs))
		for _, rec := range recs {
			curr, bal, err := parseAmount(rec.Currency, rec.Balance)
			if err != nil {
				return ledger.Snapshot{}, fmt.Errorf("account %s: %w", rec.AccountNumber, err)
			}
			accOwner := rec.Owner
			if accOwner == "" {
				accOwner = owner
			}
			accs = append(accs, ledger.Account{Number: rec.AccountNumber, Owner: accOwner, Currency: curr, Balance: bal})
		}
		s.Accounts[owner] = accs
	}
	for owner, recs := range r.Transactions {
		txs := make([]ledger.Transaction, 0, len(recs))
		for _, rec := range recs {
			curr, amt, err := parseAmount(rec.Currency, rec.Amount)
			if err != nil {
				return ledger.Snapshot{}, fmt.Errorf("transaction %s: %w", rec.ID, err)
			}
			ts, err := parseTime(rec.Timestamp)
			if err != nil {
				return ledger.Snapshot{}, fmt.Errorf("transaction %s: %w", rec.ID, err)
			}
			txs = append(txs, ledger.Transaction{
				ID:            rec.ID,
				AccountNumber: rec.AccountNumber,
				Kind:          ledger.Kind(rec.Type),
				Amount:        amt,
				Currency:      curr,
				Timestamp:     ts,
				Description:   rec.Description,
			})
		}
		s.Transactions[owner] = txs
	}
	return s, nil
}

func parseAmount(code string, n json.Number) (money.Currency, money.Amount, error) {
	curr, err := currency.Parse(code)
	if err != nil {
		return curr, money.Amount{}, err
	}
	raw := n.String()
	if raw == "" {
		raw = "0"
	}
	d, err := decimal.Parse(raw)
	if err != nil {
		return curr, money.Amount{}, fmt.Errorf("amount %q: %w", raw, err)
	}
	amt, err := money.NewAmountFromDecimal(curr, d)
	if err != nil {
		return curr, money.Amount{}, err
	}
	return curr, amt, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(legacyTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t, nil
}
