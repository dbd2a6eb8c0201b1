// Package postgres provides a pgx-backed snapshot sink.
//
// The schema is three tables created on Open. SaveAll replaces their contents
// inside one transaction, so readers of the database never observe a partially
// written generation.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/govalues/decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/bankledger/internal/ledger"
	"github.com/tinoosan/bankledger/internal/storage"
)

const schema = `
create table if not exists bank_users (
    login    text primary key,
    password text not null
);
create table if not exists bank_accounts (
    number   text primary key,
    owner    text not null,
    position integer not null,
    balance  numeric not null,
    currency text not null
);
create table if not exists bank_transactions (
    owner          text not null,
    position       integer not null,
    id             text not null,
    account_number text not null,
    kind           text not null,
    amount         numeric not null,
    currency       text not null,
    ts             timestamptz not null,
    description    text not null default '',
    primary key (owner, id)
);`

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string and
// makes sure the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// LoadAll reads every table and decodes it through the shared record layout.
func (s *Store) LoadAll(ctx context.Context) (ledger.Snapshot, error) {
	r := storage.Records{
		Users:        map[string]storage.UserRecord{},
		Accounts:     map[string][]storage.AccountRecord{},
		Transactions: map[string][]storage.TransactionRecord{},
	}

	rows, err := s.pool.Query(ctx, `select login, password from bank_users`)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	for rows.Next() {
		var u storage.UserRecord
		if err := rows.Scan(&u.Login, &u.Password); err != nil {
			rows.Close()
			return ledger.Snapshot{}, err
		}
		r.Users[u.Login] = u
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, err
	}

	rows, err = s.pool.Query(ctx, `
        select number, owner, balance::text, currency
        from bank_accounts order by owner, position`)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	for rows.Next() {
		var a storage.AccountRecord
		var bal string
		if err := rows.Scan(&a.AccountNumber, &a.Owner, &bal, &a.Currency); err != nil {
			rows.Close()
			return ledger.Snapshot{}, err
		}
		a.Balance = json.Number(bal)
		r.Accounts[a.Owner] = append(r.Accounts[a.Owner], a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, err
	}

	rows, err = s.pool.Query(ctx, `
        select owner, id, account_number, kind, amount::text, currency, ts, description
        from bank_transactions order by owner, position`)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	for rows.Next() {
		var (
			owner, amt string
			ts         time.Time
			t          storage.TransactionRecord
		)
		if err := rows.Scan(&owner, &t.ID, &t.AccountNumber, &t.Type, &amt, &t.Currency, &ts, &t.Description); err != nil {
			rows.Close()
			return ledger.Snapshot{}, err
		}
		t.Amount = json.Number(amt)
		t.Timestamp = ts.UTC().Format(time.RFC3339Nano)
		r.Transactions[owner] = append(r.Transactions[owner], t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, err
	}

	snap, err := r.ToSnapshot()
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// SaveAll replaces the stored state with snap in a single transaction.
func (s *Store) SaveAll(ctx context.Context, snap ledger.Snapshot) error {
	users := make([][]any, 0, len(snap.Users))
	for _, u := range snap.Users {
		users = append(users, []any{u.Login, u.PasswordHash})
	}
	var accounts [][]any
	for owner, accs := range snap.Accounts {
		for i, a := range accs {
			bal, err := numeric(a.Balance.Decimal())
			if err != nil {
				return fmt.Errorf("account %s: %w", a.Number, err)
			}
			accounts = append(accounts, []any{a.Number, owner, int32(i), bal, a.Currency.Code()})
		}
	}
	var txs [][]any
	for owner, list := range snap.Transactions {
		for i, t := range list {
			amt, err := numeric(t.Amount.Decimal())
			if err != nil {
				return fmt.Errorf("transaction %s: %w", t.ID, err)
			}
			txs = append(txs, []any{owner, int32(i), t.ID, t.AccountNumber, string(t.Kind), amt, t.Currency.Code(), t.Timestamp, t.Description})
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `delete from bank_transactions; delete from bank_accounts; delete from bank_users`); err != nil {
		return fmt.Errorf("clear tables: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"bank_users"}, []string{"login", "password"}, pgx.CopyFromRows(users)); err != nil {
		return fmt.Errorf("copy users: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"bank_accounts"},
		[]string{"number", "owner", "position", "balance", "currency"}, pgx.CopyFromRows(accounts)); err != nil {
		return fmt.Errorf("copy accounts: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"bank_transactions"},
		[]string{"owner", "position", "id", "account_number", "kind", "amount", "currency", "ts", "description"}, pgx.CopyFromRows(txs)); err != nil {
		return fmt.Errorf("copy transactions: %w", err)
	}
	return tx.Commit(ctx)
}

func numeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return n, nil
}
