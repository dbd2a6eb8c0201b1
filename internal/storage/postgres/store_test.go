package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/govalues/money"

	"github.com/tinoosan/bankledger/internal/ledger"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestStore_SaveAndLoad(t *testing.T) {
	dsn := getTestDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := mustOpen(t, dsn)
	defer s.Close()
	if err := s.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}

	bal, _ := money.NewAmountFromMinorUnits("USD", 20050)
	zero, _ := money.NewAmountFromMinorUnits("RUB", 0)
	snap := ledger.NewSnapshot()
	snap.Users["alice"] = ledger.User{Login: "alice", PasswordHash: "$2a$10$x"}
	snap.Accounts["alice"] = []ledger.Account{
		{Number: "ACC1", Owner: "alice", Currency: money.USD, Balance: bal},
		{Number: "ACC2", Owner: "alice", Currency: money.RUB, Balance: zero},
	}
	snap.Transactions["alice"] = []ledger.Transaction{{
		ID: "t1", AccountNumber: "ACC1", Kind: ledger.KindDeposit, Amount: bal,
		Currency: money.USD, Timestamp: time.Now().UTC().Truncate(time.Microsecond), Description: "deposit",
	}}
	if err := s.SaveAll(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	accs := got.Accounts["alice"]
	if len(accs) != 2 || accs[0].Number != "ACC1" || accs[1].Number != "ACC2" {
		t.Fatalf("unexpected accounts: %+v", accs)
	}
	if accs[0].Balance.Decimal().String() != "200.50" {
		t.Fatalf("unexpected balance %s", accs[0].Balance)
	}
	if len(got.Transactions["alice"]) != 1 || !got.Transactions["alice"][0].Timestamp.Equal(snap.Transactions["alice"][0].Timestamp) {
		t.Fatalf("unexpected transactions: %+v", got.Transactions)
	}

	// A second save replaces rather than appends.
	delete(snap.Users, "alice")
	snap.Accounts = map[string][]ledger.Account{}
	snap.Transactions = map[string][]ledger.Transaction{}
	if err := s.SaveAll(ctx, snap); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err = s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.Users) != 0 || len(got.Accounts) != 0 {
		t.Fatalf("expected empty state, got %+v", got)
	}
}
