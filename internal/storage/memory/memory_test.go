package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/tinoosan/bankledger/internal/ledger"
)

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := New()
	snap := ledger.NewSnapshot()
	snap.Users["alice"] = ledger.User{Login: "alice", PasswordHash: "h"}
	if err := s.SaveAll(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	// mutate after save; stored copy must not change
	snap.Users["bob"] = ledger.User{Login: "bob"}
	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Users) != 1 {
		t.Fatalf("stored snapshot aliased caller state: %+v", got.Users)
	}
	if s.Saves() != 1 {
		t.Fatalf("expected 1 save, got %d", s.Saves())
	}
}

func TestStore_InjectedFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.FailSaves(true)
	if err := s.SaveAll(ctx, ledger.NewSnapshot()); !errors.Is(err, ErrInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	s.FailSaves(false)
	if err := s.SaveAll(ctx, ledger.NewSnapshot()); err != nil {
		t.Fatalf("save after recovery: %v", err)
	}
	if s.Saves() != 1 {
		t.Fatalf("failed saves must not count")
	}
}
