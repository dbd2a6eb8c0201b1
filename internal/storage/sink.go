package storage

import (
	"context"

	"github.com/tinoosan/bankledger/internal/ledger"
)

// Sink is the persistence contract the ledger snapshots into. SaveAll must be
// idempotent and must never leave a partially applied snapshot behind.
type Sink interface {
	LoadAll(ctx context.Context) (ledger.Snapshot, error)
	SaveAll(ctx context.Context, snap ledger.Snapshot) error
}

// ReadyChecker is optionally implemented by sinks to report readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}
