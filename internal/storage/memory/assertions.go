package memory

import (
	"github.com/tinoosan/bankledger/internal/storage"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ storage.Sink         = (*Store)(nil)
	_ storage.ReadyChecker = (*Store)(nil)
)
