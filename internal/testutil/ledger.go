package testutil

import (
	"path/filepath"
	"testing"

	"custody-go/internal/custody"
	"custody-go/internal/database"
	"custody-go/internal/ledger"
)

// NewTestContract creates a contract that accepts any signer, driven by clock
// and sequential transaction ids.
func NewTestContract(clock custody.Clock) *ledger.Contract {
	return &ledger.Contract{Clock: clock, IDs: NewStubIDGenerator()}
}

// NewTestLedger creates an in-memory ledger with the given asynchrony.
func NewTestLedger(t *testing.T, clock custody.Clock, opts ledger.MemoryOptions) *ledger.MemoryLedger {
	t.Helper()
	l := ledger.NewMemoryLedger(NewTestContract(clock), opts)
	t.Cleanup(func() { l.Close() })
	return l
}

// NewTestSQLiteLedger creates a sqlite ledger in a temporary directory.
// The ledger is closed when the test completes.
func NewTestSQLiteLedger(t *testing.T, clock custody.Clock) *ledger.SQLiteLedger {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), database.FileName))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	l := ledger.NewSQLiteLedger(db, NewTestContract(clock))
	t.Cleanup(func() { l.Close() })
	return l
}
