package ledger

import (
	"fmt"

	"custody-go/internal/config"
	"custody-go/internal/custody"
	"custody-go/internal/database"
)

// NewLedgerFromConfig creates a Ledger based on the ledger config type.
// clock and ids drive the local backends' block timestamps and transaction ids.
func NewLedgerFromConfig(cfg config.LedgerConfig, clock custody.Clock, ids custody.IDGenerator) (custody.Ledger, error) {
	contract := &Contract{Writer: cfg.Writer, Clock: clock, IDs: ids}

	switch cfg.Type {
	case "memory":
		return NewMemoryLedger(contract, MemoryOptions{}), nil
	case "sqlite":
		db, err := database.NewDBFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("opening ledger database: %w", err)
		}
		return NewSQLiteLedger(db, contract), nil
	case "remote":
		if cfg.URL == "" {
			return nil, fmt.Errorf("url required for remote ledger")
		}
		return NewRemoteLedger(cfg.URL, nil), nil
	default:
		return nil, fmt.Errorf("unknown ledger type: %q", cfg.Type)
	}
}
