package database

import (
	"fmt"
	"os"
	"path/filepath"

	"custody-go/internal/config"
)

// FileName is the name of the ledger database inside the ledger data_dir.
const FileName = "ledger.db"

// NewDBFromConfig opens the ledger database for a sqlite ledger config.
func NewDBFromConfig(cfg config.LedgerConfig) (*DB, error) {
	if cfg.Type != "sqlite" {
		return nil, fmt.Errorf("ledger type %q has no database", cfg.Type)
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir required for sqlite ledger")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating ledger data dir: %w", err)
	}
	return Open(filepath.Join(cfg.DataDir, FileName))
}
