package ledger_test

import (
	"testing"

	"custody-go/internal/config"
	"custody-go/internal/ledger"
	"custody-go/internal/testutil"
)

func TestNewLedgerFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LedgerConfig
		want    string
		wantErr bool
	}{
		{name: "memory ledger", cfg: config.LedgerConfig{Type: "memory"}, want: "*ledger.MemoryLedger"},
		{name: "sqlite ledger", cfg: config.LedgerConfig{Type: "sqlite", DataDir: t.TempDir()}, want: "*ledger.SQLiteLedger"},
		{name: "sqlite ledger without data dir", cfg: config.LedgerConfig{Type: "sqlite"}, wantErr: true},
		{name: "remote ledger", cfg: config.LedgerConfig{Type: "remote", URL: "http://127.0.0.1:1"}, want: "*ledger.RemoteLedger"},
		{name: "remote ledger without url", cfg: config.LedgerConfig{Type: "remote"}, wantErr: true},
		{name: "unknown ledger type", cfg: config.LedgerConfig{Type: "paper"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.NewLedgerFromConfig(tt.cfg, testutil.FixedClock(), testutil.NewStubIDGenerator())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLedgerFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer got.Close()
			switch tt.want {
			case "*ledger.MemoryLedger":
				if _, ok := got.(*ledger.MemoryLedger); !ok {
					t.Errorf("NewLedgerFromConfig() = %T, want %s", got, tt.want)
				}
			case "*ledger.SQLiteLedger":
				if _, ok := got.(*ledger.SQLiteLedger); !ok {
					t.Errorf("NewLedgerFromConfig() = %T, want %s", got, tt.want)
				}
			case "*ledger.RemoteLedger":
				if _, ok := got.(*ledger.RemoteLedger); !ok {
					t.Errorf("NewLedgerFromConfig() = %T, want %s", got, tt.want)
				}
			}
		})
	}
}
