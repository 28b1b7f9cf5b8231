package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"custody-go/internal/config"
)

func newTestKeyFile(t *testing.T, encrypted bool) *KeyFile {
	t.Helper()
	f := NewKeyFile(config.IdentityConfig{
		KeyPath:   filepath.Join(t.TempDir(), "keys", "custody.key"),
		Encrypted: encrypted,
	})
	f.workFactor = 10
	return f
}

func TestKeyFile_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	f := newTestKeyFile(t, false)
	if f.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestKeyFile_SetupLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		encrypted  bool
		passphrase string
	}{
		{name: "plaintext", encrypted: false},
		{name: "encrypted", encrypted: true, passphrase: "test-passphrase"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newTestKeyFile(t, tt.encrypted)

			created, err := f.Setup(tt.passphrase)
			if err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			if !f.IsConfigured() {
				t.Error("IsConfigured() = false after Setup, want true")
			}

			addr, err := f.Address()
			if err != nil {
				t.Fatalf("Address() error = %v", err)
			}
			if addr != created.Address() {
				t.Errorf("Address() = %q, want %q", addr, created.Address())
			}

			loaded, err := f.Load(tt.passphrase)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded.Address() != created.Address() {
				t.Errorf("loaded address = %q, want %q", loaded.Address(), created.Address())
			}

			data, err := os.ReadFile(f.keyPath)
			if err != nil {
				t.Fatalf("reading key file: %v", err)
			}
			if got := strings.Contains(string(data), seedPrefix); got == tt.encrypted {
				t.Errorf("seed visible in key file = %v, encrypted = %v", got, tt.encrypted)
			}
		})
	}
}

func TestKeyFile_LoadWrongPassphrase(t *testing.T) {
	t.Parallel()
	f := newTestKeyFile(t, true)
	if _, err := f.Setup("correct-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := f.Load("wrong-passphrase"); err == nil {
		t.Error("Load() with wrong passphrase should return error")
	}
}

func TestKeyFile_SetupTwice(t *testing.T) {
	t.Parallel()
	f := newTestKeyFile(t, false)
	if _, err := f.Setup(""); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := f.Setup(""); err == nil {
		t.Error("second Setup() should refuse to overwrite the key")
	}
}

func TestKeyFile_EncryptedRequiresPassphrase(t *testing.T) {
	t.Parallel()
	f := newTestKeyFile(t, true)
	if _, err := f.Setup(""); err == nil {
		t.Error("Setup() with empty passphrase should fail for an encrypted identity")
	}
	if f.IsConfigured() {
		t.Error("IsConfigured() = true after failed Setup")
	}
}

func TestKeyFile_LoadBeforeSetup(t *testing.T) {
	t.Parallel()
	f := newTestKeyFile(t, false)
	if _, err := f.Load(""); err == nil {
		t.Error("Load() before Setup should return error")
	}
}
