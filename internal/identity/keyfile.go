package identity

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"custody-go/internal/config"
)

const seedPrefix = "CUSTODY-ED25519-SEED "

// KeyFile stores a signing key on disk. The seed file is written in plaintext
// or, when encrypted, wrapped with age's scrypt passphrase encryption. The
// address is kept next to it in plaintext (<key_path>.pub) so it can be shown
// without unlocking the key.
type KeyFile struct {
	keyPath   string
	encrypted bool

	// scrypt work factor override; 0 uses age's default.
	workFactor int
}

// NewKeyFile creates a KeyFile from configuration.
func NewKeyFile(cfg config.IdentityConfig) *KeyFile {
	return &KeyFile{keyPath: cfg.KeyPath, encrypted: cfg.Encrypted}
}

// Encrypted reports whether Load needs a passphrase.
func (f *KeyFile) Encrypted() bool { return f.encrypted }

func (f *KeyFile) pubPath() string { return f.keyPath + ".pub" }

// Setup generates a new key, writes it and returns its signer.
// An existing key is never overwritten.
func (f *KeyFile) Setup(passphrase string) (*KeySigner, error) {
	if f.IsConfigured() {
		return nil, fmt.Errorf("identity key already exists at %s", f.keyPath)
	}
	if f.encrypted && passphrase == "" {
		return nil, fmt.Errorf("passphrase required for an encrypted identity")
	}

	signer, err := GenerateKeySigner()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(f.keyPath), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(f.pubPath(), []byte(signer.Address()+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing address: %w", err)
	}

	keyFile, err := os.OpenFile(f.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating key file: %w", err)
	}
	defer keyFile.Close()

	var w io.WriteCloser = nopWriteCloser{keyFile}
	if f.encrypted {
		recipient, err := age.NewScryptRecipient(passphrase)
		if err != nil {
			return nil, fmt.Errorf("creating scrypt recipient: %w", err)
		}
		if f.workFactor > 0 {
			recipient.SetWorkFactor(f.workFactor)
		}
		w, err = age.Encrypt(keyFile, recipient)
		if err != nil {
			return nil, fmt.Errorf("creating encrypted writer: %w", err)
		}
	}

	if _, err := io.WriteString(w, seedPrefix+hex.EncodeToString(signer.Seed())+"\n"); err != nil {
		return nil, fmt.Errorf("writing key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing key: %w", err)
	}
	return signer, nil
}

// Load reads the key back. passphrase is ignored for plaintext keys.
func (f *KeyFile) Load(passphrase string) (*KeySigner, error) {
	data, err := os.ReadFile(f.keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var r io.Reader = bytes.NewReader(data)
	if f.encrypted {
		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return nil, fmt.Errorf("creating scrypt identity: %w", err)
		}
		r, err = age.Decrypt(r, identity)
		if err != nil {
			return nil, fmt.Errorf("decrypting key: %w", err)
		}
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	seedHex, ok := strings.CutPrefix(strings.TrimSpace(line), seedPrefix)
	if !ok {
		return nil, fmt.Errorf("key file %s is not a custody key", f.keyPath)
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key file %s holds a malformed seed", f.keyPath)
	}

	signer := NewKeySigner(ed25519.NewKeyFromSeed(seed))
	if addr, err := f.Address(); err == nil && addr != signer.Address() {
		return nil, fmt.Errorf("key does not match address %s", addr)
	}
	return signer, nil
}

// Address reads the stored address without unlocking the key.
func (f *KeyFile) Address() (string, error) {
	data, err := os.ReadFile(f.pubPath())
	if err != nil {
		return "", fmt.Errorf("reading address: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// IsConfigured returns true if the key file exists.
func (f *KeyFile) IsConfigured() bool {
	_, err := os.Stat(f.keyPath)
	return err == nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
