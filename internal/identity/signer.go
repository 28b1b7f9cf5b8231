package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"custody-go/internal/custody"
)

// ErrBadSignature is returned by VerifySignature when a signature does not verify.
var ErrBadSignature = errors.New("signature does not verify")

// KeySigner signs ledger envelopes with an ed25519 key.
// Its address is the hex-encoded public key.
type KeySigner struct {
	key     ed25519.PrivateKey
	address string
}

var _ custody.Signer = (*KeySigner)(nil)

// NewKeySigner wraps an existing private key.
func NewKeySigner(key ed25519.PrivateKey) *KeySigner {
	pub := key.Public().(ed25519.PublicKey)
	return &KeySigner{key: key, address: hex.EncodeToString(pub)}
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return NewKeySigner(key), nil
}

func (s *KeySigner) Address() string { return s.address }

func (s *KeySigner) Sign(digest []byte) ([]byte, error) {
	return ed25519.Sign(s.key, digest), nil
}

// Seed returns the 32-byte seed the key is derived from.
func (s *KeySigner) Seed() []byte { return s.key.Seed() }

// VerifySignature checks that sig is address's signature over digest.
func VerifySignature(address string, digest, sig []byte) error {
	pub, err := hex.DecodeString(address)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("malformed address %q", address)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
		return ErrBadSignature
	}
	return nil
}
