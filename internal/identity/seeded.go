package identity

import (
	"crypto/ed25519"

	"github.com/zeebo/blake3"
)

// SeededSigner returns a deterministic signer derived from label.
// Two calls with the same label produce the same address. Use in tests only.
func SeededSigner(label string) *KeySigner {
	seed := blake3.Sum256([]byte("custody test identity " + label))
	return NewKeySigner(ed25519.NewKeyFromSeed(seed[:]))
}
