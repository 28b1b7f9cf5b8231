package testutil

import (
	"testing"

	"custody-go/internal/codec"
	"custody-go/internal/identity"
	"custody-go/internal/model"
)

// NewTestSigner returns a deterministic signer for label.
func NewTestSigner(label string) *identity.KeySigner {
	return identity.SeededSigner(label)
}

// SignEnvelope encodes op and signs it under nonce.
func SignEnvelope(t *testing.T, signer *identity.KeySigner, nonce uint64, op model.Operation) *model.Envelope {
	t.Helper()
	payload, err := codec.EncodeOperation(op)
	if err != nil {
		t.Fatalf("EncodeOperation() error = %v", err)
	}
	digest := codec.EnvelopeDigest(signer.Address(), nonce, payload)
	sig, err := signer.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return &model.Envelope{From: signer.Address(), Nonce: nonce, Payload: payload, Signature: sig}
}
