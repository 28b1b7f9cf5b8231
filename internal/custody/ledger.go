package custody

import (
	"context"
	"io"

	"custody-go/internal/model"
)

// Ledger is the remote, authoritative store of document state.
// The same interface is implemented by the in-process simulator, the sqlite
// local ledger and the gateway client, so the Client never knows which one
// backs it.
//
// Reads may lag behind confirmed writes. Implementations must be safe for
// concurrent use.
type Ledger interface {
	// NextNonce returns the next sequence number the ledger will accept from address.
	NextNonce(ctx context.Context, address string) (uint64, error)

	// Submit hands a signed envelope to the ledger and returns its transaction id.
	// A nonce below the expected one fails with ErrStaleNonce. Envelopes with a bad
	// signature or from an unauthorized signer fail with ErrLedgerRejected.
	Submit(ctx context.Context, env *model.Envelope) (string, error)

	// Receipt returns the final outcome of a transaction, or nil while it is
	// still pending.
	Receipt(ctx context.Context, txID string) (*model.Receipt, error)

	// Document returns the current state of a document or ErrNotFound.
	Document(ctx context.Context, key model.DocumentKey) (*model.Document, error)

	// History returns a document's records oldest first, or ErrNotFound.
	History(ctx context.Context, key model.DocumentKey) ([]model.ActionRecord, error)

	// UserDocuments returns every document owned by owner.
	UserDocuments(ctx context.Context, owner uint64) ([]model.Document, error)

	// Close releases the backend's resources.
	Close() error
}

// Signer authorizes ledger writes for one identity.
type Signer interface {
	// Address identifies the signer on the ledger.
	Address() string
	// Sign signs an envelope digest.
	Sign(digest []byte) ([]byte, error)
}

// ContentStore stores document bytes addressed by their content reference.
// The core only attaches the reference to create and update operations.
type ContentStore interface {
	// PutContent stores content identified by ref. Storing the same ref twice is safe.
	// size is the number of bytes that will be read from r.
	PutContent(ctx context.Context, ref model.ContentRef, r io.Reader, size int64) error

	// GetContent retrieves content by ref and writes it to w.
	GetContent(ctx context.Context, ref model.ContentRef, w io.Writer) error

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup() error
}
