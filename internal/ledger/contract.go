package ledger

import (
	"fmt"

	"custody-go/internal/codec"
	"custody-go/internal/custody"
	"custody-go/internal/identity"
	"custody-go/internal/model"
)

// state is the view of ledger storage the contract runs against while one
// envelope is applied. Backends apply an envelope atomically.
type state interface {
	nextNonce(address string) (uint64, error)
	setNonce(address string, next uint64) error
	// document returns nil when no document exists under key.
	document(key model.DocumentKey) (*model.Document, error)
	// lastHash returns the block hash of the latest record and the record count.
	lastHash(key model.DocumentKey) (model.Hash, int, error)
	create(doc *model.Document) error
	rename(from, to model.DocumentKey) error
	// appendRecord appends rec under key and makes it the document's current state.
	appendRecord(key model.DocumentKey, rec *model.ActionRecord) error
	putReceipt(r *model.Receipt) error
}

// Contract holds the rules every backend enforces, mirroring the on-chain
// document contract: single-writer authorization, strict per-sender nonces
// and the document state machine. Failed preconditions consume the nonce and
// produce a reverted receipt, as a reverted transaction would.
type Contract struct {
	// Writer is the only address allowed to submit. Empty accepts any signer.
	Writer string
	Clock  custody.Clock
	IDs    custody.IDGenerator
}

// authorize checks the envelope's signature and sender. It needs no state.
func (c *Contract) authorize(env *model.Envelope) error {
	if c.Writer != "" && env.From != c.Writer {
		return custody.Errorf(custody.KindLedgerRejected, "sender %s is not the authorized writer", env.From)
	}
	digest := codec.EnvelopeDigest(env.From, env.Nonce, env.Payload)
	if err := identity.VerifySignature(env.From, digest[:], env.Signature); err != nil {
		return &custody.Error{Kind: custody.KindLedgerRejected, Reason: "invalid signature", Err: err}
	}
	return nil
}

// apply runs an authorized envelope against st and records its receipt.
// A returned error means the envelope was not accepted and st must be rolled back.
func (c *Contract) apply(st state, env *model.Envelope) (*model.Receipt, error) {
	expected, err := st.nextNonce(env.From)
	if err != nil {
		return nil, err
	}
	switch {
	case env.Nonce < expected:
		return nil, fmt.Errorf("nonce %d, next is %d: %w", env.Nonce, expected, custody.ErrStaleNonce)
	case env.Nonce > expected:
		return nil, custody.Errorf(custody.KindLedgerRejected, "nonce gap: got %d, next is %d", env.Nonce, expected)
	}
	if err := st.setNonce(env.From, expected+1); err != nil {
		return nil, err
	}

	now := uint64(c.Clock.Now().Unix())
	r := &model.Receipt{TxID: c.IDs.New(), Timestamp: now}

	op, err := codec.DecodeOperation(env.Payload)
	if err != nil {
		revert(r, model.RevertInvalid, err.Error())
	} else {
		r.Key = op.Target()
		if err := c.run(st, op, now, r); err != nil {
			return nil, err
		}
	}

	if err := st.putReceipt(r); err != nil {
		return nil, err
	}
	return r, nil
}

func revert(r *model.Receipt, code, reason string) {
	r.Status = model.ReceiptReverted
	r.Code = code
	r.Reason = reason
}

// run executes a decoded operation. Precondition failures revert r; only
// storage failures are returned.
func (c *Contract) run(st state, op model.Operation, now uint64, r *model.Receipt) error {
	rec := &model.ActionRecord{Timestamp: now, TxID: r.TxID}
	var key model.DocumentKey

	switch o := op.(type) {
	case model.CreateOp:
		key = model.DocumentKey{Title: o.Title, Owner: o.Owner}
		if o.Title == "" {
			revert(r, model.RevertInvalid, "empty title")
			return nil
		}
		existing, err := st.document(key)
		if err != nil {
			return err
		}
		if existing != nil {
			revert(r, model.RevertAlreadyExists, "document already exists")
			return nil
		}
		rec.Action = model.ActionCreated
		rec.LastAccessDate = o.LastAccessDate
		rec.LastAccessedBy = model.OwnerActor(o.Owner)
		rec.ContentRef = o.ContentRef
		if err := st.create(model.DocumentFromRecord(key, rec)); err != nil {
			return err
		}

	case model.UpdateOp:
		from := model.DocumentKey{Title: o.OldTitle, Owner: o.Owner}
		key = model.DocumentKey{Title: o.NewTitle, Owner: o.Owner}
		if o.NewTitle == "" || o.NewTitle == o.OldTitle {
			revert(r, model.RevertInvalid, "new title must differ from the current title")
			return nil
		}
		existing, err := st.document(from)
		if err != nil {
			return err
		}
		if existing == nil {
			revert(r, model.RevertNotFound, "document does not exist")
			return nil
		}
		target, err := st.document(key)
		if err != nil {
			return err
		}
		if target != nil {
			revert(r, model.RevertAlreadyExists, "new title already in use")
			return nil
		}
		rec.Action = model.ActionUpdated
		rec.LastAccessDate = o.LastAccessDate
		rec.LastAccessedBy = model.OwnerActor(o.Owner)
		rec.ContentRef = o.ContentRef
		if err := st.rename(from, key); err != nil {
			return err
		}

	case model.ShareOp:
		key = model.DocumentKey{Title: o.Title, Owner: o.Owner}
		doc, err := st.document(key)
		if err != nil {
			return err
		}
		if doc == nil {
			revert(r, model.RevertNotFound, "document does not exist")
			return nil
		}
		rec.Action = o.Permission.SharedAction()
		rec.LastAccessDate = o.LastAccessDate
		rec.LastAccessedBy = model.OwnerActor(o.Owner)
		rec.SharedUser = o.Grantee
		rec.SharedEndDate = o.EndDate
		rec.ShareLevel = o.Level
		rec.ContentRef = doc.ContentRef

	case model.AccessOp:
		key = model.DocumentKey{Title: o.Title, Owner: o.Owner}
		doc, err := st.document(key)
		if err != nil {
			return err
		}
		if doc == nil {
			revert(r, model.RevertNotFound, "document does not exist")
			return nil
		}
		rec.Action = o.Kind.Action()
		rec.LastAccessDate = o.LastAccessDate
		rec.LastAccessedBy = o.Actor
		rec.ContentRef = doc.ContentRef

	default:
		revert(r, model.RevertInvalid, fmt.Sprintf("unsupported operation %T", op))
		return nil
	}

	prev, count, err := st.lastHash(key)
	if err != nil {
		return err
	}
	rec.Title = key.Title
	rec.Owner = key.Owner
	rec.PreviousHash = prev
	rec.BlockHash, err = codec.BlockHash(rec)
	if err != nil {
		return err
	}
	if err := st.appendRecord(key, rec); err != nil {
		return err
	}

	r.Status = model.ReceiptConfirmed
	r.Key = key
	r.Index = count
	r.BlockHash = rec.BlockHash
	return nil
}
