package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custody-go/internal/codec"
	"custody-go/internal/model"
)

// ClientOptions tunes confirmation polling and read-after-write retries.
type ClientOptions struct {
	// PollBase is the first delay between polls; it doubles up to PollMax.
	PollBase time.Duration
	PollMax  time.Duration
	// VisibilityTimeout bounds how long a confirmed record may stay invisible
	// to reads before AwaitRecord gives up with ErrNotYetVisible.
	VisibilityTimeout time.Duration
}

// DefaultClientOptions returns the options used when a field is left zero.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		PollBase:          50 * time.Millisecond,
		PollMax:           time.Second,
		VisibilityTimeout: 5 * time.Second,
	}
}

// Client builds, signs, sequences and submits operations to a Ledger and
// reconciles reads after a confirmed write.
type Client struct {
	ledger Ledger
	signer Signer
	clock  Clock
	logger Logger
	opts   ClientOptions
	seq    *sequencer
}

// NewClient creates a Client that signs with signer by default.
func NewClient(ledger Ledger, signer Signer, clock Clock, logger Logger, opts ClientOptions) *Client {
	def := DefaultClientOptions()
	if opts.PollBase <= 0 {
		opts.PollBase = def.PollBase
	}
	if opts.PollMax < opts.PollBase {
		opts.PollMax = max(def.PollMax, opts.PollBase)
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = def.VisibilityTimeout
	}
	return &Client{
		ledger: ledger,
		signer: signer,
		clock:  clock,
		logger: logger,
		opts:   opts,
		seq:    newSequencer(),
	}
}

// Submit submits ops with the default signer. See SubmitAs.
func (c *Client) Submit(ctx context.Context, ops ...model.Operation) ([]*model.Receipt, error) {
	return c.SubmitAs(ctx, c.signer, ops...)
}

// SubmitAs encodes ops, submits them back to back under consecutive nonces of
// signer, and waits for every confirmation. All payloads are encoded before
// anything is sent, so a field width violation never reaches the ledger.
//
// Reverted operations surface as ErrAlreadyExists, ErrNotFound or
// ErrLedgerRejected and are never retried. If ctx ends before a confirmation
// arrives the result is ErrPending carrying the transaction id. A submit that
// fails without a ledger verdict (transport error, deadline) is also ErrPending:
// the write may have landed and must be re-read, never assumed lost.
// When a later envelope of a batch fails, the error's TxID is the first
// envelope already submitted.
func (c *Client) SubmitAs(ctx context.Context, signer Signer, ops ...model.Operation) ([]*model.Receipt, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	payloads := make([][]byte, len(ops))
	for i, op := range ops {
		p, err := codec.EncodeOperation(op)
		if err != nil {
			return nil, classify(fmt.Errorf("encoding %s operation: %w", op.Code(), err))
		}
		payloads[i] = p
	}

	txIDs, err := c.send(ctx, signer, payloads)
	if err != nil {
		return nil, err
	}

	receipts := make([]*model.Receipt, len(txIDs))
	for i, txID := range txIDs {
		r, err := c.awaitReceipt(ctx, txID)
		if err != nil {
			return nil, err
		}
		if err := receiptError(r); err != nil {
			return nil, err
		}
		c.logger.Debug("transaction confirmed", "tx", txID, "op", ops[i].Code().String(), "index", r.Index)
		receipts[i] = r
	}
	return receipts, nil
}

// send reserves nonces and submits every payload while holding the signer's
// sequence lock. The lock is released before any confirmation wait.
func (c *Client) send(ctx context.Context, signer Signer, payloads [][]byte) ([]string, error) {
	seq := c.seq.acquire(signer.Address())
	defer seq.release()

	if !seq.synced {
		if err := c.resync(ctx, seq); err != nil {
			return nil, err
		}
	}

	txIDs := make([]string, 0, len(payloads))
	for _, p := range payloads {
		txID, err := c.sendOne(ctx, signer, seq, p)
		if err != nil {
			if len(txIDs) > 0 {
				c.logger.Error("batch partially submitted", "submitted", txIDs, "error", err)
				return nil, &Error{Kind: KindOf(err), Reason: fmt.Sprintf("after submitting %v", txIDs), TxID: txIDs[0], Err: err}
			}
			return nil, err
		}
		txIDs = append(txIDs, txID)
	}
	return txIDs, nil
}

func (c *Client) sendOne(ctx context.Context, signer Signer, seq *identitySequence, payload []byte) (string, error) {
	for attempt := 0; ; attempt++ {
		digest := codec.EnvelopeDigest(seq.address, seq.next, payload)
		sig, err := signer.Sign(digest[:])
		if err != nil {
			return "", fmt.Errorf("signing envelope: %w", err)
		}
		env := &model.Envelope{
			From:      seq.address,
			Nonce:     seq.next,
			Payload:   payload,
			Signature: sig,
		}

		txID, err := c.ledger.Submit(ctx, env)
		switch {
		case err == nil:
			seq.next++
			return txID, nil
		case errors.Is(err, ErrStaleNonce) && attempt == 0:
			stale := seq.next
			if err := c.resync(ctx, seq); err != nil {
				return "", err
			}
			c.logger.Warn("nonce resynchronized", "address", seq.address, "stale", stale, "next", seq.next)
		default:
			var e *Error
			if !errors.As(err, &e) {
				// The envelope may or may not have landed; only the ledger can tell.
				seq.synced = false
				return "", &Error{
					Kind:   KindPending,
					Reason: fmt.Sprintf("submit outcome unknown for envelope %s nonce %d (digest %s)", seq.address, env.Nonce, digest),
					Err:    err,
				}
			}
			return "", err
		}
	}
}

func (c *Client) resync(ctx context.Context, seq *identitySequence) error {
	n, err := c.ledger.NextNonce(ctx, seq.address)
	if err != nil {
		seq.synced = false
		return &Error{Kind: KindLedgerRejected, Reason: "reading nonce", Err: err}
	}
	seq.next = n
	seq.synced = true
	return nil
}

// awaitReceipt polls for the transaction's receipt until it is final or ctx ends.
func (c *Client) awaitReceipt(ctx context.Context, txID string) (*model.Receipt, error) {
	b := newBackoff(c.opts.PollBase, c.opts.PollMax)
	for {
		r, err := c.ledger.Receipt(ctx, txID)
		if err != nil {
			c.logger.Debug("receipt poll failed", "tx", txID, "error", err)
		} else if r != nil {
			return r, nil
		}
		if err := c.wait(ctx, b.next()); err != nil {
			return nil, &Error{Kind: KindPending, Reason: "awaiting confirmation", TxID: txID, Err: err}
		}
	}
}

// receiptError maps a reverted receipt onto the error taxonomy.
func receiptError(r *model.Receipt) error {
	if r.Status == model.ReceiptConfirmed {
		return nil
	}
	kind := KindLedgerRejected
	switch r.Code {
	case model.RevertAlreadyExists:
		kind = KindAlreadyExists
	case model.RevertNotFound:
		kind = KindNotFound
	}
	return &Error{Kind: kind, Reason: r.Reason, TxID: r.TxID}
}

// AwaitRecord reads the document history until the record a confirmed receipt
// points at is visible. It gives up with ErrNotYetVisible after the visibility
// timeout and with ErrPending when ctx ends first.
func (c *Client) AwaitRecord(ctx context.Context, r *model.Receipt) (*model.ActionRecord, error) {
	deadline := c.clock.Now().Add(c.opts.VisibilityTimeout)
	b := newBackoff(c.opts.PollBase, c.opts.PollMax)
	for {
		history, err := c.ledger.History(ctx, r.Key)
		switch {
		case err == nil:
			if r.Index < len(history) {
				rec := history[r.Index]
				if rec.BlockHash != r.BlockHash {
					return nil, &Error{
						Kind:   KindIntegrity,
						Reason: fmt.Sprintf("record %d of %s has hash %s, receipt reported %s", r.Index, r.Key, rec.BlockHash, r.BlockHash),
						TxID:   r.TxID,
					}
				}
				return &rec, nil
			}
		case errors.Is(err, ErrNotFound):
		default:
			c.logger.Debug("history read failed", "key", r.Key.String(), "error", err)
		}

		now := c.clock.Now()
		if !now.Before(deadline) {
			return nil, &Error{
				Kind:   KindNotYetVisible,
				Reason: fmt.Sprintf("record %d of %s", r.Index, r.Key),
				TxID:   r.TxID,
			}
		}
		d := b.next()
		if remaining := deadline.Sub(now); d > remaining {
			d = remaining
		}
		if err := c.wait(ctx, d); err != nil {
			return nil, &Error{Kind: KindPending, Reason: "awaiting visibility", TxID: r.TxID, Err: err}
		}
	}
}

// Document returns the current state of a document.
func (c *Client) Document(ctx context.Context, key model.DocumentKey) (*model.Document, error) {
	doc, err := c.ledger.Document(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", key, err)
	}
	return doc, nil
}

// History returns a document's records oldest first.
func (c *Client) History(ctx context.Context, key model.DocumentKey) ([]model.ActionRecord, error) {
	history, err := c.ledger.History(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading history of %s: %w", key, err)
	}
	return history, nil
}

// UserDocuments returns every document owned by owner.
func (c *Client) UserDocuments(ctx context.Context, owner uint64) ([]model.Document, error) {
	docs, err := c.ledger.UserDocuments(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing documents of %d: %w", owner, err)
	}
	return docs, nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

// backoff yields exponentially growing delays capped at max.
type backoff struct {
	cur time.Duration
	max time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{cur: base, max: max}
}

func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}
