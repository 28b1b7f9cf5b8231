package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"custody-go/internal/custody"
	"custody-go/internal/model"
)

// MemoryOptions reproduces the asynchrony of a remote ledger in-process.
type MemoryOptions struct {
	// ConfirmDelay hides a transaction's receipt until it has elapsed.
	ConfirmDelay time.Duration
	// VisibilityLag delays when committed writes become visible to reads.
	VisibilityLag time.Duration
}

// MemoryLedger is an in-process ledger. Committed state and read-visible
// state are kept apart: writes land in committed state immediately and are
// replayed onto the visible state once VisibilityLag has passed.
type MemoryLedger struct {
	mu       sync.Mutex
	contract *Contract
	clock    custody.Clock
	opts     MemoryOptions

	nonces    map[string]uint64
	committed *memState
	visible   *memState
	pending   []pendingChange
	receipts  map[string]memReceipt
}

var _ custody.Ledger = (*MemoryLedger)(nil)

type memReceipt struct {
	receipt   model.Receipt
	visibleAt time.Time
}

type pendingChange struct {
	visibleAt time.Time
	apply     func(*memState)
}

type memDoc struct {
	seq     uint64
	doc     model.Document
	records []model.ActionRecord
}

type memState struct {
	seq  uint64
	docs map[model.DocumentKey]*memDoc
}

func newMemState() *memState {
	return &memState{docs: make(map[model.DocumentKey]*memDoc)}
}

func (s *memState) create(doc model.Document) {
	s.seq++
	s.docs[doc.Key()] = &memDoc{seq: s.seq, doc: doc}
}

func (s *memState) rename(from, to model.DocumentKey) {
	d := s.docs[from]
	delete(s.docs, from)
	d.doc.Title = to.Title
	s.docs[to] = d
}

func (s *memState) appendRecord(key model.DocumentKey, rec model.ActionRecord) {
	d := s.docs[key]
	d.records = append(d.records, rec)
	d.doc = *model.DocumentFromRecord(key, &rec)
}

// NewMemoryLedger creates an empty in-process ledger.
func NewMemoryLedger(contract *Contract, opts MemoryOptions) *MemoryLedger {
	return &MemoryLedger{
		contract:  contract,
		clock:     contract.Clock,
		opts:      opts,
		nonces:    make(map[string]uint64),
		committed: newMemState(),
		visible:   newMemState(),
		receipts:  make(map[string]memReceipt),
	}
}

func (l *MemoryLedger) NextNonce(ctx context.Context, address string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[address], nil
}

func (l *MemoryLedger) Submit(ctx context.Context, env *model.Envelope) (string, error) {
	if err := l.contract.authorize(env); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &memTx{l: l, now: l.clock.Now()}
	r, err := l.contract.apply(tx, env)
	if err != nil {
		return "", err
	}
	return r.TxID, nil
}

func (l *MemoryLedger) Receipt(ctx context.Context, txID string) (*model.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mr, ok := l.receipts[txID]
	if !ok {
		return nil, custody.Errorf(custody.KindNotFound, "transaction %s", txID)
	}
	if l.clock.Now().Before(mr.visibleAt) {
		return nil, nil
	}
	r := mr.receipt
	return &r, nil
}

func (l *MemoryLedger) Document(ctx context.Context, key model.DocumentKey) (*model.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.catchUp()

	d, ok := l.visible.docs[key]
	if !ok {
		return nil, custody.Errorf(custody.KindNotFound, "document %s", key)
	}
	doc := d.doc
	return &doc, nil
}

func (l *MemoryLedger) History(ctx context.Context, key model.DocumentKey) ([]model.ActionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.catchUp()

	d, ok := l.visible.docs[key]
	if !ok {
		return nil, custody.Errorf(custody.KindNotFound, "document %s", key)
	}
	return append([]model.ActionRecord(nil), d.records...), nil
}

func (l *MemoryLedger) UserDocuments(ctx context.Context, owner uint64) ([]model.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.catchUp()

	var owned []*memDoc
	for key, d := range l.visible.docs {
		if key.Owner == owner {
			owned = append(owned, d)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].seq < owned[j].seq })

	docs := make([]model.Document, len(owned))
	for i, d := range owned {
		docs[i] = d.doc
	}
	return docs, nil
}

func (l *MemoryLedger) Close() error { return nil }

// catchUp replays every committed change whose lag has passed onto the visible state.
func (l *MemoryLedger) catchUp() {
	now := l.clock.Now()
	n := 0
	for n < len(l.pending) && !now.Before(l.pending[n].visibleAt) {
		l.pending[n].apply(l.visible)
		n++
	}
	l.pending = l.pending[n:]
}

// memTx applies contract mutations to committed state and queues them for
// the visible state. The contract validates before mutating, so a rejected
// envelope leaves no partial change behind.
type memTx struct {
	l   *MemoryLedger
	now time.Time
}

func (t *memTx) queue(apply func(*memState)) {
	t.l.pending = append(t.l.pending, pendingChange{
		visibleAt: t.now.Add(t.l.opts.VisibilityLag),
		apply:     apply,
	})
}

func (t *memTx) nextNonce(address string) (uint64, error) {
	return t.l.nonces[address], nil
}

func (t *memTx) setNonce(address string, next uint64) error {
	t.l.nonces[address] = next
	return nil
}

func (t *memTx) document(key model.DocumentKey) (*model.Document, error) {
	d, ok := t.l.committed.docs[key]
	if !ok {
		return nil, nil
	}
	doc := d.doc
	return &doc, nil
}

func (t *memTx) lastHash(key model.DocumentKey) (model.Hash, int, error) {
	d, ok := t.l.committed.docs[key]
	if !ok || len(d.records) == 0 {
		return model.ZeroHash, 0, nil
	}
	return d.records[len(d.records)-1].BlockHash, len(d.records), nil
}

func (t *memTx) create(doc *model.Document) error {
	d := *doc
	t.l.committed.create(d)
	t.queue(func(s *memState) { s.create(d) })
	return nil
}

func (t *memTx) rename(from, to model.DocumentKey) error {
	t.l.committed.rename(from, to)
	t.queue(func(s *memState) { s.rename(from, to) })
	return nil
}

func (t *memTx) appendRecord(key model.DocumentKey, rec *model.ActionRecord) error {
	r := *rec
	t.l.committed.appendRecord(key, r)
	t.queue(func(s *memState) { s.appendRecord(key, r) })
	return nil
}

func (t *memTx) putReceipt(r *model.Receipt) error {
	t.l.receipts[r.TxID] = memReceipt{
		receipt:   *r,
		visibleAt: t.now.Add(t.l.opts.ConfirmDelay),
	}
	return nil
}
