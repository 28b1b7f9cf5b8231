package ledger

import (
	"context"
	"fmt"

	"custody-go/internal/custody"
	"custody-go/internal/database"
	"custody-go/internal/model"
)

// SQLiteLedger is a persistent local ledger. Each envelope is applied in one
// database transaction, so reads always see fully committed state.
type SQLiteLedger struct {
	db       *database.DB
	contract *Contract
}

var _ custody.Ledger = (*SQLiteLedger)(nil)

// NewSQLiteLedger creates a ledger over an open, migrated database.
// The ledger takes ownership of db.
func NewSQLiteLedger(db *database.DB, contract *Contract) *SQLiteLedger {
	return &SQLiteLedger{db: db, contract: contract}
}

// DB returns the underlying database.
func (l *SQLiteLedger) DB() *database.DB { return l.db }

func (l *SQLiteLedger) NextNonce(ctx context.Context, address string) (uint64, error) {
	return l.db.Queries().GetNonce(ctx, address)
}

func (l *SQLiteLedger) Submit(ctx context.Context, env *model.Envelope) (string, error) {
	if err := l.contract.authorize(env); err != nil {
		return "", err
	}

	var txID string
	err := l.db.InTx(ctx, func(q *database.Queries) error {
		r, err := l.contract.apply(&sqlTx{ctx: ctx, q: q}, env)
		if err != nil {
			return err
		}
		txID = r.TxID
		return nil
	})
	if err != nil {
		return "", err
	}
	return txID, nil
}

func (l *SQLiteLedger) Receipt(ctx context.Context, txID string) (*model.Receipt, error) {
	row, err := l.db.Queries().GetReceipt(ctx, txID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, custody.Errorf(custody.KindNotFound, "transaction %s", txID)
	}
	r := &model.Receipt{
		TxID:      row.TxID,
		Status:    model.ReceiptStatus(row.Status),
		Code:      row.Code,
		Reason:    row.Reason,
		Key:       model.DocumentKey{Title: row.Title, Owner: uint64(row.Owner)},
		Index:     int(row.Idx),
		Timestamp: uint64(row.Timestamp),
	}
	copy(r.BlockHash[:], row.BlockHash)
	return r, nil
}

func (l *SQLiteLedger) Document(ctx context.Context, key model.DocumentKey) (*model.Document, error) {
	row, err := l.db.Queries().GetDocument(ctx, int64(key.Owner), key.Title)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, custody.Errorf(custody.KindNotFound, "document %s", key)
	}
	return documentFromRow(row), nil
}

func (l *SQLiteLedger) History(ctx context.Context, key model.DocumentKey) ([]model.ActionRecord, error) {
	q := l.db.Queries()
	doc, err := q.GetDocument(ctx, int64(key.Owner), key.Title)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, custody.Errorf(custody.KindNotFound, "document %s", key)
	}
	rows, err := q.ListRecords(ctx, doc.Seq)
	if err != nil {
		return nil, err
	}
	history := make([]model.ActionRecord, len(rows))
	for i, row := range rows {
		history[i] = recordFromRow(row)
	}
	return history, nil
}

func (l *SQLiteLedger) UserDocuments(ctx context.Context, owner uint64) ([]model.Document, error) {
	rows, err := l.db.Queries().ListDocumentsByOwner(ctx, int64(owner))
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, len(rows))
	for i, row := range rows {
		docs[i] = *documentFromRow(row)
	}
	return docs, nil
}

func (l *SQLiteLedger) Close() error { return l.db.Close() }

func documentFromRow(row *database.DocumentRow) *model.Document {
	d := &model.Document{
		Title:          row.Title,
		Owner:          uint64(row.Owner),
		LastAccessDate: uint64(row.LastAccessDate),
		LastAccessedBy: row.LastAccessedBy,
		Action:         model.Action(row.Action),
		SharedUser:     row.SharedUser,
		SharedEndDate:  uint64(row.SharedEndDate),
		Timestamp:      uint64(row.Timestamp),
	}
	copy(d.ContentRef[:], row.ContentRef)
	return d
}

func recordFromRow(row *database.RecordRow) model.ActionRecord {
	r := model.ActionRecord{
		Title:          row.Title,
		Owner:          uint64(row.Owner),
		LastAccessDate: uint64(row.LastAccessDate),
		LastAccessedBy: row.LastAccessedBy,
		Action:         model.Action(row.Action),
		SharedUser:     row.SharedUser,
		SharedEndDate:  uint64(row.SharedEndDate),
		Timestamp:      uint64(row.Timestamp),
		TxID:           row.TxID,
		ShareLevel:     model.ShareLevel(row.ShareLevel),
	}
	copy(r.ContentRef[:], row.ContentRef)
	copy(r.PreviousHash[:], row.PreviousHash)
	copy(r.BlockHash[:], row.BlockHash)
	return r
}

// sqlTx is the contract's state inside one database transaction.
type sqlTx struct {
	ctx context.Context
	q   *database.Queries
}

func (t *sqlTx) nextNonce(address string) (uint64, error) {
	return t.q.GetNonce(t.ctx, address)
}

func (t *sqlTx) setNonce(address string, next uint64) error {
	return t.q.SetNonce(t.ctx, address, next)
}

func (t *sqlTx) document(key model.DocumentKey) (*model.Document, error) {
	row, err := t.q.GetDocument(t.ctx, int64(key.Owner), key.Title)
	if err != nil || row == nil {
		return nil, err
	}
	return documentFromRow(row), nil
}

func (t *sqlTx) mustDocument(key model.DocumentKey) (*database.DocumentRow, error) {
	row, err := t.q.GetDocument(t.ctx, int64(key.Owner), key.Title)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("document %s vanished inside transaction", key)
	}
	return row, nil
}

func (t *sqlTx) lastHash(key model.DocumentKey) (model.Hash, int, error) {
	row, err := t.mustDocument(key)
	if err != nil {
		return model.ZeroHash, 0, err
	}
	raw, count, err := t.q.LastRecordHash(t.ctx, row.Seq)
	if err != nil {
		return model.ZeroHash, 0, err
	}
	var h model.Hash
	copy(h[:], raw)
	return h, count, nil
}

func (t *sqlTx) create(doc *model.Document) error {
	return t.q.InsertDocument(t.ctx, &database.DocumentRow{
		Owner:          int64(doc.Owner),
		Title:          doc.Title,
		LastAccessDate: int64(doc.LastAccessDate),
		LastAccessedBy: doc.LastAccessedBy,
		Action:         int64(doc.Action),
		SharedUser:     doc.SharedUser,
		SharedEndDate:  int64(doc.SharedEndDate),
		ContentRef:     doc.ContentRef[:],
		Timestamp:      int64(doc.Timestamp),
	})
}

func (t *sqlTx) rename(from, to model.DocumentKey) error {
	row, err := t.mustDocument(from)
	if err != nil {
		return err
	}
	row.Title = to.Title
	return t.q.UpdateDocument(t.ctx, row)
}

func (t *sqlTx) appendRecord(key model.DocumentKey, rec *model.ActionRecord) error {
	row, err := t.mustDocument(key)
	if err != nil {
		return err
	}
	_, count, err := t.q.LastRecordHash(t.ctx, row.Seq)
	if err != nil {
		return err
	}
	err = t.q.InsertRecord(t.ctx, &database.RecordRow{
		DocumentSeq:    row.Seq,
		Idx:            int64(count),
		Title:          rec.Title,
		Owner:          int64(rec.Owner),
		LastAccessDate: int64(rec.LastAccessDate),
		LastAccessedBy: rec.LastAccessedBy,
		Action:         int64(rec.Action),
		SharedUser:     rec.SharedUser,
		SharedEndDate:  int64(rec.SharedEndDate),
		ContentRef:     rec.ContentRef[:],
		Timestamp:      int64(rec.Timestamp),
		PreviousHash:   rec.PreviousHash[:],
		BlockHash:      rec.BlockHash[:],
		TxID:           rec.TxID,
		ShareLevel:     string(rec.ShareLevel),
	})
	if err != nil {
		return err
	}

	doc := model.DocumentFromRecord(key, rec)
	row.LastAccessDate = int64(doc.LastAccessDate)
	row.LastAccessedBy = doc.LastAccessedBy
	row.Action = int64(doc.Action)
	row.SharedUser = doc.SharedUser
	row.SharedEndDate = int64(doc.SharedEndDate)
	row.ContentRef = doc.ContentRef[:]
	row.Timestamp = int64(doc.Timestamp)
	return t.q.UpdateDocument(t.ctx, row)
}

func (t *sqlTx) putReceipt(r *model.Receipt) error {
	return t.q.InsertReceipt(t.ctx, &database.ReceiptRow{
		TxID:      r.TxID,
		Status:    string(r.Status),
		Code:      r.Code,
		Reason:    r.Reason,
		Owner:     int64(r.Key.Owner),
		Title:     r.Key.Title,
		Idx:       int64(r.Index),
		BlockHash: r.BlockHash[:],
		Timestamp: int64(r.Timestamp),
	})
}
