package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"custody-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DB is the sqlite database backing the local ledger.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens the ledger database at path and migrates it to the latest schema.
// path can be a file path or ":memory:".
func Open(path string) (*DB, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating ledger database: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection without migrating it.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is its own database, and a single writer
	// connection keeps ledger transactions strictly serial for files too.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}

// Path returns the path the database was opened with.
func (d *DB) Path() string { return d.path }

// CheckMigrations verifies the database schema is up-to-date.
func (d *DB) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(d.db)
}

// SchemaStatus reports the schema version of the database.
func (d *DB) SchemaStatus() (migrations.Status, error) {
	return migrations.SchemaStatus(d.db)
}

// Queries returns queries that run outside a transaction.
func (d *DB) Queries() *Queries { return &Queries{db: d.db} }

// InTx runs fn inside a transaction, committing when fn returns nil.
func (d *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (d *DB) BackupTo(destPath string) error {
	if _, err := d.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries are the typed statements of the ledger schema.
type Queries struct {
	db dbtx
}

// Nonce operations

// GetNonce returns the next nonce expected from address; 0 for a new address.
func (q *Queries) GetNonce(ctx context.Context, address string) (uint64, error) {
	var next int64
	err := q.db.QueryRowContext(ctx, "SELECT next FROM nonces WHERE address = ?", address).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting nonce: %w", err)
	}
	return uint64(next), nil
}

func (q *Queries) SetNonce(ctx context.Context, address string, next uint64) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO nonces (address, next) VALUES (?, ?) ON CONFLICT (address) DO UPDATE SET next = excluded.next",
		address, int64(next))
	if err != nil {
		return fmt.Errorf("setting nonce: %w", err)
	}
	return nil
}

// Document operations

const documentColumns = `seq, owner, title, last_access_date, last_accessed_by, action,
	shared_user, shared_end_date, content_ref, timestamp`

func scanDocument(sc interface{ Scan(...any) error }) (*DocumentRow, error) {
	var d DocumentRow
	err := sc.Scan(&d.Seq, &d.Owner, &d.Title, &d.LastAccessDate, &d.LastAccessedBy, &d.Action,
		&d.SharedUser, &d.SharedEndDate, &d.ContentRef, &d.Timestamp)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocument returns the document row for (owner, title), or nil when absent.
func (q *Queries) GetDocument(ctx context.Context, owner int64, title string) (*DocumentRow, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE owner = ? AND title = ?", owner, title)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return d, nil
}

// ListDocumentsByOwner returns an owner's documents in creation order.
func (q *Queries) ListDocumentsByOwner(ctx context.Context, owner int64) ([]*DocumentRow, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE owner = ? ORDER BY seq", owner)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var result []*DocumentRow
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// InsertDocument inserts d and sets its Seq.
func (q *Queries) InsertDocument(ctx context.Context, d *DocumentRow) error {
	res, err := q.db.ExecContext(ctx, `INSERT INTO documents (owner, title, last_access_date,
		last_accessed_by, action, shared_user, shared_end_date, content_ref, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Owner, d.Title, d.LastAccessDate, d.LastAccessedBy, d.Action,
		d.SharedUser, d.SharedEndDate, d.ContentRef, d.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading document seq: %w", err)
	}
	d.Seq = seq
	return nil
}

// UpdateDocument overwrites the mutable state of the document with d.Seq, title included.
func (q *Queries) UpdateDocument(ctx context.Context, d *DocumentRow) error {
	_, err := q.db.ExecContext(ctx, `UPDATE documents SET title = ?, last_access_date = ?,
		last_accessed_by = ?, action = ?, shared_user = ?, shared_end_date = ?, content_ref = ?,
		timestamp = ? WHERE seq = ?`,
		d.Title, d.LastAccessDate, d.LastAccessedBy, d.Action, d.SharedUser, d.SharedEndDate,
		d.ContentRef, d.Timestamp, d.Seq)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	return nil
}

// Record operations

const recordColumns = `document_seq, idx, title, owner, last_access_date, last_accessed_by, action,
	shared_user, shared_end_date, content_ref, timestamp, previous_hash, block_hash, tx_id, share_level`

// ListRecords returns a document's records oldest first.
func (q *Queries) ListRecords(ctx context.Context, documentSeq int64) ([]*RecordRow, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE document_seq = ? ORDER BY idx", documentSeq)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var result []*RecordRow
	for rows.Next() {
		var r RecordRow
		err := rows.Scan(&r.DocumentSeq, &r.Idx, &r.Title, &r.Owner, &r.LastAccessDate,
			&r.LastAccessedBy, &r.Action, &r.SharedUser, &r.SharedEndDate, &r.ContentRef,
			&r.Timestamp, &r.PreviousHash, &r.BlockHash, &r.TxID, &r.ShareLevel)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// LastRecordHash returns the block hash of a document's latest record and its record count.
func (q *Queries) LastRecordHash(ctx context.Context, documentSeq int64) ([]byte, int, error) {
	var (
		hash  []byte
		count int
	)
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE((SELECT block_hash FROM records
		WHERE document_seq = ?1 ORDER BY idx DESC LIMIT 1), x'') FROM records WHERE document_seq = ?1`,
		documentSeq).Scan(&count, &hash)
	if err != nil {
		return nil, 0, fmt.Errorf("reading last record: %w", err)
	}
	return hash, count, nil
}

func (q *Queries) InsertRecord(ctx context.Context, r *RecordRow) error {
	_, err := q.db.ExecContext(ctx, "INSERT INTO records ("+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DocumentSeq, r.Idx, r.Title, r.Owner, r.LastAccessDate, r.LastAccessedBy, r.Action,
		r.SharedUser, r.SharedEndDate, r.ContentRef, r.Timestamp, r.PreviousHash, r.BlockHash, r.TxID,
		r.ShareLevel)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

// Receipt operations

func (q *Queries) InsertReceipt(ctx context.Context, r *ReceiptRow) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO receipts (tx_id, status, code, reason, owner, title,
		idx, block_hash, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TxID, r.Status, r.Code, r.Reason, r.Owner, r.Title, r.Idx, r.BlockHash, r.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting receipt: %w", err)
	}
	return nil
}

// GetReceipt returns the receipt of txID, or nil when the transaction is unknown.
func (q *Queries) GetReceipt(ctx context.Context, txID string) (*ReceiptRow, error) {
	var r ReceiptRow
	err := q.db.QueryRowContext(ctx, `SELECT tx_id, status, code, reason, owner, title, idx,
		block_hash, timestamp FROM receipts WHERE tx_id = ?`, txID).Scan(
		&r.TxID, &r.Status, &r.Code, &r.Reason, &r.Owner, &r.Title, &r.Idx, &r.BlockHash, &r.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return &r, nil
}
