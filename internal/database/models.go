package database

// Row types mirror the ledger schema. Unsigned ledger values are stored
// bit-cast to int64; the ledger backend converts them back.

type DocumentRow struct {
	Seq            int64
	Owner          int64
	Title          string
	LastAccessDate int64
	LastAccessedBy string
	Action         int64
	SharedUser     string
	SharedEndDate  int64
	ContentRef     []byte
	Timestamp      int64
}

type RecordRow struct {
	DocumentSeq    int64
	Idx            int64
	Title          string
	Owner          int64
	LastAccessDate int64
	LastAccessedBy string
	Action         int64
	SharedUser     string
	SharedEndDate  int64
	ContentRef     []byte
	Timestamp      int64
	PreviousHash   []byte
	BlockHash      []byte
	TxID           string
	ShareLevel     string
}

type ReceiptRow struct {
	TxID      string
	Status    string
	Code      string
	Reason    string
	Owner     int64
	Title     string
	Idx       int64
	BlockHash []byte
	Timestamp int64
}
