package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"custody-go/internal/model"
)

// packedRecordSize is the length of the packed record preimage:
// title, owner, lastAccessDate, lastAccessedBy, action, sharedUser,
// sharedEndDate, timestamp (twice) and previousHash.
const packedRecordSize = 32 + 8 + 32 + 32 + 1 + 32 + 32 + 32 + 32 + 32

// PackRecord returns the preimage the ledger hashes for rec, in the ledger's
// field order and widths. ContentRef, BlockHash and TxID are not part of it.
func PackRecord(rec *model.ActionRecord) ([]byte, error) {
	buf := make([]byte, packedRecordSize)
	off := 0

	putString := func(field, s string) error {
		b, err := EncodeBytes32(field, s)
		if err != nil {
			return err
		}
		copy(buf[off:], b[:])
		off += FieldWidth
		return nil
	}
	putInt := func(v uint64) {
		putUint256(buf[off:off+32], v)
		off += 32
	}

	if err := putString("title", rec.Title); err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint64(buf[off:], rec.Owner)
	off += 8
	putInt(rec.LastAccessDate)
	if err := putString("last accessed by", rec.LastAccessedBy); err != nil {
		return nil, err
	}
	buf[off] = byte(rec.Action)
	off++
	if err := putString("shared user", rec.SharedUser); err != nil {
		return nil, err
	}
	putInt(rec.SharedEndDate)
	// The ledger packs the record time twice: once as the document timestamp
	// and once as the history entry timestamp.
	putInt(rec.Timestamp)
	putInt(rec.Timestamp)
	copy(buf[off:], rec.PreviousHash[:])
	off += 32

	return buf[:off], nil
}

// Keccak256 returns the legacy Keccak-256 digest of the concatenated inputs.
func Keccak256(data ...[]byte) model.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out model.Hash
	h.Sum(out[:0])
	return out
}

// BlockHash computes the content hash of rec from every hashed field,
// matching the hash the ledger computes when it commits the record.
func BlockHash(rec *model.ActionRecord) (model.Hash, error) {
	packed, err := PackRecord(rec)
	if err != nil {
		return model.Hash{}, err
	}
	return Keccak256(packed), nil
}

// FormatHash returns the lowercase hex form of h.
func FormatHash(h model.Hash) string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex digest.
func ParseHash(s string) (model.Hash, error) {
	var h model.Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash is %d bytes, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}
