package custody

import (
	"fmt"

	"custody-go/internal/codec"
	"custody-go/internal/model"
)

// Verification is the outcome of walking a document's hash chain.
// BadIndex is -1 when the chain is valid.
type Verification struct {
	Valid    bool
	BadIndex int
	Reason   string
}

// Verify walks history oldest first. Each record must link to the recomputed
// hash of its predecessor (the zero hash for the first) and its own block hash
// must recompute. The first failing record is reported.
func Verify(history []model.ActionRecord) Verification {
	prev := model.ZeroHash
	for i := range history {
		rec := &history[i]
		if rec.PreviousHash != prev {
			return Verification{
				BadIndex: i,
				Reason:   fmt.Sprintf("previous hash %s does not link to %s", rec.PreviousHash, prev),
			}
		}
		h, err := codec.BlockHash(rec)
		if err != nil {
			return Verification{BadIndex: i, Reason: err.Error()}
		}
		if h != rec.BlockHash {
			return Verification{
				BadIndex: i,
				Reason:   fmt.Sprintf("block hash %s recomputes to %s", rec.BlockHash, h),
			}
		}
		prev = h
	}
	return Verification{Valid: true, BadIndex: -1}
}
