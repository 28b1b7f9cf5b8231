package codec

import (
	"io"

	"github.com/zeebo/blake3"

	"custody-go/internal/model"
)

// ContentRefOf returns the content reference of data: its BLAKE3-256 digest.
func ContentRefOf(data []byte) model.ContentRef {
	return model.ContentRef(blake3.Sum256(data))
}

// ContentRefFrom hashes everything read from r and returns the reference and byte count.
func ContentRefFrom(r io.Reader) (model.ContentRef, int64, error) {
	h := blake3.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return model.ContentRef{}, 0, err
	}
	var ref model.ContentRef
	copy(ref[:], h.Sum(nil))
	return ref, n, nil
}
