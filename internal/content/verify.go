package content

import (
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"

	"custody-go/internal/codec"
	"custody-go/internal/model"
)

// ErrRefMismatch is returned when stored bytes do not hash to their reference.
var ErrRefMismatch = errors.New("content does not match its reference")

func checkRef(ref model.ContentRef, data []byte) error {
	if got := codec.ContentRefOf(data); got != ref {
		return fmt.Errorf("%w: want %s, got %s", ErrRefMismatch, ref, got)
	}
	return nil
}

// hashingReader hashes everything read through it.
type hashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: blake3.New()}
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	hr.h.Write(p[:n])
	hr.n += int64(n)
	return n, err
}

// verify checks the bytes read so far against ref and size.
func (hr *hashingReader) verify(ref model.ContentRef, size int64) error {
	if hr.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, hr.n)
	}
	var got model.ContentRef
	copy(got[:], hr.h.Sum(nil))
	if got != ref {
		return fmt.Errorf("%w: want %s, got %s", ErrRefMismatch, ref, got)
	}
	return nil
}
