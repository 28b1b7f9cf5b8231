package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// FieldWidth is the fixed byte width of every string field on the ledger.
const FieldWidth = 32

// ErrFieldTooLong is matched by errors.Is for any field exceeding FieldWidth.
var ErrFieldTooLong = errors.New("field too long")

// ErrFieldNUL is returned for a field containing a zero byte. Zero bytes are
// the padding of a fixed-width field, so such a value would not decode back
// to itself.
var ErrFieldNUL = errors.New("field contains a NUL byte")

// FieldError reports a string field that does not fit its fixed width.
type FieldError struct {
	Field string
	Len   int
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s is %d bytes, limit is %d", e.Field, e.Len, FieldWidth)
}

func (e *FieldError) Is(target error) bool { return target == ErrFieldTooLong }

// EncodeBytes32 right-pads the UTF-8 bytes of s with zeros to FieldWidth.
// Values longer than FieldWidth are rejected, never truncated, and so are
// values containing a zero byte.
func EncodeBytes32(field, s string) ([FieldWidth]byte, error) {
	var out [FieldWidth]byte
	if len(s) > FieldWidth {
		return out, &FieldError{Field: field, Len: len(s)}
	}
	if strings.IndexByte(s, 0) >= 0 {
		return out, fmt.Errorf("%s %q: %w", field, s, ErrFieldNUL)
	}
	copy(out[:], s)
	return out, nil
}

// DecodeBytes32 strips the zero padding added by EncodeBytes32.
func DecodeBytes32(b [FieldWidth]byte) string {
	return string(bytes.TrimRight(b[:], "\x00"))
}

// CheckField validates that s fits a fixed-width field and round-trips through it.
func CheckField(field, s string) error {
	_, err := EncodeBytes32(field, s)
	return err
}

// putUint256 writes v as a 32-byte big-endian integer.
func putUint256(dst []byte, v uint64) {
	clear(dst[:24])
	binary.BigEndian.PutUint64(dst[24:32], v)
}

// uint256 reads a 32-byte big-endian integer that must fit in 64 bits.
func uint256(src []byte) (uint64, error) {
	for _, b := range src[:24] {
		if b != 0 {
			return 0, fmt.Errorf("uint256 value exceeds 64 bits")
		}
	}
	return binary.BigEndian.Uint64(src[24:32]), nil
}
