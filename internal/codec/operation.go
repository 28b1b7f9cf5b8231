package codec

import (
	"encoding/binary"
	"fmt"

	"custody-go/internal/model"
)

// Payload sizes, opcode byte included.
const (
	createPayloadSize = 1 + 32 + 8 + 32 + 32
	updatePayloadSize = 1 + 8 + 32 + 32 + 32 + 32
	sharePayloadSize  = 1 + 32 + 8 + 32 + 1 + 1 + 32 + 32
	accessPayloadSize = 1 + 32 + 8 + 32 + 1 + 32
)

// payloadWriter appends fixed-width fields and remembers the first error.
type payloadWriter struct {
	buf []byte
	err error
}

func (w *payloadWriter) str(field, s string) {
	if w.err != nil {
		return
	}
	b, err := EncodeBytes32(field, s)
	if err != nil {
		w.err = err
		return
	}
	w.buf = append(w.buf, b[:]...)
}

func (w *payloadWriter) u64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *payloadWriter) u256(v uint64) {
	var b [32]byte
	putUint256(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *payloadWriter) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *payloadWriter) raw32(b [32]byte) {
	w.buf = append(w.buf, b[:]...)
}

// EncodeOperation encodes op as an opcode byte followed by its fixed-width fields.
// String fields longer than FieldWidth fail with ErrFieldTooLong.
func EncodeOperation(op model.Operation) ([]byte, error) {
	w := &payloadWriter{}
	switch o := op.(type) {
	case model.CreateOp:
		w.buf = make([]byte, 0, createPayloadSize)
		w.u8(uint8(model.OpCreate))
		w.str("title", o.Title)
		w.u64(o.Owner)
		w.u256(o.LastAccessDate)
		w.raw32(o.ContentRef)
	case model.UpdateOp:
		w.buf = make([]byte, 0, updatePayloadSize)
		w.u8(uint8(model.OpUpdate))
		w.u64(o.Owner)
		w.str("title", o.OldTitle)
		w.str("new title", o.NewTitle)
		w.u256(o.LastAccessDate)
		w.raw32(o.ContentRef)
	case model.ShareOp:
		level, ok := o.Level.Code()
		if !ok || !o.Level.Includes(o.Permission) {
			return nil, fmt.Errorf("share level %q does not include %s", o.Level, o.Permission)
		}
		w.buf = make([]byte, 0, sharePayloadSize)
		w.u8(uint8(model.OpShare))
		w.str("title", o.Title)
		w.u64(o.Owner)
		w.str("shared user", o.Grantee)
		w.u8(uint8(o.Permission))
		w.u8(level)
		w.u256(o.EndDate)
		w.u256(o.LastAccessDate)
	case model.AccessOp:
		w.buf = make([]byte, 0, accessPayloadSize)
		w.u8(uint8(model.OpAccess))
		w.str("title", o.Title)
		w.u64(o.Owner)
		w.str("accessed by", o.Actor)
		w.u8(uint8(o.Kind))
		w.u256(o.LastAccessDate)
	default:
		return nil, fmt.Errorf("unsupported operation %T", op)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// payloadReader consumes fixed-width fields from an encoded payload.
type payloadReader struct {
	buf []byte
	err error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("payload truncated")
		return make([]byte, n)
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *payloadReader) str() string {
	var b [FieldWidth]byte
	copy(b[:], r.take(FieldWidth))
	return DecodeBytes32(b)
}

func (r *payloadReader) u64() uint64 { return binary.BigEndian.Uint64(r.take(8)) }

func (r *payloadReader) u256() uint64 {
	v, err := uint256(r.take(32))
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func (r *payloadReader) u8() uint8 { return r.take(1)[0] }

func (r *payloadReader) raw32() [32]byte {
	var b [32]byte
	copy(b[:], r.take(32))
	return b
}

// DecodeOperation is the inverse of EncodeOperation. It rejects trailing bytes,
// unknown opcodes and out-of-range enum values.
func DecodeOperation(payload []byte) (model.Operation, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	r := &payloadReader{buf: payload[1:]}
	var op model.Operation
	switch model.OpCode(payload[0]) {
	case model.OpCreate:
		o := model.CreateOp{}
		o.Title = r.str()
		o.Owner = r.u64()
		o.LastAccessDate = r.u256()
		o.ContentRef = r.raw32()
		op = o
	case model.OpUpdate:
		o := model.UpdateOp{}
		o.Owner = r.u64()
		o.OldTitle = r.str()
		o.NewTitle = r.str()
		o.LastAccessDate = r.u256()
		o.ContentRef = r.raw32()
		op = o
	case model.OpShare:
		o := model.ShareOp{}
		o.Title = r.str()
		o.Owner = r.u64()
		o.Grantee = r.str()
		o.Permission = model.Permission(r.u8())
		level := r.u8()
		o.EndDate = r.u256()
		o.LastAccessDate = r.u256()
		if r.err == nil && o.Permission > model.PermissionDownload {
			return nil, fmt.Errorf("invalid permission %d", o.Permission)
		}
		var ok bool
		if o.Level, ok = model.ShareLevelFromCode(level); r.err == nil && (!ok || !o.Level.Includes(o.Permission)) {
			return nil, fmt.Errorf("invalid share level %d for %s", level, o.Permission)
		}
		op = o
	case model.OpAccess:
		o := model.AccessOp{}
		o.Title = r.str()
		o.Owner = r.u64()
		o.Actor = r.str()
		o.Kind = model.AccessKind(r.u8())
		o.LastAccessDate = r.u256()
		if r.err == nil && o.Kind > model.AccessDownload {
			return nil, fmt.Errorf("invalid access kind %d", o.Kind)
		}
		op = o
	default:
		return nil, fmt.Errorf("unknown opcode %d", payload[0])
	}
	if r.err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", model.OpCode(payload[0]), r.err)
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("decoding %s payload: %d trailing bytes", model.OpCode(payload[0]), len(r.buf))
	}
	return op, nil
}

// EnvelopeDigest is the message a signer signs for an envelope:
// keccak256(from || nonce || payload).
func EnvelopeDigest(from string, nonce uint64, payload []byte) model.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return Keccak256([]byte(from), n[:], payload)
}
