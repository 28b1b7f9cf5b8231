package custody

import (
	"errors"
	"fmt"

	"custody-go/internal/codec"
)

// Kind is the stable category of a failed operation.
type Kind string

const (
	KindAlreadyExists     Kind = "already_exists"
	KindNotFound          Kind = "not_found"
	KindNotYetVisible     Kind = "not_yet_visible"
	KindPermissionDenied  Kind = "permission_denied"
	KindInvalidTransition Kind = "invalid_transition"
	KindFieldTooLong      Kind = "field_too_long"
	KindLedgerRejected    Kind = "ledger_rejected"
	KindPending           Kind = "pending"
	KindIntegrity         Kind = "integrity"
	KindInternal          Kind = "internal"
)

// Error is the error type returned by the service and the ledger client.
// TxID is set when the failure concerns a submitted transaction; for
// KindPending it is the transaction the caller should re-poll.
type Error struct {
	Kind   Kind
	Reason string
	TxID   string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.TxID != "" {
		msg += " (tx " + e.TxID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == "" && t.TxID == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrNotYetVisible     = &Error{Kind: KindNotYetVisible}
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrFieldTooLong      = &Error{Kind: KindFieldTooLong}
	ErrLedgerRejected    = &Error{Kind: KindLedgerRejected}
	ErrPending           = &Error{Kind: KindPending}
	ErrIntegrity         = &Error{Kind: KindIntegrity}
)

// ErrStaleNonce is returned by Ledger.Submit when the envelope's nonce has
// already been used. The client resynchronizes and retries; it never reaches callers.
var ErrStaleNonce = errors.New("nonce already used")

// Errorf returns an *Error of the given kind with a formatted reason.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err. Field width violations from the codec map
// to KindFieldTooLong and NUL bytes in a field to KindInvalidTransition.
// Errors outside the taxonomy are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, codec.ErrFieldTooLong) {
		return KindFieldTooLong
	}
	if errors.Is(err, codec.ErrFieldNUL) {
		return KindInvalidTransition
	}
	return KindInternal
}

// classify wraps err in an *Error unless it already carries a kind.
func classify(err error) error {
	var e *Error
	if err == nil || errors.As(err, &e) {
		return err
	}
	if errors.Is(err, codec.ErrFieldTooLong) {
		return &Error{Kind: KindFieldTooLong, Err: err}
	}
	if errors.Is(err, codec.ErrFieldNUL) {
		return &Error{Kind: KindInvalidTransition, Err: err}
	}
	return err
}
