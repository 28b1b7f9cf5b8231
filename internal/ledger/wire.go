package ledger

import (
	"errors"
	"fmt"
	"net/http"

	"custody-go/internal/custody"
	"custody-go/internal/model"
)

// Gateway routes and bodies. Bodies are CBOR (see codec.Marshal).
const (
	PathTx        = "/v1/tx"
	PathNonce     = "/v1/nonce"
	PathDocument  = "/v1/document"
	PathHistory   = "/v1/history"
	PathDocuments = "/v1/documents"
	PathHealth    = "/healthz"

	ContentType = "application/cbor"
)

// CodeStaleNonce is the wire code of custody.ErrStaleNonce.
const CodeStaleNonce = "stale_nonce"

type SubmitResponse struct {
	TxID string `cbor:"tx_id"`
}

type NonceResponse struct {
	Next uint64 `cbor:"next"`
}

// ReceiptResponse carries a nil Receipt while the transaction is pending.
type ReceiptResponse struct {
	Receipt *model.Receipt `cbor:"receipt"`
}

type DocumentResponse struct {
	Document model.Document `cbor:"document"`
}

type HistoryResponse struct {
	Records []model.ActionRecord `cbor:"records"`
}

type DocumentsResponse struct {
	Documents []model.Document `cbor:"documents"`
}

// ErrorResponse is the body of every non-2xx gateway response.
type ErrorResponse struct {
	Code   string `cbor:"code"`
	Reason string `cbor:"reason"`
}

// ErrorToWire maps a ledger error to an HTTP status and error body.
func ErrorToWire(err error) (int, ErrorResponse) {
	if errors.Is(err, custody.ErrStaleNonce) {
		return http.StatusConflict, ErrorResponse{Code: CodeStaleNonce, Reason: err.Error()}
	}

	var e *custody.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, ErrorResponse{Code: string(custody.KindInternal), Reason: err.Error()}
	}
	reason := e.Reason
	if e.Err != nil {
		reason = fmt.Sprintf("%s: %v", reason, e.Err)
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case custody.KindNotFound:
		status = http.StatusNotFound
	case custody.KindAlreadyExists:
		status = http.StatusConflict
	case custody.KindLedgerRejected, custody.KindFieldTooLong, custody.KindInvalidTransition:
		status = http.StatusUnprocessableEntity
	}
	return status, ErrorResponse{Code: string(e.Kind), Reason: reason}
}

// ErrorFromWire rebuilds the error a gateway reported.
func ErrorFromWire(resp ErrorResponse) error {
	if resp.Code == CodeStaleNonce {
		return fmt.Errorf("%s: %w", resp.Reason, custody.ErrStaleNonce)
	}
	if resp.Code == "" {
		resp.Code = string(custody.KindInternal)
	}
	return &custody.Error{Kind: custody.Kind(resp.Code), Reason: resp.Reason}
}
