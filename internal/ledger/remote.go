package ledger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"custody-go/internal/codec"
	"custody-go/internal/custody"
	"custody-go/internal/model"
)

// RemoteLedger talks to a ledger gateway over HTTP with CBOR bodies.
// Gateway-reported failures come back as *custody.Error; transport failures
// are returned as plain errors.
type RemoteLedger struct {
	baseURL string
	http    *http.Client
}

var _ custody.Ledger = (*RemoteLedger)(nil)

// NewRemoteLedger creates a client for the gateway at baseURL.
// A nil client uses one with a 30 second timeout.
func NewRemoteLedger(baseURL string, client *http.Client) *RemoteLedger {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteLedger{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (l *RemoteLedger) NextNonce(ctx context.Context, address string) (uint64, error) {
	var resp NonceResponse
	if err := l.do(ctx, http.MethodGet, PathNonce+"/"+url.PathEscape(address), nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Next, nil
}

func (l *RemoteLedger) Submit(ctx context.Context, env *model.Envelope) (string, error) {
	var resp SubmitResponse
	if err := l.do(ctx, http.MethodPost, PathTx, nil, env, &resp); err != nil {
		return "", err
	}
	return resp.TxID, nil
}

func (l *RemoteLedger) Receipt(ctx context.Context, txID string) (*model.Receipt, error) {
	var resp ReceiptResponse
	if err := l.do(ctx, http.MethodGet, PathTx+"/"+url.PathEscape(txID), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Receipt, nil
}

func (l *RemoteLedger) Document(ctx context.Context, key model.DocumentKey) (*model.Document, error) {
	var resp DocumentResponse
	if err := l.do(ctx, http.MethodGet, PathDocument, keyQuery(key), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Document, nil
}

func (l *RemoteLedger) History(ctx context.Context, key model.DocumentKey) ([]model.ActionRecord, error) {
	var resp HistoryResponse
	if err := l.do(ctx, http.MethodGet, PathHistory, keyQuery(key), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (l *RemoteLedger) UserDocuments(ctx context.Context, owner uint64) ([]model.Document, error) {
	var resp DocumentsResponse
	q := url.Values{"owner": {strconv.FormatUint(owner, 10)}}
	if err := l.do(ctx, http.MethodGet, PathDocuments, q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// Ping checks that the gateway is reachable.
func (l *RemoteLedger) Ping(ctx context.Context) error {
	return l.do(ctx, http.MethodGet, PathHealth, nil, nil, nil)
}

func (l *RemoteLedger) Close() error {
	l.http.CloseIdleConnections()
	return nil
}

func keyQuery(key model.DocumentKey) url.Values {
	return url.Values{
		"owner": {strconv.FormatUint(key.Owner, 10)},
		"title": {key.Title},
	}
}

func (l *RemoteLedger) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := l.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := codec.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", ContentType)
	if body != nil {
		req.Header.Set("Content-Type", ContentType)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		if err := codec.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}
		return ErrorFromWire(e)
	}
	if out == nil {
		return nil
	}
	if err := codec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
