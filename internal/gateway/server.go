// Package gateway exposes a custody.Ledger over HTTP with CBOR bodies.
// ledger.RemoteLedger is its client.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"custody-go/internal/codec"
	"custody-go/internal/custody"
	"custody-go/internal/ledger"
	"custody-go/internal/model"
)

const maxBodyBytes = 1 << 20

// Server serves one ledger.
type Server struct {
	ledger custody.Ledger
	logger custody.Logger
	router chi.Router
}

// NewServer creates a gateway for l.
func NewServer(l custody.Ledger, logger custody.Logger) *Server {
	s := &Server{ledger: l, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(ledger.PathHealth, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post(ledger.PathTx, s.submit)
	r.Get(ledger.PathTx+"/{id}", s.receipt)
	r.Get(ledger.PathNonce+"/{address}", s.nonce)
	r.Get(ledger.PathDocument, s.document)
	r.Get(ledger.PathHistory, s.history)
	r.Get(ledger.PathDocuments, s.documents)
	s.router = r
	return s
}

// Handler returns the gateway's HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("ledger gateway listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down gateway: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.badRequest(w, "reading body: "+err.Error())
		return
	}
	var env model.Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		s.badRequest(w, "decoding envelope: "+err.Error())
		return
	}

	txID, err := s.ledger.Submit(r.Context(), &env)
	if err != nil {
		s.logger.Debug("envelope refused", "from", env.From, "nonce", env.Nonce, "error", err)
		s.fail(w, err)
		return
	}
	s.logger.Info("envelope accepted", "from", env.From, "nonce", env.Nonce, "tx", txID)
	s.write(w, http.StatusAccepted, ledger.SubmitResponse{TxID: txID})
}

func (s *Server) receipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Receipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, ledger.ReceiptResponse{Receipt: rec})
}

func (s *Server) nonce(w http.ResponseWriter, r *http.Request) {
	next, err := s.ledger.NextNonce(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, ledger.NonceResponse{Next: next})
}

func (s *Server) document(w http.ResponseWriter, r *http.Request) {
	key, ok := s.keyFromQuery(w, r)
	if !ok {
		return
	}
	doc, err := s.ledger.Document(r.Context(), key)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, ledger.DocumentResponse{Document: *doc})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	key, ok := s.keyFromQuery(w, r)
	if !ok {
		return
	}
	records, err := s.ledger.History(r.Context(), key)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, ledger.HistoryResponse{Records: records})
}

func (s *Server) documents(w http.ResponseWriter, r *http.Request) {
	owner, err := strconv.ParseUint(r.URL.Query().Get("owner"), 10, 64)
	if err != nil {
		s.badRequest(w, "invalid owner")
		return
	}
	docs, err := s.ledger.UserDocuments(r.Context(), owner)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, ledger.DocumentsResponse{Documents: docs})
}

func (s *Server) keyFromQuery(w http.ResponseWriter, r *http.Request) (model.DocumentKey, bool) {
	q := r.URL.Query()
	owner, err := strconv.ParseUint(q.Get("owner"), 10, 64)
	if err != nil {
		s.badRequest(w, "invalid owner")
		return model.DocumentKey{}, false
	}
	title := q.Get("title")
	if title == "" {
		s.badRequest(w, "missing title")
		return model.DocumentKey{}, false
	}
	return model.DocumentKey{Title: title, Owner: owner}, true
}

func (s *Server) badRequest(w http.ResponseWriter, reason string) {
	s.write(w, http.StatusBadRequest, ledger.ErrorResponse{Code: string(custody.KindLedgerRejected), Reason: reason})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, body := ledger.ErrorToWire(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("ledger failure", "error", err)
	}
	s.write(w, status, body)
}

func (s *Server) write(w http.ResponseWriter, status int, body any) {
	data, err := codec.Marshal(body)
	if err != nil {
		s.logger.Error("encoding response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ledger.ContentType)
	w.WriteHeader(status)
	w.Write(data)
}
