package custody

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"custody-go/internal/codec"
	"custody-go/internal/model"
)

// Service is the orchestration layer behind every document operation:
// permission check, transition planning, ledger submission, read-after-write
// and local hash verification.
type Service struct {
	client   *Client
	resolver *Resolver
	content  ContentStore
	logger   Logger
	clock    Clock
}

// NewService creates a Service. content may be nil when no request carries content.
func NewService(client *Client, resolver *Resolver, content ContentStore, logger Logger, clock Clock) *Service {
	return &Service{
		client:   client,
		resolver: resolver,
		content:  content,
		logger:   logger,
		clock:    clock,
	}
}

// CreateDocument records a new document. A zero LastAccessDate is replaced by
// the current time.
func (s *Service) CreateDocument(ctx context.Context, req CreateRequest) (*model.ActionRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.LastAccessDate = s.accessDate(req.LastAccessDate)
	key := model.DocumentKey{Title: req.Title, Owner: req.Owner}

	current, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	var ref model.ContentRef
	if len(req.Content) > 0 {
		ref = codec.ContentRefOf(req.Content)
	}
	plan, err := PlanCreate(current, req, ref)
	if err != nil {
		return nil, err
	}
	if err := s.storeContent(ctx, ref, req.Content); err != nil {
		return nil, err
	}

	records, err := s.execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document created", "key", key.String(), "hash", records[0].BlockHash.String(), "tx", records[0].TxID)
	return records[0], nil
}

// AccessDocument records Actor viewing or downloading a document.
func (s *Service) AccessDocument(ctx context.Context, req AccessRequest) (*model.ActionRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.LastAccessDate = s.accessDate(req.LastAccessDate)
	key := model.DocumentKey{Title: req.Title, Owner: req.Owner}

	current, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, Errorf(KindNotFound, "document %s", key)
	}
	allowed, err := s.resolver.CanPerform(ctx, req.Actor, req.Owner, req.Title, req.Kind.Action())
	if err != nil {
		return nil, fmt.Errorf("resolving permission: %w", err)
	}
	if !allowed {
		return nil, Errorf(KindPermissionDenied, "%s may not %s %s", req.Actor, req.Kind, key)
	}

	plan, err := PlanAccess(current, req)
	if err != nil {
		return nil, err
	}
	records, err := s.execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document accessed", "key", key.String(), "actor", req.Actor, "kind", req.Kind.String(), "tx", records[0].TxID)
	return records[0], nil
}

// ShareDocument grants Grantee access to a document. Sharing at level both
// appends two records, view first.
func (s *Service) ShareDocument(ctx context.Context, req ShareRequest) ([]*model.ActionRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.LastAccessDate = s.accessDate(req.LastAccessDate)
	key := model.DocumentKey{Title: req.Title, Owner: req.Owner}

	current, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	plan, err := PlanShare(current, req)
	if err != nil {
		return nil, err
	}
	records, err := s.execute(ctx, plan)
	if err != nil {
		// Part of the plan may have committed; rebuild the grants from the ledger.
		s.resolver.Forget(key)
		return nil, err
	}

	for _, rec := range records {
		if err := s.resolver.Record(ctx, rec); err != nil {
			s.logger.Warn("caching grant failed", "key", key.String(), "grantee", rec.SharedUser, "error", err)
			s.resolver.Forget(key)
		}
	}
	s.logger.Info("document shared", "key", key.String(), "grantee", req.Grantee, "level", string(req.Level), "end", req.EndDate)
	return records, nil
}

// UpdateDocument renames a document, moving its history to the new title.
// Content, when present, replaces the document's content reference.
func (s *Service) UpdateDocument(ctx context.Context, req UpdateRequest) (*model.ActionRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.LastAccessDate = s.accessDate(req.LastAccessDate)
	oldKey := model.DocumentKey{Title: req.Title, Owner: req.Owner}
	newKey := model.DocumentKey{Title: req.NewTitle, Owner: req.Owner}

	current, err := s.lookup(ctx, oldKey)
	if err != nil {
		return nil, err
	}
	target, err := s.lookup(ctx, newKey)
	if err != nil {
		return nil, err
	}
	var ref model.ContentRef
	if len(req.Content) > 0 {
		ref = codec.ContentRefOf(req.Content)
	}
	plan, err := PlanUpdate(current, target, req, ref)
	if err != nil {
		return nil, err
	}
	if err := s.storeContent(ctx, ref, req.Content); err != nil {
		return nil, err
	}

	records, err := s.execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	s.resolver.Forget(oldKey)
	s.resolver.Forget(newKey)
	s.logger.Info("document updated", "from", oldKey.String(), "to", newKey.String(), "tx", records[0].TxID)
	return records[0], nil
}

// GetDocument returns the current state of a document.
func (s *Service) GetDocument(ctx context.Context, title string, owner uint64) (*model.Document, error) {
	return s.client.Document(ctx, model.DocumentKey{Title: title, Owner: owner})
}

// GetHistory returns a document's records oldest first.
func (s *Service) GetHistory(ctx context.Context, title string, owner uint64) ([]model.ActionRecord, error) {
	return s.client.History(ctx, model.DocumentKey{Title: title, Owner: owner})
}

// GetRecord returns the record at index in a document's history.
func (s *Service) GetRecord(ctx context.Context, title string, owner uint64, index int) (*model.ActionRecord, error) {
	history, err := s.GetHistory(ctx, title, owner)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(history) {
		return nil, Errorf(KindNotFound, "record %d of %s (history has %d)", index, model.DocumentKey{Title: title, Owner: owner}, len(history))
	}
	return &history[index], nil
}

// OwnerStats summarizes the histories of every document an owner holds.
type OwnerStats struct {
	Owner     uint64
	Documents int
	Records   int
	Actions   map[model.Action]int
}

// AveragePerDocument is the mean history length, 0 when the owner has no documents.
func (st OwnerStats) AveragePerDocument() float64 {
	if st.Documents == 0 {
		return 0
	}
	return float64(st.Records) / float64(st.Documents)
}

// GetOwnerStats reads the history of each of owner's documents and counts
// their records by action.
func (s *Service) GetOwnerStats(ctx context.Context, owner uint64) (OwnerStats, error) {
	st := OwnerStats{Owner: owner, Actions: make(map[model.Action]int)}
	docs, err := s.GetUserDocuments(ctx, owner)
	if err != nil {
		return st, err
	}
	for _, doc := range docs {
		history, err := s.GetHistory(ctx, doc.Title, owner)
		if err != nil {
			return st, fmt.Errorf("reading history of %s: %w", doc.Key(), err)
		}
		st.Documents++
		st.Records += len(history)
		for i := range history {
			st.Actions[history[i].Action]++
		}
	}
	return st, nil
}

// GetUserDocuments returns every document owned by owner, oldest first.
func (s *Service) GetUserDocuments(ctx context.Context, owner uint64) ([]model.Document, error) {
	return s.client.UserDocuments(ctx, owner)
}

// VerifyHistory reads a document's history and verifies its hash chain.
func (s *Service) VerifyHistory(ctx context.Context, title string, owner uint64) (Verification, error) {
	history, err := s.GetHistory(ctx, title, owner)
	if err != nil {
		return Verification{}, err
	}
	v := Verify(history)
	if !v.Valid {
		s.logger.Warn("history verification failed", "key", model.DocumentKey{Title: title, Owner: owner}.String(), "index", v.BadIndex, "reason", v.Reason)
	}
	return v, nil
}

// CanPerform reports whether actor may perform action on the document.
func (s *Service) CanPerform(ctx context.Context, actor string, owner uint64, title string, action model.Action) (bool, error) {
	return s.resolver.CanPerform(ctx, actor, owner, title, action)
}

// Grants lists the share grants recorded on a document.
func (s *Service) Grants(ctx context.Context, title string, owner uint64) ([]ShareGrant, error) {
	return s.resolver.Grants(ctx, model.DocumentKey{Title: title, Owner: owner})
}

// lookup returns the document under key, or nil when it does not exist.
func (s *Service) lookup(ctx context.Context, key model.DocumentKey) (*model.Document, error) {
	doc, err := s.client.Document(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) accessDate(d uint64) uint64 {
	if d != 0 {
		return d
	}
	return uint64(s.clock.Now().Unix())
}

func (s *Service) storeContent(ctx context.Context, ref model.ContentRef, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if s.content == nil {
		return fmt.Errorf("no content store configured")
	}
	if err := s.content.PutContent(ctx, ref, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("storing content %s: %w", ref, err)
	}
	s.logger.Debug("content stored", "ref", ref.String(), "size", len(data))
	return nil
}

// execute submits a plan, waits for each record to become readable and checks
// it against the plan and against a locally recomputed block hash.
func (s *Service) execute(ctx context.Context, plan *Plan) ([]*model.ActionRecord, error) {
	receipts, err := s.client.Submit(ctx, plan.Ops...)
	if err != nil {
		return nil, err
	}

	records := make([]*model.ActionRecord, len(receipts))
	for i, r := range receipts {
		rec, err := s.client.AwaitRecord(ctx, r)
		if err != nil {
			if errors.Is(err, ErrNotYetVisible) {
				return nil, &Error{Kind: KindPending, Reason: "committed record not yet readable", TxID: r.TxID, Err: err}
			}
			return nil, err
		}
		if err := plan.Expect[i].Check(rec); err != nil {
			return nil, &Error{Kind: KindIntegrity, Reason: err.Error(), TxID: r.TxID}
		}
		h, err := codec.BlockHash(rec)
		if err != nil {
			return nil, &Error{Kind: KindIntegrity, Reason: "recomputing block hash", TxID: r.TxID, Err: err}
		}
		if h != rec.BlockHash {
			return nil, &Error{
				Kind:   KindIntegrity,
				Reason: fmt.Sprintf("ledger reported %s, recomputed %s", rec.BlockHash, h),
				TxID:   r.TxID,
			}
		}
		records[i] = rec
	}
	return records, nil
}
