package custody

import (
	"fmt"

	"custody-go/internal/codec"
	"custody-go/internal/model"
)

// CreateRequest asks for a new document owned by Owner.
type CreateRequest struct {
	Title          string
	Owner          uint64
	LastAccessDate uint64
	// Content is optional. When present it is stored in the content store and
	// its reference is attached to the created record.
	Content []byte
}

// AccessRequest records Actor viewing or downloading a document.
type AccessRequest struct {
	Title          string
	Owner          uint64
	Actor          string
	Kind           model.AccessKind
	LastAccessDate uint64
}

// ShareRequest grants Grantee access to a document until EndDate (0 = no expiry).
// Caller defaults to the owner when empty.
type ShareRequest struct {
	Title          string
	Owner          uint64
	Caller         string
	Grantee        string
	Level          model.ShareLevel
	EndDate        uint64
	LastAccessDate uint64
}

// UpdateRequest renames a document and optionally replaces its content.
// Caller defaults to the owner when empty.
type UpdateRequest struct {
	Title          string
	Owner          uint64
	Caller         string
	NewTitle       string
	LastAccessDate uint64
	Content        []byte
}

// Plan is the ordered list of ledger operations that carry out one request,
// with the record each operation is expected to append.
type Plan struct {
	Ops    []model.Operation
	Expect []Expectation
}

// Expectation is the shape of a record the ledger should append for an operation.
type Expectation struct {
	Key            model.DocumentKey
	Action         model.Action
	LastAccessDate uint64
	LastAccessedBy string
	SharedUser     string
	SharedEndDate  uint64
	ShareLevel     model.ShareLevel
}

func (p *Plan) add(op model.Operation, exp Expectation) {
	p.Ops = append(p.Ops, op)
	p.Expect = append(p.Expect, exp)
}

// Check reports the first field in which rec differs from the expectation.
func (e Expectation) Check(rec *model.ActionRecord) error {
	switch {
	case rec.Title != e.Key.Title || rec.Owner != e.Key.Owner:
		return fmt.Errorf("record belongs to %d/%s, expected %s", rec.Owner, rec.Title, e.Key)
	case rec.Action != e.Action:
		return fmt.Errorf("record action is %s, expected %s", rec.Action, e.Action)
	case rec.LastAccessDate != e.LastAccessDate:
		return fmt.Errorf("record last access date is %d, expected %d", rec.LastAccessDate, e.LastAccessDate)
	case rec.LastAccessedBy != e.LastAccessedBy:
		return fmt.Errorf("record accessed by %q, expected %q", rec.LastAccessedBy, e.LastAccessedBy)
	case rec.SharedUser != e.SharedUser || rec.SharedEndDate != e.SharedEndDate:
		return fmt.Errorf("record shared with %q until %d, expected %q until %d",
			rec.SharedUser, rec.SharedEndDate, e.SharedUser, e.SharedEndDate)
	case rec.ShareLevel != e.ShareLevel:
		return fmt.Errorf("record share level is %q, expected %q", rec.ShareLevel, e.ShareLevel)
	}
	return nil
}

func checkFields(fields ...[2]string) error {
	for _, f := range fields {
		if err := codec.CheckField(f[0], f[1]); err != nil {
			return classify(err)
		}
	}
	return nil
}

func requireTitle(title string) error {
	if title == "" {
		return Errorf(KindInvalidTransition, "title is empty")
	}
	return nil
}

// requireOwner fails unless caller is empty or the owner's actor string.
func requireOwner(caller string, owner uint64) error {
	if caller != "" && caller != model.OwnerActor(owner) {
		return Errorf(KindPermissionDenied, "%s is not the owner", caller)
	}
	return nil
}

func (r *CreateRequest) validate() error {
	if err := requireTitle(r.Title); err != nil {
		return err
	}
	return checkFields([2]string{"title", r.Title})
}

func (r *AccessRequest) validate() error {
	if err := requireTitle(r.Title); err != nil {
		return err
	}
	if r.Actor == "" {
		return Errorf(KindInvalidTransition, "actor is empty")
	}
	if r.Kind != model.AccessView && r.Kind != model.AccessDownload {
		return Errorf(KindInvalidTransition, "unknown access kind %d", r.Kind)
	}
	return checkFields([2]string{"title", r.Title}, [2]string{"accessed by", r.Actor})
}

func (r *ShareRequest) validate() error {
	if err := requireTitle(r.Title); err != nil {
		return err
	}
	if err := requireOwner(r.Caller, r.Owner); err != nil {
		return err
	}
	if r.Level.Permissions() == nil {
		return Errorf(KindInvalidTransition, "unknown share level %q", r.Level)
	}
	if r.Grantee == "" {
		return Errorf(KindInvalidTransition, "grantee is empty")
	}
	if r.Grantee == model.OwnerActor(r.Owner) {
		return Errorf(KindInvalidTransition, "cannot share a document with its owner")
	}
	return checkFields([2]string{"title", r.Title}, [2]string{"shared user", r.Grantee})
}

func (r *UpdateRequest) validate() error {
	if err := requireTitle(r.Title); err != nil {
		return err
	}
	if err := requireOwner(r.Caller, r.Owner); err != nil {
		return err
	}
	if r.NewTitle == "" {
		return Errorf(KindInvalidTransition, "new title is empty")
	}
	if r.NewTitle == r.Title {
		return Errorf(KindInvalidTransition, "new title equals the current title")
	}
	return checkFields([2]string{"title", r.Title}, [2]string{"new title", r.NewTitle})
}

// PlanCreate plans a create. current is the document under the requested key, or nil.
func PlanCreate(current *model.Document, req CreateRequest, ref model.ContentRef) (*Plan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	key := model.DocumentKey{Title: req.Title, Owner: req.Owner}
	if current != nil {
		return nil, Errorf(KindAlreadyExists, "document %s exists", key)
	}

	p := &Plan{}
	p.add(model.CreateOp{
		Title:          req.Title,
		Owner:          req.Owner,
		LastAccessDate: req.LastAccessDate,
		ContentRef:     ref,
	}, Expectation{
		Key:            key,
		Action:         model.ActionCreated,
		LastAccessDate: req.LastAccessDate,
		LastAccessedBy: model.OwnerActor(req.Owner),
	})
	return p, nil
}

// PlanAccess plans a view or download. Permission is checked by the Resolver, not here.
func PlanAccess(current *model.Document, req AccessRequest) (*Plan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	key := model.DocumentKey{Title: req.Title, Owner: req.Owner}
	if current == nil {
		return nil, Errorf(KindNotFound, "document %s", key)
	}

	p := &Plan{}
	p.add(model.AccessOp{
		Title:          req.Title,
		Owner:          req.Owner,
		Actor:          req.Actor,
		Kind:           req.Kind,
		LastAccessDate: req.LastAccessDate,
	}, Expectation{
		Key:            key,
		Action:         req.Kind.Action(),
		LastAccessDate: req.LastAccessDate,
		LastAccessedBy: req.Actor,
	})
	return p, nil
}

// PlanShare plans one share operation per permission of the requested level,
// view before download. Each operation carries the level so the grant it
// leaves behind replaces whatever the grantee held before.
func PlanShare(current *model.Document, req ShareRequest) (*Plan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	key := model.DocumentKey{Title: req.Title, Owner: req.Owner}
	if current == nil {
		return nil, Errorf(KindNotFound, "document %s", key)
	}

	p := &Plan{}
	for _, perm := range req.Level.Permissions() {
		p.add(model.ShareOp{
			Title:          req.Title,
			Owner:          req.Owner,
			Grantee:        req.Grantee,
			Permission:     perm,
			Level:          req.Level,
			EndDate:        req.EndDate,
			LastAccessDate: req.LastAccessDate,
		}, Expectation{
			Key:            key,
			Action:         perm.SharedAction(),
			LastAccessDate: req.LastAccessDate,
			LastAccessedBy: model.OwnerActor(req.Owner),
			SharedUser:     req.Grantee,
			SharedEndDate:  req.EndDate,
			ShareLevel:     req.Level,
		})
	}
	return p, nil
}

// PlanUpdate plans a rename. current is the document under the old title and
// target the document under the new title, if any. A zero ref keeps the
// current content.
func PlanUpdate(current, target *model.Document, req UpdateRequest, ref model.ContentRef) (*Plan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	oldKey := model.DocumentKey{Title: req.Title, Owner: req.Owner}
	newKey := model.DocumentKey{Title: req.NewTitle, Owner: req.Owner}
	if current == nil {
		return nil, Errorf(KindNotFound, "document %s", oldKey)
	}
	if target != nil {
		return nil, Errorf(KindAlreadyExists, "document %s exists", newKey)
	}
	if ref.IsZero() {
		ref = current.ContentRef
	}

	p := &Plan{}
	p.add(model.UpdateOp{
		Owner:          req.Owner,
		OldTitle:       req.Title,
		NewTitle:       req.NewTitle,
		LastAccessDate: req.LastAccessDate,
		ContentRef:     ref,
	}, Expectation{
		Key:            newKey,
		Action:         model.ActionUpdated,
		LastAccessDate: req.LastAccessDate,
		LastAccessedBy: model.OwnerActor(req.Owner),
	})
	return p, nil
}
