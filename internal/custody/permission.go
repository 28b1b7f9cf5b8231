package custody

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"custody-go/internal/model"
)

// Resolver decides whether an actor may view or download a document.
// Owners may always act on their own documents; anyone else needs an
// unexpired grant of the matching permission. Grants are rebuilt from the
// document's share records on a cache miss and cached per document.
type Resolver struct {
	ledger Ledger
	clock  Clock
	grants *cache.Cache
}

// ShareGrant is the set of permissions one grantee currently holds on a document.
// End dates are unix seconds; 0 means the grant never expires.
type ShareGrant struct {
	Grantee       string
	View          bool
	ViewUntil     uint64
	Download      bool
	DownloadUntil uint64
}

// Level returns the share level matching the grant's permissions.
func (g ShareGrant) Level() model.ShareLevel {
	switch {
	case g.View && g.Download:
		return model.ShareBoth
	case g.Download:
		return model.ShareDownload
	default:
		return model.ShareView
	}
}

// grantSet is the grant table of one document, keyed by grantee then permission.
type grantSet struct {
	mu        sync.RWMutex
	byGrantee map[string]map[model.Permission]uint64
}

func newGrantSet() *grantSet {
	return &grantSet{byGrantee: make(map[string]map[model.Permission]uint64)}
}

// apply folds one share record into the table. A share replaces the
// grantee's whole grant with the level it carries; the download half of a
// "both" share extends the view half recorded just before it. Records
// without a level only set their own permission.
func (s *grantSet) apply(p model.SharedPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	extends := p.Level == "" || (p.Level == model.ShareBoth && p.Permission == model.PermissionDownload)
	perms, ok := s.byGrantee[p.Grantee]
	if !ok || !extends {
		perms = make(map[model.Permission]uint64)
		s.byGrantee[p.Grantee] = perms
	}
	perms[p.Permission] = p.EndDate
}

func (s *grantSet) lookup(grantee string, perm model.Permission) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	end, ok := s.byGrantee[grantee][perm]
	return end, ok
}

func (s *grantSet) list() []ShareGrant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ShareGrant, 0, len(s.byGrantee))
	for grantee, perms := range s.byGrantee {
		g := ShareGrant{Grantee: grantee}
		g.ViewUntil, g.View = perms[model.PermissionView]
		g.DownloadUntil, g.Download = perms[model.PermissionDownload]
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Grantee < out[j].Grantee })
	return out
}

// NewResolver creates a Resolver whose cached grant tables live for ttl.
func NewResolver(ledger Ledger, clock Clock, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		ledger: ledger,
		clock:  clock,
		grants: cache.New(ttl, 2*ttl),
	}
}

// CanPerform reports whether actor may perform action on the document.
// Only viewing and downloading are grantable; every other action is owner-only.
func (r *Resolver) CanPerform(ctx context.Context, actor string, owner uint64, title string, action model.Action) (bool, error) {
	if actor == model.OwnerActor(owner) {
		return true, nil
	}

	var perm model.Permission
	switch action {
	case model.ActionViewed:
		perm = model.PermissionView
	case model.ActionDownloaded:
		perm = model.PermissionDownload
	default:
		return false, nil
	}

	set, err := r.load(ctx, model.DocumentKey{Title: title, Owner: owner})
	if err != nil {
		return false, err
	}
	end, ok := set.lookup(actor, perm)
	if !ok {
		return false, nil
	}
	if end != 0 && uint64(r.clock.Now().Unix()) > end {
		return false, nil
	}
	return true, nil
}

// Grants lists the current grants on a document, expired ones included.
func (r *Resolver) Grants(ctx context.Context, key model.DocumentKey) ([]ShareGrant, error) {
	set, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return set.list(), nil
}

// Record folds a committed share record into the document's cached table.
// Other records are ignored.
func (r *Resolver) Record(ctx context.Context, rec *model.ActionRecord) error {
	share, ok := rec.Shared()
	if !ok {
		return nil
	}
	set, err := r.load(ctx, model.DocumentKey{Title: rec.Title, Owner: rec.Owner})
	if err != nil {
		return err
	}
	set.apply(share)
	return nil
}

// Forget drops the cached table of a document, e.g. after it was renamed.
func (r *Resolver) Forget(key model.DocumentKey) {
	r.grants.Delete(key.String())
}

func (r *Resolver) load(ctx context.Context, key model.DocumentKey) (*grantSet, error) {
	k := key.String()
	if v, ok := r.grants.Get(k); ok {
		return v.(*grantSet), nil
	}

	history, err := r.ledger.History(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("loading grants of %s: %w", key, err)
	}
	set := grantsFromHistory(history)

	// A concurrent load or Record may have won; use its table.
	if err := r.grants.Add(k, set, cache.DefaultExpiration); err != nil {
		if v, ok := r.grants.Get(k); ok {
			return v.(*grantSet), nil
		}
	}
	return set, nil
}

// grantsFromHistory replays share records in order, the same way Record
// applies them one at a time.
func grantsFromHistory(history []model.ActionRecord) *grantSet {
	set := newGrantSet()
	for i := range history {
		if share, ok := history[i].Shared(); ok {
			set.apply(share)
		}
	}
	return set
}
