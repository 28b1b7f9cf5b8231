package model

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// Action is the kind of a recorded document action.
// Ordinals are persisted by the ledger and decoded by position: never reorder.
type Action uint8

const (
	ActionCreated        Action = 0
	ActionUpdated        Action = 1
	ActionViewed         Action = 2
	ActionDownloaded     Action = 3
	ActionSharedView     Action = 4
	ActionSharedDownload Action = 5
)

var actionNames = [...]string{
	ActionCreated:        "created",
	ActionUpdated:        "updated",
	ActionViewed:         "viewed",
	ActionDownloaded:     "downloaded",
	ActionSharedView:     "shared_view",
	ActionSharedDownload: "shared_download",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "action(" + strconv.Itoa(int(a)) + ")"
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool { return int(a) < len(actionNames) }

// Permission is the single-valued permission carried by one share operation.
type Permission uint8

const (
	PermissionView     Permission = 0
	PermissionDownload Permission = 1
)

func (p Permission) String() string {
	switch p {
	case PermissionView:
		return "view"
	case PermissionDownload:
		return "download"
	default:
		return "permission(" + strconv.Itoa(int(p)) + ")"
	}
}

// SharedAction returns the action recorded for a share with permission p.
func (p Permission) SharedAction() Action {
	if p == PermissionDownload {
		return ActionSharedDownload
	}
	return ActionSharedView
}

// AccessKind selects between viewing and downloading a document.
type AccessKind uint8

const (
	AccessView     AccessKind = 0
	AccessDownload AccessKind = 1
)

func (k AccessKind) String() string {
	switch k {
	case AccessView:
		return "view"
	case AccessDownload:
		return "download"
	default:
		return "access(" + strconv.Itoa(int(k)) + ")"
	}
}

// Action returns the action recorded for an access of kind k.
func (k AccessKind) Action() Action {
	if k == AccessDownload {
		return ActionDownloaded
	}
	return ActionViewed
}

// Permission returns the grant permission required for an access of kind k.
func (k AccessKind) Permission() Permission {
	if k == AccessDownload {
		return PermissionDownload
	}
	return PermissionView
}

// ParseAccessKind parses "view" or "download".
func ParseAccessKind(s string) (AccessKind, error) {
	switch s {
	case "view":
		return AccessView, nil
	case "download":
		return AccessDownload, nil
	default:
		return 0, fmt.Errorf("unknown access kind %q", s)
	}
}

// ShareLevel is the permission level requested when sharing.
// The ledger only knows single permissions, so ShareBoth becomes two share operations.
type ShareLevel string

const (
	ShareView     ShareLevel = "view"
	ShareDownload ShareLevel = "download"
	ShareBoth     ShareLevel = "both"
)

// Includes reports whether the level grants permission p.
func (l ShareLevel) Includes(p Permission) bool {
	for _, lp := range l.Permissions() {
		if lp == p {
			return true
		}
	}
	return false
}

// Code returns the byte the level is encoded as in a share payload.
func (l ShareLevel) Code() (uint8, bool) {
	switch l {
	case ShareView:
		return 0, true
	case ShareDownload:
		return 1, true
	case ShareBoth:
		return 2, true
	default:
		return 0, false
	}
}

// ShareLevelFromCode is the inverse of ShareLevel.Code.
func ShareLevelFromCode(c uint8) (ShareLevel, bool) {
	switch c {
	case 0:
		return ShareView, true
	case 1:
		return ShareDownload, true
	case 2:
		return ShareBoth, true
	default:
		return "", false
	}
}

// Permissions expands the level into ledger permissions, view first.
func (l ShareLevel) Permissions() []Permission {
	switch l {
	case ShareView:
		return []Permission{PermissionView}
	case ShareDownload:
		return []Permission{PermissionDownload}
	case ShareBoth:
		return []Permission{PermissionView, PermissionDownload}
	default:
		return nil
	}
}

// Hash is a 32-byte digest.
type Hash [32]byte

// ZeroHash is the previous hash of the first record in every chain.
var ZeroHash Hash

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the all-zero digest.
func (h Hash) IsZero() bool { return h == ZeroHash }

// ContentRef is an opaque pointer to stored document content.
// It is attached to create and update operations and never interpreted.
type ContentRef [32]byte

func (c ContentRef) String() string { return hex.EncodeToString(c[:]) }

// IsZero reports whether no content is attached.
func (c ContentRef) IsZero() bool { return c == ContentRef{} }

// ParseContentRef parses the hex form printed by ContentRef.String.
func ParseContentRef(s string) (ContentRef, error) {
	var c ContentRef
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("content ref %q: %w", s, err)
	}
	if len(b) != len(c) {
		return c, fmt.Errorf("content ref %q: %d bytes, want %d", s, len(b), len(c))
	}
	copy(c[:], b)
	return c, nil
}

// DocumentKey identifies a document. A (title, owner) pair is unique.
type DocumentKey struct {
	Title string
	Owner uint64
}

func (k DocumentKey) String() string {
	return strconv.FormatUint(k.Owner, 10) + "/" + k.Title
}

// OwnerActor returns the actor string under which the owner is recorded.
func OwnerActor(owner uint64) string {
	return strconv.FormatUint(owner, 10)
}

// Document is the current state of a document on the ledger.
type Document struct {
	Title          string
	Owner          uint64
	LastAccessDate uint64 // unix seconds, caller supplied
	LastAccessedBy string
	Action         Action
	SharedUser     string
	SharedEndDate  uint64 // unix seconds, 0 when not shared
	ContentRef     ContentRef
	Timestamp      uint64 // ledger time of the last change
}

// Key returns the document's key.
func (d *Document) Key() DocumentKey {
	return DocumentKey{Title: d.Title, Owner: d.Owner}
}

// ActionRecord is one entry in a document's append-only history.
// BlockHash is computed by the ledger from every other hashed field.
type ActionRecord struct {
	Title          string
	Owner          uint64
	LastAccessDate uint64
	LastAccessedBy string
	Action         Action
	SharedUser     string
	SharedEndDate  uint64
	ContentRef     ContentRef
	Timestamp      uint64
	PreviousHash   Hash
	BlockHash      Hash
	TxID           string
	// ShareLevel is the level the grantee holds once a share record applies.
	// Set on share records only and, like ContentRef, not hashed.
	ShareLevel ShareLevel
}

// DocumentFromRecord returns the document state implied by its latest record.
// key is the document's current key, which differs from rec.Title after an update.
func DocumentFromRecord(key DocumentKey, rec *ActionRecord) *Document {
	return &Document{
		Title:          key.Title,
		Owner:          key.Owner,
		LastAccessDate: rec.LastAccessDate,
		LastAccessedBy: rec.LastAccessedBy,
		Action:         rec.Action,
		SharedUser:     rec.SharedUser,
		SharedEndDate:  rec.SharedEndDate,
		ContentRef:     rec.ContentRef,
		Timestamp:      rec.Timestamp,
	}
}
