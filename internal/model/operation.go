package model

// OpCode identifies an operation in its encoded payload.
type OpCode uint8

const (
	OpCreate OpCode = 0
	OpUpdate OpCode = 1
	OpShare  OpCode = 2
	OpAccess OpCode = 3
)

func (c OpCode) String() string {
	switch c {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpShare:
		return "share"
	case OpAccess:
		return "access"
	default:
		return "unknown"
	}
}

// Operation is a state-changing ledger operation. The set of implementations
// is closed: CreateOp, UpdateOp, ShareOp and AccessOp.
type Operation interface {
	Code() OpCode
	// Target is the key of the document the committed record is appended to.
	Target() DocumentKey
	isOperation()
}

// CreateOp registers a new document.
type CreateOp struct {
	Title          string
	Owner          uint64
	LastAccessDate uint64
	ContentRef     ContentRef
}

// UpdateOp renames a document, moving its history under NewTitle.
type UpdateOp struct {
	Owner          uint64
	OldTitle       string
	NewTitle       string
	LastAccessDate uint64
	ContentRef     ContentRef
}

// ShareOp grants a single permission to Grantee until EndDate. Level is the
// whole grant the request asked for; it must include Permission.
type ShareOp struct {
	Title          string
	Owner          uint64
	Grantee        string
	Permission     Permission
	Level          ShareLevel
	EndDate        uint64
	LastAccessDate uint64
}

// AccessOp records a view or download by Actor.
type AccessOp struct {
	Title          string
	Owner          uint64
	Actor          string
	Kind           AccessKind
	LastAccessDate uint64
}

func (CreateOp) Code() OpCode { return OpCreate }
func (UpdateOp) Code() OpCode { return OpUpdate }
func (ShareOp) Code() OpCode  { return OpShare }
func (AccessOp) Code() OpCode { return OpAccess }

func (o CreateOp) Target() DocumentKey { return DocumentKey{Title: o.Title, Owner: o.Owner} }
func (o UpdateOp) Target() DocumentKey { return DocumentKey{Title: o.NewTitle, Owner: o.Owner} }
func (o ShareOp) Target() DocumentKey  { return DocumentKey{Title: o.Title, Owner: o.Owner} }
func (o AccessOp) Target() DocumentKey { return DocumentKey{Title: o.Title, Owner: o.Owner} }

func (CreateOp) isOperation() {}
func (UpdateOp) isOperation() {}
func (ShareOp) isOperation()  {}
func (AccessOp) isOperation() {}

// Envelope is a signed, sequenced operation as submitted to the ledger.
type Envelope struct {
	From      string // hex-encoded ed25519 public key of the signer
	Nonce     uint64
	Payload   []byte // encoded Operation
	Signature []byte
}

// ReceiptStatus is the final outcome of a submitted envelope.
type ReceiptStatus string

const (
	ReceiptConfirmed ReceiptStatus = "confirmed"
	ReceiptReverted  ReceiptStatus = "reverted"
)

// Revert codes reported by the ledger when an operation's precondition fails.
const (
	RevertAlreadyExists = "already_exists"
	RevertNotFound      = "not_found"
	RevertInvalid       = "invalid"
)

// Receipt reports the outcome of a mined envelope.
// For confirmed receipts, Key, Index and BlockHash locate the appended record.
type Receipt struct {
	TxID      string
	Status    ReceiptStatus
	Code      string
	Reason    string
	Key       DocumentKey
	Index     int
	BlockHash Hash
	Timestamp uint64
}
