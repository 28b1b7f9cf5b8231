package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"custody-go/internal/codec"
	"custody-go/internal/config"
	"custody-go/internal/content"
	"custody-go/internal/custody"
	"custody-go/internal/database"
	"custody-go/internal/database/migrations"
	"custody-go/internal/gateway"
	"custody-go/internal/identity"
	"custody-go/internal/ledger"
	"custody-go/internal/model"
)

// Options controls how an App is built.
type Options struct {
	// Operation names the CLI command being run (e.g. "CreateDocument").
	Operation  string
	// Passphrase is asked for when the identity key is encrypted.
	Passphrase func() (string, error)
	// ReadOnly skips loading the identity. Write operations then fail.
	ReadOnly   bool
	// Stderr receives a copy of the log. Nil logs to the file only.
	Stderr     io.Writer

	Clock custody.Clock
	IDs   custody.IDGenerator
}

// App is the application layer between the CLI and custody.Service.
// It constructs all dependencies from config, exposes operations that take
// raw CLI values, and releases the ledger and log file on Close.
type App struct {
	cfg     *config.Config
	clock   custody.Clock
	ids     custody.IDGenerator
	logger  custody.Logger
	ledger  custody.Ledger
	content custody.ContentStore
	signer  custody.Signer
	service *custody.Service
	op      *Operation
	log     *slog.Logger
	logFile *os.File
}

// New creates a fully wired App from cfg. The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = custody.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = custody.UUIDGenerator{}
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	op := NewOperation(opts.Operation, opts.IDs, opts.Clock)
	log, logFile, err := newLogger(cfg.LogDir, op.ID, level, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a := &App{cfg: cfg, clock: opts.Clock, ids: opts.IDs, logger: &slogAdapter{l: log}, op: op, log: log, logFile: logFile}

	if err := a.openLedger(); err != nil {
		a.Close()
		return nil, err
	}

	a.content, err = content.NewContentStoreFromConfig(ctx, cfg.Content)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating content store: %w", err)
	}

	if !opts.ReadOnly {
		signer, err := loadIdentity(cfg.Identity, opts.Passphrase)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.signer = signer
	}

	a.wireService()

	log.Debug("operation started", "operation", op.Name, "ledger", cfg.Ledger.Type, "content", cfg.Content.Type)
	return a, nil
}

func (a *App) openLedger() error {
	l, err := ledger.NewLedgerFromConfig(a.cfg.Ledger, a.clock, a.ids)
	if err != nil {
		return fmt.Errorf("creating ledger: %w", err)
	}
	a.ledger = l
	return nil
}

// wireService builds the client, resolver and service over the current ledger.
func (a *App) wireService() {
	client := custody.NewClient(a.ledger, a.signer, a.clock, a.logger, custody.ClientOptions{
		PollBase:          a.cfg.Client.PollBase.Duration,
		PollMax:           a.cfg.Client.PollMax.Duration,
		VisibilityTimeout: a.cfg.Client.VisibilityTimeout.Duration,
	})
	resolver := custody.NewResolver(a.ledger, a.clock, a.cfg.Grants.CacheTTL.Duration)
	a.service = custody.NewService(client, resolver, a.content, a.logger, a.clock)
}

func loadIdentity(cfg config.IdentityConfig, passphrase func() (string, error)) (*identity.KeySigner, error) {
	kf := identity.NewKeyFile(cfg)
	if !kf.IsConfigured() {
		return nil, fmt.Errorf("no identity at %s: run `custody identity init`", cfg.KeyPath)
	}
	var pass string
	if kf.Encrypted() {
		if passphrase == nil {
			return nil, fmt.Errorf("identity key is encrypted and no passphrase source is available")
		}
		p, err := passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		pass = p
	}
	signer, err := kf.Load(pass)
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	return signer, nil
}

// Address returns the ledger address of the loaded identity, or "" in read-only mode.
func (a *App) Address() string {
	if a.signer == nil {
		return ""
	}
	return a.signer.Address()
}

func (a *App) requireSigner() error {
	if a.signer == nil {
		return fmt.Errorf("operation %s needs the identity key", a.op.Name)
	}
	return nil
}

// withTimeout bounds one request by client.request_timeout.
func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := a.cfg.Client.RequestTimeout.Duration; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// CreateDocument records a new document, optionally with the content of contentPath.
func (a *App) CreateDocument(ctx context.Context, title string, owner uint64, contentPath string) (*model.ActionRecord, error) {
	if err := a.requireSigner(); err != nil {
		return nil, a.op.Record(err)
	}
	data, err := readContent(contentPath)
	if err != nil {
		return nil, a.op.Record(err)
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	rec, err := a.service.CreateDocument(ctx, custody.CreateRequest{Title: title, Owner: owner, Content: data})
	return rec, a.op.Record(err)
}

// AccessDocument records actor viewing or downloading a document. When out is
// non-nil and the document has content, the content is written to it.
func (a *App) AccessDocument(ctx context.Context, title string, owner uint64, actor, kind string, out io.Writer) (*model.ActionRecord, error) {
	if err := a.requireSigner(); err != nil {
		return nil, a.op.Record(err)
	}
	k, err := model.ParseAccessKind(kind)
	if err != nil {
		return nil, a.op.Record(custody.Errorf(custody.KindInvalidTransition, "%v", err))
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	rec, err := a.service.AccessDocument(ctx, custody.AccessRequest{Title: title, Owner: owner, Actor: actor, Kind: k})
	if err != nil {
		return nil, a.op.Record(err)
	}
	if out != nil && !rec.ContentRef.IsZero() {
		if err := a.content.GetContent(ctx, rec.ContentRef, out); err != nil {
			return rec, a.op.Record(fmt.Errorf("fetching content: %w", err))
		}
	}
	return rec, nil
}

// ShareDocument grants grantee access at level until the given time.
// A zero until never expires.
func (a *App) ShareDocument(ctx context.Context, title string, owner uint64, grantee, level string, until time.Time) ([]*model.ActionRecord, error) {
	if err := a.requireSigner(); err != nil {
		return nil, a.op.Record(err)
	}
	var end uint64
	if !until.IsZero() {
		end = uint64(until.Unix())
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	recs, err := a.service.ShareDocument(ctx, custody.ShareRequest{
		Title:   title,
		Owner:   owner,
		Grantee: grantee,
		Level:   model.ShareLevel(level),
		EndDate: end,
	})
	return recs, a.op.Record(err)
}

// UpdateDocument renames a document and, when contentPath is set, replaces its content.
func (a *App) UpdateDocument(ctx context.Context, title string, owner uint64, newTitle, contentPath string) (*model.ActionRecord, error) {
	if err := a.requireSigner(); err != nil {
		return nil, a.op.Record(err)
	}
	data, err := readContent(contentPath)
	if err != nil {
		return nil, a.op.Record(err)
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	rec, err := a.service.UpdateDocument(ctx, custody.UpdateRequest{Title: title, Owner: owner, NewTitle: newTitle, Content: data})
	return rec, a.op.Record(err)
}

// Document returns the current state of a document.
func (a *App) Document(ctx context.Context, title string, owner uint64) (*model.Document, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	doc, err := a.service.GetDocument(ctx, title, owner)
	return doc, a.op.Record(err)
}

// History returns a document's records oldest first.
func (a *App) History(ctx context.Context, title string, owner uint64) ([]model.ActionRecord, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	h, err := a.service.GetHistory(ctx, title, owner)
	return h, a.op.Record(err)
}

// Record returns the record at index in a document's history.
func (a *App) Record(ctx context.Context, title string, owner uint64, index int) (*model.ActionRecord, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	rec, err := a.service.GetRecord(ctx, title, owner, index)
	return rec, a.op.Record(err)
}

// OwnerStats summarizes the documents and records of owner.
func (a *App) OwnerStats(ctx context.Context, owner uint64) (custody.OwnerStats, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	st, err := a.service.GetOwnerStats(ctx, owner)
	return st, a.op.Record(err)
}

// Documents lists the documents owned by owner.
func (a *App) Documents(ctx context.Context, owner uint64) ([]model.Document, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	docs, err := a.service.GetUserDocuments(ctx, owner)
	return docs, a.op.Record(err)
}

// Verify checks a document's hash chain.
func (a *App) Verify(ctx context.Context, title string, owner uint64) (custody.Verification, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	v, err := a.service.VerifyHistory(ctx, title, owner)
	if err != nil {
		return v, a.op.Record(err)
	}
	if !v.Valid {
		a.op.Record(custody.Errorf(custody.KindIntegrity, "record %d: %s", v.BadIndex, v.Reason))
	}
	return v, nil
}

// Grants lists the share grants on a document.
func (a *App) Grants(ctx context.Context, title string, owner uint64) ([]custody.ShareGrant, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	g, err := a.service.Grants(ctx, title, owner)
	return g, a.op.Record(err)
}

// FetchContent writes the stored content for ref to w.
func (a *App) FetchContent(ctx context.Context, ref model.ContentRef, w io.Writer) error {
	return a.op.Record(a.content.GetContent(ctx, ref, w))
}

// BackupLedger snapshots a sqlite ledger into the content store and returns
// the snapshot's content reference and size.
func (a *App) BackupLedger(ctx context.Context) (model.ContentRef, int64, error) {
	sl, ok := a.ledger.(*ledger.SQLiteLedger)
	if !ok {
		return model.ContentRef{}, 0, a.op.Record(fmt.Errorf("ledger type %q cannot be backed up", a.cfg.Ledger.Type))
	}

	tmp, err := os.CreateTemp("", "custody-ledger-*.db")
	if err != nil {
		return model.ContentRef{}, 0, a.op.Record(fmt.Errorf("creating temp file for ledger backup: %w", err))
	}
	tmpPath := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses to overwrite an existing file.
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := sl.DB().BackupTo(tmpPath); err != nil {
		return model.ContentRef{}, 0, a.op.Record(fmt.Errorf("backing up ledger: %w", err))
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return model.ContentRef{}, 0, a.op.Record(fmt.Errorf("reading ledger backup: %w", err))
	}
	ref := codec.ContentRefOf(data)
	if err := a.content.PutContent(ctx, ref, bytes.NewReader(data), int64(len(data))); err != nil {
		return model.ContentRef{}, 0, a.op.Record(fmt.Errorf("storing ledger backup: %w", err))
	}
	a.log.Info("ledger backed up", "ref", ref.String(), "size", len(data))
	return ref, int64(len(data)), nil
}

// RestoreLedger replaces a sqlite ledger with the snapshot stored under ref,
// as written by BackupLedger. The snapshot is migrated to the current schema
// before it replaces the live database.
func (a *App) RestoreLedger(ctx context.Context, ref model.ContentRef) error {
	sl, ok := a.ledger.(*ledger.SQLiteLedger)
	if !ok {
		return a.op.Record(fmt.Errorf("ledger type %q cannot be restored", a.cfg.Ledger.Type))
	}
	path := sl.DB().Path()
	tmpPath := path + ".restore"
	defer os.Remove(tmpPath)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return a.op.Record(fmt.Errorf("creating restore file: %w", err))
	}
	err = a.FetchContent(ctx, ref, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return a.op.Record(fmt.Errorf("fetching ledger snapshot %s: %w", ref, err))
	}

	db, err := database.Open(tmpPath)
	if err != nil {
		return a.op.Record(fmt.Errorf("snapshot %s is not a ledger database: %w", ref, err))
	}
	err = db.CheckMigrations()
	db.Close()
	if err != nil {
		return a.op.Record(fmt.Errorf("checking snapshot schema: %w", err))
	}

	if err := a.ledger.Close(); err != nil {
		return a.op.Record(fmt.Errorf("closing ledger: %w", err))
	}
	a.ledger = nil
	if err := os.Rename(tmpPath, path); err != nil {
		return a.op.Record(fmt.Errorf("replacing ledger database: %w", err))
	}
	if err := a.openLedger(); err != nil {
		return a.op.Record(err)
	}
	a.wireService()
	a.log.Info("ledger restored", "ref", ref.String(), "path", path)
	return nil
}

// LedgerStatus describes the configured ledger. Path and Schema are only set
// for sqlite ledgers.
type LedgerStatus struct {
	Type   string
	Path   string
	Schema migrations.Status
	// SchemaErr is why the schema is not at the latest version.
	SchemaErr error
}

// LedgerStatus reports the ledger type and, for sqlite, its schema version.
func (a *App) LedgerStatus() (LedgerStatus, error) {
	st := LedgerStatus{Type: a.cfg.Ledger.Type}
	sl, ok := a.ledger.(*ledger.SQLiteLedger)
	if !ok {
		return st, nil
	}
	st.Path = sl.DB().Path()
	schema, err := sl.DB().SchemaStatus()
	if err != nil {
		return st, a.op.Record(fmt.Errorf("reading schema version: %w", err))
	}
	st.Schema = schema
	st.SchemaErr = sl.DB().CheckMigrations()
	return st, nil
}

// ServeGateway serves the configured ledger over HTTP on listen until ctx ends.
func (a *App) ServeGateway(ctx context.Context, listen string) error {
	if _, ok := a.ledger.(*ledger.RemoteLedger); ok {
		return a.op.Record(fmt.Errorf("refusing to serve a remote ledger"))
	}
	if listen == "" {
		listen = a.cfg.Gateway.Listen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return a.op.Record(fmt.Errorf("listening on %s: %w", listen, err))
	}
	return a.op.Record(gateway.NewServer(a.ledger, a.logger).Serve(ctx, ln))
}

// Close logs the operation's outcome and releases the ledger and log file.
func (a *App) Close() error {
	var firstErr error
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			firstErr = fmt.Errorf("closing ledger: %w", err)
		}
	}

	if a.op.Failed() {
		a.log.Error("operation failed", "operation", a.op.Name, "error", a.op.Err, "kind", string(custody.KindOf(a.op.Err)))
	} else {
		a.log.Debug("operation finished", "operation", a.op.Name, "elapsed", a.clock.Now().Sub(a.op.StartedAt).String())
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func readContent(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	return data, nil
}
