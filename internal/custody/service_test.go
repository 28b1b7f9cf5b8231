package custody_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"custody-go/internal/codec"
	"custody-go/internal/custody"
	"custody-go/internal/ledger"
	"custody-go/internal/model"
	"custody-go/internal/testutil"
)

func TestService_CreateThenViewScenario(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()

	rec0, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "Report.pdf", Owner: 42, LastAccessDate: 1000})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if rec0.Action != model.ActionCreated || !rec0.PreviousHash.IsZero() {
		t.Errorf("CreateDocument() = %+v, want Created with zero previous hash", rec0)
	}

	rec1, err := h.Service.AccessDocument(ctx, custody.AccessRequest{Title: "Report.pdf", Owner: 42, Actor: "42", Kind: model.AccessView})
	if err != nil {
		t.Fatalf("AccessDocument() error = %v", err)
	}
	if rec1.Action != model.ActionViewed || rec1.PreviousHash != rec0.BlockHash {
		t.Errorf("AccessDocument() = %+v, want Viewed linked to %s", rec1, rec0.BlockHash)
	}

	v, err := h.Service.VerifyHistory(ctx, "Report.pdf", 42)
	if err != nil {
		t.Fatalf("VerifyHistory() error = %v", err)
	}
	if !v.Valid || v.BadIndex != -1 {
		t.Errorf("VerifyHistory() = %+v, want valid", v)
	}

	history, err := h.Service.GetHistory(ctx, "Report.pdf", 42)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	history[1].PreviousHash[0] ^= 0xff
	if got := custody.Verify(history); got.Valid || got.BadIndex != 1 {
		t.Errorf("Verify() after corrupting record 1 = %+v, want invalid at 1", got)
	}
}

func TestService_ShareExpiryScenario(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	end := uint64(h.Clock.Now().Add(time.Hour).Unix())

	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "plan", Owner: 42}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	records, err := h.Service.ShareDocument(ctx, custody.ShareRequest{Title: "plan", Owner: 42, Grantee: "77", Level: model.ShareView, EndDate: end})
	if err != nil {
		t.Fatalf("ShareDocument() error = %v", err)
	}
	if len(records) != 1 || records[0].Action != model.ActionSharedView || records[0].SharedUser != "77" || records[0].SharedEndDate != end {
		t.Fatalf("ShareDocument() = %+v, want one SharedView record for 77", records)
	}

	_, err = h.Service.AccessDocument(ctx, custody.AccessRequest{Title: "plan", Owner: 42, Actor: "77", Kind: model.AccessDownload})
	if !errors.Is(err, custody.ErrPermissionDenied) {
		t.Errorf("download by view grantee error = %v, want ErrPermissionDenied", err)
	}

	if _, err := h.Service.AccessDocument(ctx, custody.AccessRequest{Title: "plan", Owner: 42, Actor: "77", Kind: model.AccessView}); err != nil {
		t.Errorf("view before expiry error = %v", err)
	}

	h.Clock.Advance(2 * time.Hour)
	_, err = h.Service.AccessDocument(ctx, custody.AccessRequest{Title: "plan", Owner: 42, Actor: "77", Kind: model.AccessView})
	if !errors.Is(err, custody.ErrPermissionDenied) {
		t.Errorf("view after expiry error = %v, want ErrPermissionDenied", err)
	}
}

func TestService_CreateStoresContent(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	content := []byte("the deed itself")

	rec, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "deed", Owner: 1, Content: content})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if rec.ContentRef != codec.ContentRefOf(content) {
		t.Errorf("CreateDocument().ContentRef = %s, want digest of content", rec.ContentRef)
	}

	var buf bytes.Buffer
	if err := h.Content.GetContent(ctx, rec.ContentRef, &buf); err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("GetContent() = %q, want %q", buf.Bytes(), content)
	}
}

func TestService_CreateErrors(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "taken", Owner: 1}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	tests := []struct {
		name    string
		req     custody.CreateRequest
		wantErr *custody.Error
	}{
		{name: "duplicate", req: custody.CreateRequest{Title: "taken", Owner: 1}, wantErr: custody.ErrAlreadyExists},
		{name: "empty title", req: custody.CreateRequest{Owner: 1}, wantErr: custody.ErrInvalidTransition},
		{name: "title too long", req: custody.CreateRequest{Title: strings.Repeat("t", 33), Owner: 1}, wantErr: custody.ErrFieldTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Service.CreateDocument(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("same title other owner", func(t *testing.T) {
		if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "taken", Owner: 2}); err != nil {
			t.Errorf("CreateDocument() error = %v", err)
		}
	})
}

func TestService_FieldTooLongNeverReachesLedger(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "doc", Owner: 1}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	signer := testutil.NewTestSigner("service")
	before, _ := h.Ledger.NextNonce(ctx, signer.Address())

	long := strings.Repeat("é", 17) // 34 bytes
	tests := []struct {
		name string
		call func() error
	}{
		{name: "share grantee", call: func() error {
			_, err := h.Service.ShareDocument(ctx, custody.ShareRequest{Title: "doc", Owner: 1, Grantee: long, Level: model.ShareBoth})
			return err
		}},
		{name: "access actor", call: func() error {
			_, err := h.Service.AccessDocument(ctx, custody.AccessRequest{Title: "doc", Owner: 1, Actor: long, Kind: model.AccessView})
			return err
		}},
		{name: "update new title", call: func() error {
			_, err := h.Service.UpdateDocument(ctx, custody.UpdateRequest{Title: "doc", Owner: 1, NewTitle: long})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, custody.ErrFieldTooLong) {
				t.Errorf("error = %v, want ErrFieldTooLong", err)
			}
		})
	}

	after, _ := h.Ledger.NextNonce(ctx, signer.Address())
	if after != before {
		t.Errorf("NextNonce() = %d, want %d: rejected requests reached the ledger", after, before)
	}
}

func TestService_NULFieldNeverReachesLedger(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "doc", Owner: 1}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	signer := testutil.NewTestSigner("service")
	before, _ := h.Ledger.NextNonce(ctx, signer.Address())

	tests := []struct {
		name string
		call func() error
	}{
		{name: "create title", call: func() error {
			_, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "memo\x00", Owner: 42})
			return err
		}},
		{name: "share grantee", call: func() error {
			_, err := h.Service.ShareDocument(ctx, custody.ShareRequest{Title: "doc", Owner: 1, Grantee: "7\x00", Level: model.ShareView})
			return err
		}},
		{name: "access actor", call: func() error {
			_, err := h.Service.AccessDocument(ctx, custody.AccessRequest{Title: "doc", Owner: 1, Actor: "1\x00", Kind: model.AccessView})
			return err
		}},
		{name: "update new title", call: func() error {
			_, err := h.Service.UpdateDocument(ctx, custody.UpdateRequest{Title: "doc", Owner: 1, NewTitle: "doc\x00"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, custody.ErrInvalidTransition) {
				t.Errorf("error = %v, want ErrInvalidTransition", err)
			}
		})
	}

	after, _ := h.Ledger.NextNonce(ctx, signer.Address())
	if after != before {
		t.Errorf("NextNonce() = %d, want %d: rejected requests reached the ledger", after, before)
	}
	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "memo", Owner: 42}); err != nil {
		t.Errorf("CreateDocument(memo) error = %v, want the title still free", err)
	}
}

func TestService_PartialShareKeepsGrantsInStepWithLedger(t *testing.T) {
	clock := testutil.FixedClock()
	mem := testutil.NewTestLedger(t, clock, ledger.MemoryOptions{})
	// create and the view half of the share go through; the download half
	// commits but its submit reports a transport failure.
	l := &flakyLedger{Ledger: mem, pass: 2, failSubmits: 1}
	client := custody.NewClient(l, testutil.NewTestSigner("sharer"), clock, custody.NewNopLogger(), custody.ClientOptions{
		PollBase:          10 * time.Millisecond,
		VisibilityTimeout: time.Second,
	})
	resolver := custody.NewResolver(l, clock, time.Minute)
	svc := custody.NewService(client, resolver, nil, custody.NewNopLogger(), clock)
	ctx := context.Background()
	key := model.DocumentKey{Title: "doc", Owner: 1}

	if _, err := svc.CreateDocument(ctx, custody.CreateRequest{Title: key.Title, Owner: key.Owner}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if grants, err := resolver.Grants(ctx, key); err != nil || len(grants) != 0 {
		t.Fatalf("Grants() = %+v, %v, want none", grants, err)
	}

	_, err := svc.ShareDocument(ctx, custody.ShareRequest{Title: key.Title, Owner: key.Owner, Grantee: "77", Level: model.ShareBoth})
	if !errors.Is(err, custody.ErrPending) {
		t.Fatalf("ShareDocument() error = %v, want ErrPending", err)
	}
	history, herr := mem.History(ctx, key)
	if herr != nil || len(history) != 3 {
		t.Fatalf("History() = %d records, %v, want 3", len(history), herr)
	}
	var e *custody.Error
	if !errors.As(err, &e) || e.TxID != history[1].TxID {
		t.Errorf("ShareDocument() error TxID = %+v, want %s of the view record", err, history[1].TxID)
	}

	for _, action := range []model.Action{model.ActionViewed, model.ActionDownloaded} {
		ok, err := resolver.CanPerform(ctx, "77", key.Owner, key.Title, action)
		if err != nil {
			t.Fatalf("CanPerform() error = %v", err)
		}
		if !ok {
			t.Errorf("CanPerform(77, %s) = false, want the committed grant", action)
		}
	}
}

func TestService_AccessErrors(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "doc", Owner: 1}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	tests := []struct {
		name    string
		req     custody.AccessRequest
		wantErr *custody.Error
	}{
		{name: "missing document", req: custody.AccessRequest{Title: "ghost", Owner: 1, Actor: "1", Kind: model.AccessView}, wantErr: custody.ErrNotFound},
		{name: "stranger", req: custody.AccessRequest{Title: "doc", Owner: 1, Actor: "9", Kind: model.AccessView}, wantErr: custody.ErrPermissionDenied},
		{name: "empty actor", req: custody.AccessRequest{Title: "doc", Owner: 1, Kind: model.AccessView}, wantErr: custody.ErrInvalidTransition},
		{name: "unknown kind", req: custody.AccessRequest{Title: "doc", Owner: 1, Actor: "1", Kind: model.AccessKind(7)}, wantErr: custody.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Service.AccessDocument(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AccessDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_ShareErrors(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "doc", Owner: 1}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	tests := []struct {
		name    string
		req     custody.ShareRequest
		wantErr *custody.Error
	}{
		{name: "missing document", req: custody.ShareRequest{Title: "ghost", Owner: 1, Grantee: "2", Level: model.ShareView}, wantErr: custody.ErrNotFound},
		{name: "caller not owner", req: custody.ShareRequest{Title: "doc", Owner: 1, Caller: "2", Grantee: "3", Level: model.ShareView}, wantErr: custody.ErrPermissionDenied},
		{name: "share with owner", req: custody.ShareRequest{Title: "doc", Owner: 1, Grantee: "1", Level: model.ShareView}, wantErr: custody.ErrInvalidTransition},
		{name: "unknown level", req: custody.ShareRequest{Title: "doc", Owner: 1, Grantee: "2", Level: "edit"}, wantErr: custody.ErrInvalidTransition},
		{name: "empty grantee", req: custody.ShareRequest{Title: "doc", Owner: 1, Level: model.ShareView}, wantErr: custody.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Service.ShareDocument(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ShareDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_ShareBothAppendsViewThenDownload(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "doc", Owner: 1}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	records, err := h.Service.ShareDocument(ctx, custody.ShareRequest{Title: "doc", Owner: 1, Grantee: "2", Level: model.ShareBoth})
	if err != nil {
		t.Fatalf("ShareDocument() error = %v", err)
	}
	if len(records) != 2 || records[0].Action != model.ActionSharedView || records[1].Action != model.ActionSharedDownload {
		t.Fatalf("ShareDocument() = %+v, want SharedView then SharedDownload", records)
	}
	if records[1].PreviousHash != records[0].BlockHash {
		t.Error("second share record does not link to the first")
	}

	grants, err := h.Service.Grants(ctx, "doc", 1)
	if err != nil {
		t.Fatalf("Grants() error = %v", err)
	}
	if len(grants) != 1 || grants[0].Level() != model.ShareBoth {
		t.Errorf("Grants() = %+v, want one grant at level both", grants)
	}
}

func TestService_UpdateRenamesAndMovesHistory(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()

	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "draft", Owner: 5, Content: []byte("v1")}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if _, err := h.Service.ShareDocument(ctx, custody.ShareRequest{Title: "draft", Owner: 5, Grantee: "bob", Level: model.ShareView}); err != nil {
		t.Fatalf("ShareDocument() error = %v", err)
	}
	// Warm the grant cache under the old title.
	if ok, _ := h.Service.CanPerform(ctx, "bob", 5, "draft", model.ActionViewed); !ok {
		t.Fatal("CanPerform() before rename = false, want true")
	}

	rec, err := h.Service.UpdateDocument(ctx, custody.UpdateRequest{Title: "draft", Owner: 5, NewTitle: "final", Content: []byte("v2")})
	if err != nil {
		t.Fatalf("UpdateDocument() error = %v", err)
	}
	if rec.Action != model.ActionUpdated || rec.Title != "final" || rec.ContentRef != codec.ContentRefOf([]byte("v2")) {
		t.Errorf("UpdateDocument() = %+v, want Updated record for final with new content", rec)
	}

	if _, err := h.Service.GetDocument(ctx, "draft", 5); !errors.Is(err, custody.ErrNotFound) {
		t.Errorf("GetDocument(old title) error = %v, want ErrNotFound", err)
	}
	history, err := h.Service.GetHistory(ctx, "final", 5)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("GetHistory() len = %d, want 3", len(history))
	}
	if v := custody.Verify(history); !v.Valid {
		t.Errorf("Verify() after rename = %+v, want valid", v)
	}

	if ok, _ := h.Service.CanPerform(ctx, "bob", 5, "draft", model.ActionViewed); ok {
		t.Error("CanPerform() on old title = true, want false")
	}
	if ok, _ := h.Service.CanPerform(ctx, "bob", 5, "final", model.ActionViewed); !ok {
		t.Error("CanPerform() on new title = false, want true")
	}
}

func TestService_UpdateErrors(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	for _, title := range []string{"a", "b"} {
		if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: title, Owner: 1}); err != nil {
			t.Fatalf("CreateDocument(%s) error = %v", title, err)
		}
	}

	tests := []struct {
		name    string
		req     custody.UpdateRequest
		wantErr *custody.Error
	}{
		{name: "missing document", req: custody.UpdateRequest{Title: "ghost", Owner: 1, NewTitle: "c"}, wantErr: custody.ErrNotFound},
		{name: "target exists", req: custody.UpdateRequest{Title: "a", Owner: 1, NewTitle: "b"}, wantErr: custody.ErrAlreadyExists},
		{name: "same title", req: custody.UpdateRequest{Title: "a", Owner: 1, NewTitle: "a"}, wantErr: custody.ErrInvalidTransition},
		{name: "caller not owner", req: custody.UpdateRequest{Title: "a", Owner: 1, Caller: "2", NewTitle: "c"}, wantErr: custody.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Service.UpdateDocument(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_GetUserDocuments(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: title, Owner: 8}); err != nil {
			t.Fatalf("CreateDocument(%s) error = %v", title, err)
		}
	}
	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "other", Owner: 9}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	docs, err := h.Service.GetUserDocuments(ctx, 8)
	if err != nil {
		t.Fatalf("GetUserDocuments() error = %v", err)
	}
	var titles []string
	for _, d := range docs {
		titles = append(titles, d.Title)
	}
	if got := strings.Join(titles, ","); got != "one,two,three" {
		t.Errorf("GetUserDocuments() titles = %s, want one,two,three", got)
	}

	docs, err = h.Service.GetUserDocuments(ctx, 10)
	if err != nil {
		t.Fatalf("GetUserDocuments() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("GetUserDocuments() for owner without documents = %+v, want none", docs)
	}
}

func TestService_ConcurrentDuplicateCreate(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "race", Owner: 1})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, custody.ErrAlreadyExists):
			t.Errorf("CreateDocument() error = %v, want nil or ErrAlreadyExists", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d creates succeeded, want exactly 1", succeeded)
	}

	history, err := h.Service.GetHistory(ctx, "race", 1)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Errorf("GetHistory() len = %d, want 1", len(history))
	}
}

func TestService_ConcurrentWritesShareOneIdentity(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: fmt.Sprintf("doc-%d", i), Owner: 1}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("CreateDocument() error = %v", err)
	}

	next, err := h.Ledger.NextNonce(ctx, testutil.NewTestSigner("service").Address())
	if err != nil {
		t.Fatalf("NextNonce() error = %v", err)
	}
	if next != n {
		t.Errorf("NextNonce() = %d, want %d", next, n)
	}
	docs, _ := h.Service.GetUserDocuments(ctx, 1)
	if len(docs) != n {
		t.Errorf("GetUserDocuments() len = %d, want %d", len(docs), n)
	}
}

func TestService_PendingWhenConfirmationOutlivesRequest(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{ConfirmDelay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "slow", Owner: 1})
	if !errors.Is(err, custody.ErrPending) {
		t.Fatalf("CreateDocument() error = %v, want ErrPending", err)
	}
	var e *custody.Error
	if !errors.As(err, &e) || e.TxID == "" {
		t.Fatalf("CreateDocument() error = %v, want a pending transaction id", err)
	}

	// The write still lands; polling the reported transaction later finds it.
	h.Clock.Advance(time.Minute)
	r, err := h.Ledger.Receipt(context.Background(), e.TxID)
	if err != nil || r == nil || r.Status != model.ReceiptConfirmed {
		t.Errorf("Receipt(%s) = %+v, %v, want confirmed", e.TxID, r, err)
	}
}

func TestService_WaitsOutConfirmDelayAndLag(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{ConfirmDelay: time.Second, VisibilityLag: 2 * time.Second})
	ctx := context.Background()

	rec, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "eventual", Owner: 1})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if _, err := h.Service.AccessDocument(ctx, custody.AccessRequest{Title: "eventual", Owner: 1, Actor: "1", Kind: model.AccessDownload}); err != nil {
		t.Fatalf("AccessDocument() error = %v", err)
	}
	history, err := h.Service.GetHistory(ctx, "eventual", 1)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 || history[0].BlockHash != rec.BlockHash {
		t.Errorf("GetHistory() = %+v, want two records starting with the created one", history)
	}
}

func TestService_NotYetVisibleSurfacesAsPending(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{VisibilityLag: time.Hour})
	_, err := h.Service.CreateDocument(context.Background(), custody.CreateRequest{Title: "hidden", Owner: 1})
	if !errors.Is(err, custody.ErrPending) || !errors.Is(err, custody.ErrNotYetVisible) {
		t.Errorf("CreateDocument() error = %v, want ErrPending caused by ErrNotYetVisible", err)
	}
}

// tamperingLedger rewrites the timestamps of every record it reads back.
type tamperingLedger struct {
	custody.Ledger
}

func (l tamperingLedger) History(ctx context.Context, key model.DocumentKey) ([]model.ActionRecord, error) {
	history, err := l.Ledger.History(ctx, key)
	for i := range history {
		history[i].Timestamp++
	}
	return history, err
}

func TestService_DetectsTamperedRecord(t *testing.T) {
	clock := testutil.FixedClock()
	l := tamperingLedger{testutil.NewTestLedger(t, clock, ledger.MemoryOptions{})}
	client := custody.NewClient(l, testutil.NewTestSigner("service"), clock, custody.NewNopLogger(), custody.ClientOptions{})
	svc := custody.NewService(client, custody.NewResolver(l, clock, time.Minute), nil, custody.NewNopLogger(), clock)

	_, err := svc.CreateDocument(context.Background(), custody.CreateRequest{Title: "forged", Owner: 1})
	if !errors.Is(err, custody.ErrIntegrity) {
		t.Errorf("CreateDocument() error = %v, want ErrIntegrity", err)
	}
}

func TestService_GetRecord(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()

	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "doc", Owner: 1}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if _, err := h.Service.ShareDocument(ctx, custody.ShareRequest{Title: "doc", Owner: 1, Grantee: "77", Level: model.ShareView}); err != nil {
		t.Fatalf("ShareDocument() error = %v", err)
	}

	rec, err := h.Service.GetRecord(ctx, "doc", 1, 1)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.Action != model.ActionSharedView || rec.SharedUser != "77" {
		t.Errorf("GetRecord(1) = %+v, want the share record", rec)
	}

	tests := []struct {
		name  string
		title string
		index int
	}{
		{name: "past the end", title: "doc", index: 2},
		{name: "negative", title: "doc", index: -1},
		{name: "missing document", title: "ghost", index: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.Service.GetRecord(ctx, tt.title, 1, tt.index); !errors.Is(err, custody.ErrNotFound) {
				t.Errorf("GetRecord() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestService_GetOwnerStats(t *testing.T) {
	h := testutil.NewHarness(t, ledger.MemoryOptions{})
	ctx := context.Background()

	for _, title := range []string{"a", "b"} {
		if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: title, Owner: 1}); err != nil {
			t.Fatalf("CreateDocument(%s) error = %v", title, err)
		}
	}
	if _, err := h.Service.CreateDocument(ctx, custody.CreateRequest{Title: "other", Owner: 2}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if _, err := h.Service.ShareDocument(ctx, custody.ShareRequest{Title: "a", Owner: 1, Grantee: "77", Level: model.ShareBoth}); err != nil {
		t.Fatalf("ShareDocument() error = %v", err)
	}
	if _, err := h.Service.AccessDocument(ctx, custody.AccessRequest{Title: "a", Owner: 1, Actor: "77", Kind: model.AccessView}); err != nil {
		t.Fatalf("AccessDocument() error = %v", err)
	}

	st, err := h.Service.GetOwnerStats(ctx, 1)
	if err != nil {
		t.Fatalf("GetOwnerStats() error = %v", err)
	}
	if st.Documents != 2 || st.Records != 6 {
		t.Errorf("GetOwnerStats() = %d documents, %d records, want 2 and 6", st.Documents, st.Records)
	}
	want := map[model.Action]int{
		model.ActionCreated:        2,
		model.ActionSharedView:     1,
		model.ActionSharedDownload: 1,
		model.ActionViewed:         1,
	}
	for action, n := range want {
		if st.Actions[action] != n {
			t.Errorf("Actions[%s] = %d, want %d", action, st.Actions[action], n)
		}
	}
	if got := st.AveragePerDocument(); got != 3 {
		t.Errorf("AveragePerDocument() = %v, want 3", got)
	}

	empty, err := h.Service.GetOwnerStats(ctx, 9)
	if err != nil {
		t.Fatalf("GetOwnerStats() error = %v", err)
	}
	if empty.Documents != 0 || empty.AveragePerDocument() != 0 {
		t.Errorf("GetOwnerStats(9) = %+v, want empty", empty)
	}
}
