package testutil

import (
	"testing"
	"time"

	"custody-go/internal/content"
	"custody-go/internal/custody"
	"custody-go/internal/ledger"
)

// Harness wires a custody.Service over an in-memory ledger for tests.
type Harness struct {
	Clock    *StubClock
	Ledger   *ledger.MemoryLedger
	Content  *content.MemoryStore
	Client   *custody.Client
	Resolver *custody.Resolver
	Service  *custody.Service
}

// NewHarness builds a service on a fixed clock with the given ledger asynchrony.
func NewHarness(t *testing.T, opts ledger.MemoryOptions) *Harness {
	t.Helper()

	clock := FixedClock()
	l := NewTestLedger(t, clock, opts)
	store := NewTestContentStore()
	client := custody.NewClient(l, NewTestSigner("service"), clock, custody.NewNopLogger(), custody.ClientOptions{
		PollBase:          10 * time.Millisecond,
		PollMax:           200 * time.Millisecond,
		VisibilityTimeout: 5 * time.Second,
	})
	resolver := custody.NewResolver(l, clock, time.Minute)
	return &Harness{
		Clock:    clock,
		Ledger:   l,
		Content:  store,
		Client:   client,
		Resolver: resolver,
		Service:  custody.NewService(client, resolver, store, custody.NewNopLogger(), clock),
	}
}
