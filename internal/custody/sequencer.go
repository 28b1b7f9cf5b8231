package custody

import "sync"

// sequencer hands out ledger nonces per signing identity.
// Writes from one identity are serialized through that identity's mutex;
// identities never contend with each other.
type sequencer struct {
	mu  sync.Mutex
	ids map[string]*identitySequence
}

// identitySequence is the nonce state of one identity. Fields are guarded by mu,
// which is held for the whole reservation and submission of a batch.
type identitySequence struct {
	mu      sync.Mutex
	address string
	next    uint64
	synced  bool
}

func newSequencer() *sequencer {
	return &sequencer{ids: make(map[string]*identitySequence)}
}

// acquire locks and returns the sequence for address. The caller must release it.
func (s *sequencer) acquire(address string) *identitySequence {
	s.mu.Lock()
	seq, ok := s.ids[address]
	if !ok {
		seq = &identitySequence{address: address}
		s.ids[address] = seq
	}
	s.mu.Unlock()

	seq.mu.Lock()
	return seq
}

func (q *identitySequence) release() {
	q.mu.Unlock()
}
