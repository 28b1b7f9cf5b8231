package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"custody-go/internal/custody"
	"custody-go/internal/model"
)

// MemoryStore is an in-memory implementation of custody.ContentStore.
// It is useful for testing and is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	content map[model.ContentRef][]byte
}

// NewMemoryStore creates an empty in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: make(map[model.ContentRef][]byte)}
}

// PutContent stores content identified by ref.
func (m *MemoryStore) PutContent(ctx context.Context, ref model.ContentRef, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	if err := checkRef(ref, data); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[ref] = data
	return nil
}

// GetContent writes the content stored under ref to w.
func (m *MemoryStore) GetContent(ctx context.Context, ref model.ContentRef, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.content[ref]
	m.mu.RUnlock()
	if !ok {
		return custody.Errorf(custody.KindNotFound, "content %s", ref)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Len returns the number of stored items.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup() error {
	return nil
}

var _ custody.ContentStore = (*MemoryStore)(nil)
