package testutil

import (
	"custody-go/internal/content"
)

// NewTestContentStore creates a new in-memory content store for testing.
func NewTestContentStore() *content.MemoryStore {
	return content.NewMemoryStore()
}
