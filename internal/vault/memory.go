package vault

import (
	"fmt"
	"io"
	"sync"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// MemoryVault is an in-memory implementation of the BlobStore interface.
// It is useful for testing and for short-lived servers.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	blobs map[model.BlobIdentifier][]byte
	mu    sync.RWMutex
}

// NewMemoryVault creates a new empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{blobs: make(map[model.BlobIdentifier][]byte)}
}

// Has reports whether ref is stored.
func (m *MemoryVault) Has(ref model.BlobIdentifier) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[ref]
	return ok, nil
}

// Insert stores content under ref. Existing refs are left untouched.
func (m *MemoryVault) Insert(ref model.BlobIdentifier, content guardian.BlobSource) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if ok, _ := m.Has(ref); ok {
		return nil
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if uint64(len(data)) != content.TotalLength() {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", content.TotalLength(), len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[ref]; !ok {
		m.blobs[ref] = data
	}
	return nil
}

// Fetch returns a source over the stored bytes.
func (m *MemoryVault) Fetch(ref model.BlobIdentifier) (guardian.BlobSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[ref]
	if !ok {
		return nil, notFound(ref)
	}
	return guardian.NewBytesBlob(data), nil
}

// Delete removes ref.
func (m *MemoryVault) Delete(ref model.BlobIdentifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[ref]; !ok {
		return notFound(ref)
	}
	delete(m.blobs, ref)
	return nil
}

// Len returns the number of stored blobs.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Compile-time check that MemoryVault implements guardian.BlobStore
var _ guardian.BlobStore = (*MemoryVault)(nil)
