package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
	"guardian-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault()
}

// ErrInjected is returned by FaultyVault when a fault fires.
var ErrInjected = errors.New("injected fault")

// FaultyVault wraps a BlobStore and fails selected operations.
type FaultyVault struct {
	guardian.BlobStore

	// FailInsertAfter lets the first n Insert calls through and fails
	// the rest. Negative disables the fault.
	FailInsertAfter int64
	inserts         atomic.Int64

	mu         sync.Mutex
	corrupt    map[model.BlobIdentifier][]byte
	FetchCalls atomic.Int64
}

// NewFaultyVault wraps inner with all faults disabled.
func NewFaultyVault(inner guardian.BlobStore) *FaultyVault {
	return &FaultyVault{BlobStore: inner, FailInsertAfter: -1, corrupt: make(map[model.BlobIdentifier][]byte)}
}

// Corrupt makes Fetch of ref return data instead of the stored bytes.
func (f *FaultyVault) Corrupt(ref model.BlobIdentifier, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrupt[ref] = data
}

func (f *FaultyVault) Insert(ref model.BlobIdentifier, content guardian.BlobSource) error {
	n := f.inserts.Add(1)
	if f.FailInsertAfter >= 0 && n > f.FailInsertAfter {
		return ErrInjected
	}
	return f.BlobStore.Insert(ref, content)
}

func (f *FaultyVault) Fetch(ref model.BlobIdentifier) (guardian.BlobSource, error) {
	f.FetchCalls.Add(1)
	f.mu.Lock()
	data, ok := f.corrupt[ref]
	f.mu.Unlock()
	if ok {
		return guardian.NewBytesBlob(data), nil
	}
	return f.BlobStore.Fetch(ref)
}
