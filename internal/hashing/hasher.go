// Package hashing provides the hash algorithms registered with the
// guardian hash service.
package hashing

import (
	"hash"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// Default preferences. Higher wins when choosing a hasher for new content.
const (
	PreferenceBlake2b = 10
	PreferenceSHA256  = 5
	PreferenceXXH3    = 1
)

// digestHasher adapts any hash.Hash constructor to guardian.Hasher.
type digestHasher struct {
	algorithm  model.HashAlgorithm
	preference int
	newHash    func() hash.Hash
}

func (h *digestHasher) Algorithm() model.HashAlgorithm { return h.algorithm }
func (h *digestHasher) Preference() int                { return h.preference }

func (h *digestHasher) CanVerify(fh model.FileHash) bool {
	return fh.Algorithm == h.algorithm
}

func (h *digestHasher) NewPendingHash() guardian.PendingHash {
	return &pendingDigest{algorithm: h.algorithm, h: h.newHash()}
}

type pendingDigest struct {
	algorithm model.HashAlgorithm
	h         hash.Hash
}

func (p *pendingDigest) Write(b []byte) (int, error) { return p.h.Write(b) }

func (p *pendingDigest) Finalize() model.FileHash {
	return model.NewFileHash(p.algorithm, p.h.Sum(nil))
}
