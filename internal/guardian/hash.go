package guardian

import (
	"fmt"
	"io"

	"guardian-go/internal/model"
)

// Hasher is one hash algorithm registered with the HashService.
type Hasher interface {
	// Algorithm names the variant this hasher produces.
	Algorithm() model.HashAlgorithm

	// Preference ranks hashers; the highest value is used for new content.
	Preference() int

	// CanVerify reports whether this hasher understands the given hash.
	CanVerify(h model.FileHash) bool

	// NewPendingHash starts a fresh streaming computation.
	NewPendingHash() PendingHash
}

// PendingHash accumulates bytes and produces a FileHash when finalized.
// A PendingHash is used once.
type PendingHash interface {
	io.Writer
	Finalize() model.FileHash
}

// HashBytes hashes an in-memory buffer.
func HashBytes(h Hasher, data []byte) model.FileHash {
	ph := h.NewPendingHash()
	ph.Write(data)
	return ph.Finalize()
}

// HashBlob streams src through a new pending hash.
func HashBlob(h Hasher, src BlobSource) (model.FileHash, error) {
	ph := h.NewPendingHash()
	if _, err := CheckedCopy(ph, src); err != nil {
		return model.FileHash{}, fmt.Errorf("hashing blob: %w", err)
	}
	return ph.Finalize(), nil
}

// HashService selects hashers for producing and verifying hashes.
type HashService struct {
	hashers []Hasher
}

// NewHashService creates a HashService over the given hashers. Order
// matters only to break preference ties: the first registered wins.
func NewHashService(hashers ...Hasher) *HashService {
	return &HashService{hashers: hashers}
}

// PreferredHasher returns the hasher with the highest preference.
func (s *HashService) PreferredHasher() (Hasher, error) {
	var best Hasher
	for _, h := range s.hashers {
		if best == nil || h.Preference() > best.Preference() {
			best = h
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no hashers registered: %w", model.ErrUnsupported)
	}
	return best, nil
}

// CompatibleHasher returns the highest-preference hasher able to verify h.
func (s *HashService) CompatibleHasher(h model.FileHash) (Hasher, error) {
	var best Hasher
	for _, candidate := range s.hashers {
		if !candidate.CanVerify(h) {
			continue
		}
		if best == nil || candidate.Preference() > best.Preference() {
			best = candidate
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no hasher for algorithm %q: %w", h.Algorithm, model.ErrUnsupported)
	}
	return best, nil
}

// Verify re-hashes src and reports whether it matches expected.
func (s *HashService) Verify(expected model.FileHash, src BlobSource) (bool, error) {
	h, err := s.CompatibleHasher(expected)
	if err != nil {
		return false, err
	}
	got, err := HashBlob(h, src)
	if err != nil {
		return false, err
	}
	return got == expected, nil
}

// Algorithms lists the registered algorithms in registration order.
func (s *HashService) Algorithms() []model.HashAlgorithm {
	out := make([]model.HashAlgorithm, 0, len(s.hashers))
	for _, h := range s.hashers {
		out = append(out, h.Algorithm())
	}
	return out
}
