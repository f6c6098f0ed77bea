package hashing

import (
	"hash"

	"golang.org/x/crypto/blake2b"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// NewBlake2bHasher returns the BLAKE2b-512 hasher (64-byte digests).
func NewBlake2bHasher(preference int) guardian.Hasher {
	return &digestHasher{
		algorithm:  model.AlgorithmBlake2b512,
		preference: preference,
		newHash: func() hash.Hash {
			// New512 only fails for keys longer than 64 bytes.
			h, _ := blake2b.New512(nil)
			return h
		},
	}
}
