package hashing

import (
	"crypto/sha256"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// NewSHA256Hasher returns the SHA-256 hasher.
func NewSHA256Hasher(preference int) guardian.Hasher {
	return &digestHasher{
		algorithm:  model.AlgorithmSHA256,
		preference: preference,
		newHash:    sha256.New,
	}
}
