package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HashAlgorithm names a hash variant. The set is open; each hasher
// registered with the hash service contributes one.
type HashAlgorithm string

const (
	AlgorithmBlake2b512 HashAlgorithm = "blake2b-512"
	AlgorithmSHA256     HashAlgorithm = "sha256"
	AlgorithmXXH3       HashAlgorithm = "xxh3-128"
)

// FileHash is a tagged digest. Two hashes are equal only when both the
// algorithm and the digest match, so it can be used as a map key.
type FileHash struct {
	Algorithm HashAlgorithm `yaml:"algorithm" json:"algorithm"`
	Digest    string        `yaml:"digest" json:"digest"` // lowercase hex
}

// NewFileHash builds a FileHash from raw digest bytes.
func NewFileHash(algorithm HashAlgorithm, sum []byte) FileHash {
	return FileHash{Algorithm: algorithm, Digest: hex.EncodeToString(sum)}
}

// ParseFileHash parses the "<algorithm>:<hex>" form produced by String.
func ParseFileHash(s string) (FileHash, error) {
	algo, digest, ok := strings.Cut(s, ":")
	if !ok || algo == "" || digest == "" {
		return FileHash{}, fmt.Errorf("invalid file hash %q: %w", s, ErrDecode)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return FileHash{}, fmt.Errorf("invalid digest in %q: %w", s, ErrDecode)
	}
	return FileHash{Algorithm: HashAlgorithm(algo), Digest: strings.ToLower(digest)}, nil
}

func (h FileHash) String() string {
	return string(h.Algorithm) + ":" + h.Digest
}

// IsZero reports whether the hash is unset.
func (h FileHash) IsZero() bool {
	return h.Algorithm == "" && h.Digest == ""
}

// Short returns an abbreviated digest for log output.
func (h FileHash) Short() string {
	if len(h.Digest) > 12 {
		return h.Digest[:12]
	}
	return h.Digest
}
