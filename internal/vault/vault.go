// Package vault provides BlobStore implementations: in memory, on the
// local filesystem, in S3, and an encrypting decorator.
package vault

import (
	"encoding/hex"
	"fmt"
	"strings"

	"guardian-go/internal/model"
)

// Checker is implemented by stores that can test for a blob without
// opening it. Decorators use it to skip work for blobs already stored.
type Checker interface {
	Has(ref model.BlobIdentifier) (bool, error)
}

// checkRef rejects identifiers that could escape a storage prefix.
// Refs may come from remote callers, so every part must be a plain name.
func checkRef(ref model.BlobIdentifier) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if owner := string(ref.Owner); owner == "." || owner == ".." {
		return fmt.Errorf("invalid owner %q", owner)
	}
	algo := string(ref.Hash.Algorithm)
	if strings.ContainsAny(algo, `/\`) || algo == "." || algo == ".." {
		return fmt.Errorf("invalid hash algorithm %q", algo)
	}
	if _, err := hex.DecodeString(ref.Hash.Digest); err != nil || len(ref.Hash.Digest) < 4 {
		return fmt.Errorf("invalid digest %q", ref.Hash.Digest)
	}
	return nil
}

func notFound(ref model.BlobIdentifier) error {
	return fmt.Errorf("%s: %w", ref, model.ErrBlobNotFound)
}
