package model

import (
	"fmt"
	"net/url"
	"path"
)

// BlobIdentifier addresses one blob: the hash of its content scoped to
// the owning user. Identical content owned by different users yields
// distinct identifiers. ContentRef is the same thing seen from a file
// tree node.
type BlobIdentifier struct {
	Hash  FileHash       `yaml:"hash" json:"hash"`
	Owner UserIdentifier `yaml:"owner" json:"owner"`
}

type ContentRef = BlobIdentifier

func (b BlobIdentifier) String() string {
	return fmt.Sprintf("%s/%s", b.Owner, b.Hash)
}

// Key returns the slash-separated storage key "<owner>/<algorithm>/<digest>".
// The owner is path-escaped so it always occupies a single segment.
func (b BlobIdentifier) Key() string {
	return path.Join(url.PathEscape(string(b.Owner)), string(b.Hash.Algorithm), b.Hash.Digest)
}

// Validate checks that every part of the identifier is present.
func (b BlobIdentifier) Validate() error {
	if b.Owner == "" {
		return fmt.Errorf("blob identifier has no owner")
	}
	if b.Hash.Algorithm == "" || b.Hash.Digest == "" {
		return fmt.Errorf("blob identifier has no hash")
	}
	return nil
}
