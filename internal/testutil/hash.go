package testutil

import (
	"guardian-go/internal/guardian"
	"guardian-go/internal/hashing"
	"guardian-go/internal/model"
)

// NewTestHashService returns the default hash service (blake2b preferred).
func NewTestHashService() *guardian.HashService {
	return hashing.NewDefaultHashService()
}

// ContentRef returns the ref the preferred hasher of NewTestHashService
// gives data owned by owner.
func ContentRef(owner model.UserIdentifier, data []byte) model.ContentRef {
	h, err := NewTestHashService().PreferredHasher()
	if err != nil {
		panic(err)
	}
	return model.ContentRef{Hash: guardian.HashBytes(h, data), Owner: owner}
}
