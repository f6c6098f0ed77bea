package testutil

import (
	"guardian-go/internal/encryption"
)

// NewTestEncryptor creates a reversible, keyless encryptor for tests.
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}
